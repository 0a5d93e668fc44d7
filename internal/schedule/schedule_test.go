package schedule_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messhall/internal/meal"
	"messhall/internal/schedule"
	"messhall/internal/store"
)

func newService() *schedule.Service {
	return schedule.NewService(store.NewMemory(), meal.Default(time.UTC))
}

func TestTimingsDefaultToWindows(t *testing.T) {
	svc := newService()
	timings, err := svc.Timings(context.Background())
	require.NoError(t, err)
	require.Len(t, timings, 7)
	assert.Equal(t, schedule.Timing{Day: "Monday", Breakfast: "07:00-10:00", Lunch: "12:00-15:00", Dinner: "19:00-22:00"}, timings[0])
	assert.Equal(t, "Sunday", timings[6].Day)
}

func TestSetTiming(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	got, err := svc.SetTiming(ctx, "sunday", schedule.Timing{Breakfast: " 7:30 AM - 9:30 AM "})
	require.NoError(t, err)
	assert.Equal(t, schedule.Timing{Day: "Sunday", Breakfast: "7:30 AM - 9:30 AM", Lunch: "12:00-15:00", Dinner: "19:00-22:00"}, got)

	timings, err := svc.Timings(ctx)
	require.NoError(t, err)
	assert.Equal(t, got, timings[6])
	assert.Equal(t, "07:00-10:00", timings[5].Breakfast)

	_, err = svc.SetTiming(ctx, "someday", schedule.Timing{})
	assert.Error(t, err)
}

func TestNotices(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	later, err := svc.Post(ctx, schedule.NoticeInput{Severity: schedule.SeverityImportant, Message: "Special dinner", Date: "2024-03-23"})
	require.NoError(t, err)
	sooner, err := svc.Post(ctx, schedule.NoticeInput{Severity: schedule.SeverityWarning, Message: " Maintenance ", Date: "2024-03-22"})
	require.NoError(t, err)
	assert.Equal(t, "Maintenance", sooner.Message)

	list, err := svc.Notices(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, sooner.ID, list[0].ID)

	edited, err := svc.Edit(ctx, later.ID, schedule.NoticeInput{Severity: schedule.SeverityInfo, Message: "Moved", Date: "2024-03-24"})
	require.NoError(t, err)
	assert.Equal(t, later.CreatedAt, edited.CreatedAt)
	assert.Equal(t, schedule.SeverityInfo, edited.Severity)

	_, err = svc.Edit(ctx, "missing", schedule.NoticeInput{Severity: schedule.SeverityInfo, Message: "x", Date: "2024-03-24"})
	assert.ErrorIs(t, err, schedule.ErrNoticeNotFound)

	require.NoError(t, svc.Remove(ctx, sooner.ID))
	assert.ErrorIs(t, svc.Remove(ctx, sooner.ID), schedule.ErrNoticeNotFound)

	board, err := svc.Board(ctx)
	require.NoError(t, err)
	assert.Len(t, board.Timings, 7)
	require.Len(t, board.Notices, 1)
	assert.Equal(t, "Moved", board.Notices[0].Message)
}

func TestNoticeValidation(t *testing.T) {
	svc := newService()
	cases := []struct {
		name  string
		in    schedule.NoticeInput
		field string
	}{
		{"severity", schedule.NoticeInput{Severity: "urgent", Message: "x", Date: "2024-03-22"}, "severity"},
		{"blank message", schedule.NoticeInput{Severity: schedule.SeverityInfo, Message: "  ", Date: "2024-03-22"}, "message"},
		{"date", schedule.NoticeInput{Severity: schedule.SeverityInfo, Message: "x", Date: "22-03-2024"}, "date"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Post(context.Background(), tc.in)
			var invalid *schedule.InvalidError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tc.field, invalid.Field)
		})
	}
}
