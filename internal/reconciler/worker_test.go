package reconciler_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"messhall/internal/attendance"
	"messhall/internal/meal"
	"messhall/internal/metrics"
	"messhall/internal/queue"
	"messhall/internal/reconciler"
	"messhall/internal/store"
)

func seed(t *testing.T, db *store.Memory) {
	t.Helper()
	ctx := context.Background()
	ts := time.Date(2024, 3, 10, 2, 30, 0, 0, time.UTC)
	ok, err := db.AppendScan(ctx, attendance.ScanRecord{ID: "r1", StudentID: "s1", Meal: meal.Breakfast, Timestamp: ts, Day: "2024-03-10"})
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, db.ReplaceHeadCounts(ctx, nil))
}

func TestWorkerRepairsAtStartup(t *testing.T) {
	db := store.NewMemory()
	seed(t, db)
	m := metrics.New()
	w := &reconciler.Worker{
		Queue:      queue.NewInMemory(1),
		Aggregator: attendance.NewAggregator(db, meal.Default(time.UTC)),
		Metrics:    m,
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	assert.Eventually(t, func() bool {
		counts, err := db.HeadCounts(context.Background())
		return err == nil && len(counts) == 1 && counts[0].Breakfast == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reconciles.WithLabelValues("ok")))
}

func TestPassReportsDrift(t *testing.T) {
	db := store.NewMemory()
	seed(t, db)
	agg := attendance.NewAggregator(db, meal.Default(time.UTC))

	report, err := reconciler.Pass(context.Background(), agg, nil, "manual")
	require.NoError(t, err)
	assert.True(t, report.Repaired)
	assert.Equal(t, []string{"2024-03-10"}, report.Drifted)

	report, err = reconciler.Pass(context.Background(), agg, nil, "startup")
	require.NoError(t, err)
	assert.False(t, report.Repaired)
}

func TestWorkerRepairsOnJob(t *testing.T) {
	db := store.NewMemory()
	clf := meal.Default(time.UTC)
	q := queue.NewInMemory(4)
	m := metrics.New()
	w := &reconciler.Worker{Queue: q, Aggregator: attendance.NewAggregator(db, clf), Metrics: m}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.Reconciles.WithLabelValues("ok")) == 1
	}, time.Second, 10*time.Millisecond)

	seed(t, db)
	reconciler.Notify(q)(ctx, "2024-03-10")
	assert.Eventually(t, func() bool {
		counts, err := db.HeadCounts(context.Background())
		return err == nil && len(counts) == 1 && counts[0].Breakfast == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DriftedDays))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorkerRepairsOnInterval(t *testing.T) {
	db := store.NewMemory()
	m := metrics.New()
	w := &reconciler.Worker{
		Queue:      queue.NewInMemory(1),
		Aggregator: attendance.NewAggregator(db, meal.Default(time.UTC)),
		Metrics:    m,
		Interval:   10 * time.Millisecond,
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.Reconciles.WithLabelValues("ok")) >= 1
	}, time.Second, 5*time.Millisecond)

	seed(t, db)

	assert.Eventually(t, func() bool {
		counts, err := db.HeadCounts(context.Background())
		return err == nil && len(counts) == 1 && counts[0].Total == 1
	}, time.Second, 10*time.Millisecond)
}
