// Package schedule keeps the posted serving times for each weekday and the
// notice board shown next to them.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"messhall/internal/meal"
	"messhall/internal/menu"
)

// Severity ranks a notice.
type Severity string

const (
	SeverityImportant Severity = "important"
	SeverityWarning   Severity = "warning"
	SeverityInfo      Severity = "info"
)

var ErrNoticeNotFound = errors.New("notice not found")

// Timing is the posted serving time per meal on one weekday. The labels are
// free text for display; scans are classified by meal.Classifier alone.
type Timing struct {
	Day       string `json:"day"`
	Breakfast string `json:"breakfast"`
	Lunch     string `json:"lunch"`
	Dinner    string `json:"dinner"`
}

// Notice is one entry on the board.
type Notice struct {
	ID        string    `json:"id"`
	Severity  Severity  `json:"type"`
	Message   string    `json:"message"`
	Date      string    `json:"date"`
	CreatedAt time.Time `json:"created_at"`
}

// NoticeInput is what an admin submits to post or edit a notice.
type NoticeInput struct {
	Severity Severity `json:"type" validate:"required,oneof=important warning info"`
	Message  string   `json:"message" validate:"required,max=500"`
	Date     string   `json:"date" validate:"required,datetime=2006-01-02"`
}

// Board is the public schedule page.
type Board struct {
	Timings []Timing `json:"timings"`
	Notices []Notice `json:"notices"`
}

// Repository persists timings and notices.
type Repository interface {
	ScheduleTimings(ctx context.Context) (map[string]Timing, error)
	PutScheduleTiming(ctx context.Context, t Timing) error
	Notices(ctx context.Context) ([]Notice, error)
	CreateNotice(ctx context.Context, n Notice) error
	// UpdateNotice yields ErrNoticeNotFound for an unknown id.
	UpdateNotice(ctx context.Context, n Notice) error
	DeleteNotice(ctx context.Context, id string) (bool, error)
}

// InvalidError reports a rejected notice field.
type InvalidError struct {
	Field string
	Rule  string
}

func (e *InvalidError) Error() string { return fmt.Sprintf("%s: failed %s", e.Field, e.Rule) }

var validate = validator.New()

// Service edits the schedule board.
type Service struct {
	repo     Repository
	defaults Timing
	now      func() time.Time
}

// NewService creates a schedule service. Days without stored timings show
// the classifier's windows.
func NewService(repo Repository, clf *meal.Classifier) *Service {
	var d Timing
	for _, w := range clf.Windows() {
		switch w.Meal {
		case meal.Breakfast:
			d.Breakfast = w.Label()
		case meal.Lunch:
			d.Lunch = w.Label()
		case meal.Dinner:
			d.Dinner = w.Label()
		}
	}
	return &Service{repo: repo, defaults: d, now: time.Now}
}

// Board returns the timings for every weekday and the notices by date.
func (s *Service) Board(ctx context.Context) (Board, error) {
	timings, err := s.Timings(ctx)
	if err != nil {
		return Board{}, err
	}
	notices, err := s.Notices(ctx)
	if err != nil {
		return Board{}, err
	}
	return Board{Timings: timings, Notices: notices}, nil
}

// Timings returns one entry per weekday in display order.
func (s *Service) Timings(ctx context.Context) ([]Timing, error) {
	stored, err := s.repo.ScheduleTimings(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Timing, 0, len(menu.Days))
	for _, d := range menu.Days {
		t, ok := stored[d]
		if !ok {
			t = s.defaults
		}
		t.Day = d
		out = append(out, t)
	}
	return out, nil
}

// SetTiming replaces the posted times for day. Blank meals revert to the
// default window.
func (s *Service) SetTiming(ctx context.Context, day string, t Timing) (Timing, error) {
	d, err := menu.ParseDay(day)
	if err != nil {
		return Timing{}, err
	}
	t = Timing{
		Day:       d,
		Breakfast: orDefault(t.Breakfast, s.defaults.Breakfast),
		Lunch:     orDefault(t.Lunch, s.defaults.Lunch),
		Dinner:    orDefault(t.Dinner, s.defaults.Dinner),
	}
	if err := s.repo.PutScheduleTiming(ctx, t); err != nil {
		return Timing{}, err
	}
	return t, nil
}

// Notices returns the board sorted by date, then by posting time.
func (s *Service) Notices(ctx context.Context) ([]Notice, error) {
	list, err := s.repo.Notices(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Date != list[j].Date {
			return list[i].Date < list[j].Date
		}
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list, nil
}

// Post adds a notice.
func (s *Service) Post(ctx context.Context, in NoticeInput) (Notice, error) {
	in, err := clean(in)
	if err != nil {
		return Notice{}, err
	}
	n := Notice{
		ID:        uuid.NewString(),
		Severity:  in.Severity,
		Message:   in.Message,
		Date:      in.Date,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.CreateNotice(ctx, n); err != nil {
		return Notice{}, err
	}
	return n, nil
}

// Edit rewrites a notice in place.
func (s *Service) Edit(ctx context.Context, id string, in NoticeInput) (Notice, error) {
	in, err := clean(in)
	if err != nil {
		return Notice{}, err
	}
	list, err := s.repo.Notices(ctx)
	if err != nil {
		return Notice{}, err
	}
	for _, n := range list {
		if n.ID != id {
			continue
		}
		n.Severity, n.Message, n.Date = in.Severity, in.Message, in.Date
		if err := s.repo.UpdateNotice(ctx, n); err != nil {
			return Notice{}, err
		}
		return n, nil
	}
	return Notice{}, ErrNoticeNotFound
}

// Remove deletes a notice.
func (s *Service) Remove(ctx context.Context, id string) error {
	ok, err := s.repo.DeleteNotice(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoticeNotFound
	}
	return nil
}

func clean(in NoticeInput) (NoticeInput, error) {
	in.Message = strings.TrimSpace(in.Message)
	in.Date = strings.TrimSpace(in.Date)
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return NoticeInput{}, &InvalidError{Field: strings.ToLower(verrs[0].Field()), Rule: verrs[0].Tag()}
		}
		return NoticeInput{}, err
	}
	return in, nil
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}
