package attendance

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"messhall/internal/meal"
	"messhall/internal/roster"
)

var (
	ErrDuplicate      = errors.New("student already recorded for this meal")
	ErrNotMealTime    = errors.New("not currently meal time")
	ErrDecodeFailure  = errors.New("qr decode failed")
	ErrStorageFailure = errors.New("storage failure")
	// ErrHeadCountStale accompanies a recorded scan whose head count bump
	// failed. The view is repaired by reconciling.
	ErrHeadCountStale = errors.New("head count pending repair")
	ErrSessionClosed  = errors.New("scan session closed")
)

// ScanRecord is one attendance event.
type ScanRecord struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"student_id"`
	RollNo      string    `json:"roll_no"`
	StudentName string    `json:"student_name"`
	Meal        meal.Type `json:"meal_type"`
	MessName    string    `json:"mess_name"`
	Timestamp   time.Time `json:"timestamp"`
	Day         string    `json:"day"`
}

// ScanFilter selects scans. Zero fields match everything; FromDay and ToDay
// are inclusive day keys.
type ScanFilter struct {
	StudentID string
	Meal      meal.Type
	FromDay   string
	ToDay     string
	Limit     int
}

// Selective reports whether f narrows the rows at all. Limit does not count.
func (f ScanFilter) Selective() bool {
	return f.StudentID != "" || f.Meal != "" || f.FromDay != "" || f.ToDay != ""
}

// Match reports whether rec passes the filter (ignoring Limit).
func (f ScanFilter) Match(rec ScanRecord) bool {
	if f.StudentID != "" && rec.StudentID != f.StudentID {
		return false
	}
	if f.Meal != "" && rec.Meal != f.Meal {
		return false
	}
	if f.FromDay != "" && rec.Day < f.FromDay {
		return false
	}
	if f.ToDay != "" && rec.Day > f.ToDay {
		return false
	}
	return true
}

// Store persists the scan ledger and its head count view.
type Store interface {
	// AppendScan inserts rec unless a scan for the same student, meal and day
	// exists. The check and the insert are one atomic step.
	AppendScan(ctx context.Context, rec ScanRecord) (bool, error)
	IncrementHeadCount(ctx context.Context, day string, m meal.Type) error
	ListScans(ctx context.Context, f ScanFilter) ([]ScanRecord, error)
	DeleteScans(ctx context.Context, f ScanFilter) (int, error)
	HeadCounts(ctx context.Context) ([]HeadCount, error)
	ReplaceHeadCounts(ctx context.Context, counts []HeadCount) error
}

// Ledger records attendance with per-meal deduplication.
type Ledger struct {
	store   Store
	clf     *meal.Classifier
	onStale func(ctx context.Context, day string)
}

// NewLedger creates a ledger backed by store.
func NewLedger(store Store, clf *meal.Classifier) *Ledger {
	return &Ledger{store: store, clf: clf}
}

// OnStale registers a hook fired when a head count update fails after the
// scan was appended.
func (l *Ledger) OnStale(fn func(ctx context.Context, day string)) {
	l.onStale = fn
}

// Record appends a scan for st at now. A second scan for the same meal on the
// same day returns ErrDuplicate without mutating anything.
func (l *Ledger) Record(ctx context.Context, st roster.Student, m meal.Type, now time.Time) (ScanRecord, error) {
	if m == meal.NotMealTime || m == "" {
		return ScanRecord{}, ErrNotMealTime
	}
	rec := ScanRecord{
		ID:          uuid.NewString(),
		StudentID:   st.ID,
		RollNo:      st.RollNo,
		StudentName: st.Name,
		Meal:        m,
		MessName:    st.Mess,
		Timestamp:   now,
		Day:         l.clf.Day(now),
	}
	inserted, err := l.store.AppendScan(ctx, rec)
	if err != nil {
		return ScanRecord{}, fmt.Errorf("%w: append scan: %v", ErrStorageFailure, err)
	}
	if !inserted {
		return ScanRecord{}, ErrDuplicate
	}
	if err := l.store.IncrementHeadCount(ctx, rec.Day, m); err != nil {
		log.Printf("head count update for %s/%s failed: %v", rec.Day, m.Key(), err)
		if l.onStale != nil {
			l.onStale(ctx, rec.Day)
		}
		return rec, fmt.Errorf("%w: %w: %v", ErrStorageFailure, ErrHeadCountStale, err)
	}
	return rec, nil
}

// Scans lists ledger entries matching f.
func (l *Ledger) Scans(ctx context.Context, f ScanFilter) ([]ScanRecord, error) {
	recs, err := l.store.ListScans(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("%w: list scans: %v", ErrStorageFailure, err)
	}
	return recs, nil
}
