package attendance

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"messhall/internal/meal"
)

// HeadCount is the per-day tally of scans.
type HeadCount struct {
	Date      string `json:"date"`
	Breakfast int    `json:"breakfast"`
	Lunch     int    `json:"lunch"`
	Dinner    int    `json:"dinner"`
	Total     int    `json:"total"`
}

// Add bumps the bucket for m and the total.
func (h *HeadCount) Add(m meal.Type) {
	switch m {
	case meal.Breakfast:
		h.Breakfast++
	case meal.Lunch:
		h.Lunch++
	case meal.Dinner:
		h.Dinner++
	default:
		return
	}
	h.Total++
}

// Recompute folds scans into head counts sorted by date. Days are derived
// from timestamps with clf.
func Recompute(scans []ScanRecord, clf *meal.Classifier) []HeadCount {
	byDay := make(map[string]*HeadCount)
	for _, s := range scans {
		day := clf.Day(s.Timestamp)
		hc, ok := byDay[day]
		if !ok {
			hc = &HeadCount{Date: day}
			byDay[day] = hc
		}
		hc.Add(s.Meal)
	}
	out := make([]HeadCount, 0, len(byDay))
	for _, hc := range byDay {
		out = append(out, *hc)
	}
	sortHeadCounts(out)
	return out
}

func sortHeadCounts(counts []HeadCount) {
	sort.Slice(counts, func(i, j int) bool { return counts[i].Date < counts[j].Date })
}

// ReconcileReport describes one reconcile pass.
type ReconcileReport struct {
	Scans    int      `json:"scans"`
	Days     int      `json:"days"`
	Drifted  []string `json:"drifted,omitempty"`
	Repaired bool     `json:"repaired"`
}

// Aggregator keeps the head count view consistent with the ledger.
type Aggregator struct {
	store Store
	clf   *meal.Classifier
}

// NewAggregator creates an aggregator over store.
func NewAggregator(store Store, clf *meal.Classifier) *Aggregator {
	return &Aggregator{store: store, clf: clf}
}

// HeadCounts returns the stored view sorted by date.
func (a *Aggregator) HeadCounts(ctx context.Context) ([]HeadCount, error) {
	counts, err := a.store.HeadCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: read head counts: %v", ErrStorageFailure, err)
	}
	sortHeadCounts(counts)
	return counts, nil
}

// Reconcile recomputes the view from the ledger and rewrites it if any day
// drifted. Safe to run repeatedly.
func (a *Aggregator) Reconcile(ctx context.Context) (ReconcileReport, error) {
	scans, err := a.store.ListScans(ctx, ScanFilter{})
	if err != nil {
		return ReconcileReport{}, fmt.Errorf("%w: list scans: %v", ErrStorageFailure, err)
	}
	stored, err := a.store.HeadCounts(ctx)
	if err != nil {
		return ReconcileReport{}, fmt.Errorf("%w: read head counts: %v", ErrStorageFailure, err)
	}
	want := Recompute(scans, a.clf)
	report := ReconcileReport{Scans: len(scans), Days: len(want), Drifted: diffDays(stored, want)}
	if len(report.Drifted) == 0 {
		return report, nil
	}
	if err := a.store.ReplaceHeadCounts(ctx, want); err != nil {
		return report, fmt.Errorf("%w: replace head counts: %v", ErrStorageFailure, err)
	}
	report.Repaired = true
	return report, nil
}

// ErrEmptyFilter is returned by Purge for a filter that selects every scan.
var ErrEmptyFilter = errors.New("purge requires a student, meal or day filter")

// Purge deletes scans matching f and reconciles the view. A filter that is
// not Selective is refused; Limit is ignored.
func (a *Aggregator) Purge(ctx context.Context, f ScanFilter) (int, ReconcileReport, error) {
	if !f.Selective() {
		return 0, ReconcileReport{}, ErrEmptyFilter
	}
	f.Limit = 0
	n, err := a.store.DeleteScans(ctx, f)
	if err != nil {
		return 0, ReconcileReport{}, fmt.Errorf("%w: delete scans: %v", ErrStorageFailure, err)
	}
	report, err := a.Reconcile(ctx)
	return n, report, err
}

// diffDays returns the sorted dates whose counters differ between a and b.
func diffDays(a, b []HeadCount) []string {
	index := make(map[string]HeadCount, len(a))
	for _, hc := range a {
		index[hc.Date] = hc
	}
	var drifted []string
	seen := make(map[string]bool, len(b))
	for _, hc := range b {
		seen[hc.Date] = true
		if got, ok := index[hc.Date]; !ok || got != hc {
			drifted = append(drifted, hc.Date)
		}
	}
	for _, hc := range a {
		if !seen[hc.Date] && hc != (HeadCount{Date: hc.Date}) {
			drifted = append(drifted, hc.Date)
		}
	}
	sort.Strings(drifted)
	return drifted
}
