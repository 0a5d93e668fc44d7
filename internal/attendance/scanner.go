package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"messhall/internal/meal"
	"messhall/internal/roster"
)

// Outcome classifies a scan attempt.
type Outcome string

const (
	OutcomeRecorded       Outcome = "recorded"
	OutcomeDuplicate      Outcome = "duplicate"
	OutcomeNotFound       Outcome = "not_found"
	OutcomeDataMismatch   Outcome = "data_mismatch"
	OutcomeNotMealTime    Outcome = "not_meal_time"
	OutcomeDecodeFailure  Outcome = "decode_failure"
	OutcomeStorageFailure Outcome = "storage_failure"
	OutcomeCancelled      Outcome = "cancelled"
)

// OutcomeOf maps a scan error to its outcome. A nil error is Recorded, and so
// is a recorded scan whose head count is stale.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil, errors.Is(err, ErrHeadCountStale):
		return OutcomeRecorded
	case errors.Is(err, ErrDuplicate):
		return OutcomeDuplicate
	case errors.Is(err, roster.ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, roster.ErrDataMismatch):
		return OutcomeDataMismatch
	case errors.Is(err, ErrNotMealTime):
		return OutcomeNotMealTime
	case errors.Is(err, ErrDecodeFailure):
		return OutcomeDecodeFailure
	case errors.Is(err, ErrSessionClosed), errors.Is(err, context.Canceled):
		return OutcomeCancelled
	}
	return OutcomeStorageFailure
}

// Result is what a scan attempt reports back to the operator.
type Result struct {
	Outcome     Outcome         `json:"outcome"`
	Student     *roster.Student `json:"student,omitempty"`
	Record      *ScanRecord     `json:"record,omitempty"`
	CurrentMeal meal.Type       `json:"current_meal"`
	Message     string          `json:"message"`
}

// Resolver matches a payload to an approved student.
type Resolver interface {
	Resolve(ctx context.Context, p roster.Payload) (roster.Student, error)
}

// Scanner runs a decoded payload through roster lookup, meal classification
// and the ledger.
type Scanner struct {
	resolver Resolver
	ledger   *Ledger
	clf      *meal.Classifier
}

// NewScanner wires the scan pipeline.
func NewScanner(resolver Resolver, ledger *Ledger, clf *meal.Classifier) *Scanner {
	return &Scanner{resolver: resolver, ledger: ledger, clf: clf}
}

// Scan processes raw QR text scanned at now. The returned error is nil only
// for a clean Recorded outcome; Result is always populated.
func (s *Scanner) Scan(ctx context.Context, raw []byte, now time.Time) (Result, error) {
	return s.scan(ctx, raw, now, nil)
}

// scan is Scan with an optional hold taken just before the ledger write and
// released when scan returns. A hold error aborts the write.
func (s *Scanner) scan(ctx context.Context, raw []byte, now time.Time, hold func() (release func(), err error)) (Result, error) {
	current := s.clf.Classify(now)
	res := Result{CurrentMeal: current}

	p, err := roster.ParsePayload(raw)
	if err != nil {
		return s.fail(res, fmt.Errorf("%w: %w", ErrDecodeFailure, err))
	}
	st, err := s.resolver.Resolve(ctx, p)
	if err != nil {
		if !errors.Is(err, roster.ErrNotFound) && !errors.Is(err, roster.ErrDataMismatch) {
			err = fmt.Errorf("%w: %v", ErrStorageFailure, err)
		}
		return s.fail(res, err)
	}
	res.Student = &st
	if current == meal.NotMealTime {
		return s.fail(res, ErrNotMealTime)
	}

	if hold != nil {
		release, err := hold()
		if err != nil {
			return s.fail(res, err)
		}
		defer release()
	}
	rec, err := s.ledger.Record(ctx, st, current, now)
	if err != nil && !errors.Is(err, ErrHeadCountStale) {
		return s.fail(res, err)
	}
	res.Outcome = OutcomeRecorded
	res.Record = &rec
	res.Message = fmt.Sprintf("%s successfully recorded for %s at %s",
		st.Name, current.Key(), now.In(s.clf.Location()).Format("15:04:05"))
	return res, err
}

func (s *Scanner) fail(res Result, err error) (Result, error) {
	res.Outcome = OutcomeOf(err)
	res.Message = err.Error()
	return res, err
}

// CurrentMeal reports the live classifier value.
func (s *Scanner) CurrentMeal(now time.Time) meal.Type {
	return s.clf.Classify(now)
}
