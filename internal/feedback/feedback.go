package feedback

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Categories accepted on submission.
var Categories = []string{"food-quality", "hygiene", "service", "menu-variety", "suggestion", "complaint"}

// Status of a feedback entry.
type Status string

const (
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
)

var (
	ErrNotFound        = errors.New("feedback not found")
	ErrUnknownCategory = errors.New("unknown feedback category")
	ErrEmptyMessage    = errors.New("feedback message required")
)

// Entry is one piece of student feedback.
type Entry struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"student_id"`
	StudentName string    `json:"student_name"`
	Category    string    `json:"category"`
	Message     string    `json:"message"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// Repository persists feedback.
type Repository interface {
	CreateFeedback(ctx context.Context, e Entry) error
	Feedback(ctx context.Context, id string) (Entry, error)
	ListFeedback(ctx context.Context, status Status) ([]Entry, error)
	SetFeedbackStatus(ctx context.Context, id string, status Status) error
}

// Service handles feedback submission and triage.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a feedback service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Submit records new pending feedback.
func (s *Service) Submit(ctx context.Context, studentID, studentName, category, message string) (Entry, error) {
	if !validCategory(category) {
		return Entry{}, ErrUnknownCategory
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return Entry{}, ErrEmptyMessage
	}
	e := Entry{
		ID:          uuid.NewString(),
		StudentID:   studentID,
		StudentName: studentName,
		Category:    category,
		Message:     message,
		Status:      StatusPending,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.repo.CreateFeedback(ctx, e); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// List returns feedback newest first, optionally by status.
func (s *Service) List(ctx context.Context, status Status) ([]Entry, error) {
	return s.repo.ListFeedback(ctx, status)
}

// Toggle flips an entry between pending and resolved.
func (s *Service) Toggle(ctx context.Context, id string) (Entry, error) {
	e, err := s.repo.Feedback(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	next := StatusResolved
	if e.Status == StatusResolved {
		next = StatusPending
	}
	if err := s.repo.SetFeedbackStatus(ctx, id, next); err != nil {
		return Entry{}, err
	}
	e.Status = next
	return e, nil
}

func validCategory(c string) bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}
