package registration

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"messhall/internal/roster"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrPending            = errors.New("registration is pending approval")
	ErrRejected           = errors.New("registration has been rejected")
	ErrInvalidTransition  = errors.New("registration already decided")
)

// ValidationError reports a rejected signup field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string { return e.Field + ": " + e.Message }

// Repository stores student registrations.
type Repository interface {
	CreateStudent(ctx context.Context, st roster.Student) error
	StudentByID(ctx context.Context, id string) (roster.Student, error)
	StudentByEmail(ctx context.Context, email string) (roster.Student, error)
	ListStudents(ctx context.Context, status roster.Status) ([]roster.Student, error)
	// UpdateStudentStatus decides a pending registration; any other status
	// yields ErrInvalidTransition.
	UpdateStudentStatus(ctx context.Context, id string, status roster.Status, at time.Time) error
}

// PhotoUploader stores a signup photo and returns its reference.
type PhotoUploader interface {
	UploadPhoto(ctx context.Context, data, name string) (string, error)
}

// Signup is the registration form.
type Signup struct {
	Name            string `json:"name" binding:"required"`
	Email           string `json:"email" binding:"required"`
	Password        string `json:"password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
	RollNo          string `json:"roll_no" binding:"required"`
	Branch          string `json:"branch" binding:"required"`
	Hostel          string `json:"hostel" binding:"required"`
	Mess            string `json:"mess" binding:"required"`
	Room            string `json:"room"`
	Phone           string `json:"phone" binding:"required"`
	Photo           string `json:"photo"`
}

// AdminCredentials is the configured administrator login.
type AdminCredentials struct {
	Email    string
	Password string
}

var phonePattern = regexp.MustCompile(`^\d{10}$`)

// Service handles signup, approval and login.
type Service struct {
	repo   Repository
	photos PhotoUploader
	domain string
	admin  AdminCredentials
	now    func() time.Time
}

// NewService creates a registration service. photos may be nil, in which case
// the submitted photo reference is stored as given.
func NewService(repo Repository, photos PhotoUploader, emailDomain string, admin AdminCredentials) *Service {
	return &Service{repo: repo, photos: photos, domain: strings.TrimPrefix(emailDomain, "@"), admin: admin, now: time.Now}
}

func (s *Service) validate(in Signup) error {
	if strings.TrimSpace(in.Name) == "" {
		return &ValidationError{Field: "name", Message: "required"}
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return &ValidationError{Field: "email", Message: "invalid address"}
	}
	if s.domain != "" && email[at+1:] != s.domain {
		return &ValidationError{Field: "email", Message: "must be a @" + s.domain + " address"}
	}
	if len(in.Password) < 6 {
		return &ValidationError{Field: "password", Message: "must be at least 6 characters"}
	}
	if in.Password != in.ConfirmPassword {
		return &ValidationError{Field: "confirm_password", Message: "passwords do not match"}
	}
	if !phonePattern.MatchString(in.Phone) {
		return &ValidationError{Field: "phone", Message: "must be 10 digits"}
	}
	for field, v := range map[string]string{"roll_no": in.RollNo, "branch": in.Branch, "hostel": in.Hostel, "mess": in.Mess} {
		if strings.TrimSpace(v) == "" {
			return &ValidationError{Field: field, Message: "required"}
		}
	}
	return nil
}

// Register creates a pending registration.
func (s *Service) Register(ctx context.Context, in Signup) (roster.Student, error) {
	if err := s.validate(in); err != nil {
		return roster.Student{}, err
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := s.repo.StudentByEmail(ctx, email); err == nil {
		return roster.Student{}, ErrEmailTaken
	} else if !errors.Is(err, roster.ErrNotFound) {
		return roster.Student{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return roster.Student{}, fmt.Errorf("hash password: %w", err)
	}
	st := roster.Student{
		ID:           uuid.NewString(),
		RollNo:       strings.TrimSpace(in.RollNo),
		Name:         strings.TrimSpace(in.Name),
		Email:        email,
		Branch:       in.Branch,
		Hostel:       in.Hostel,
		Mess:         in.Mess,
		Room:         in.Room,
		Phone:        in.Phone,
		Photo:        in.Photo,
		PasswordHash: string(hash),
		Status:       roster.StatusPending,
		CreatedAt:    s.now().UTC(),
	}
	if in.Photo != "" && s.photos != nil {
		url, err := s.photos.UploadPhoto(ctx, in.Photo, st.RollNo)
		if err != nil {
			return roster.Student{}, fmt.Errorf("upload photo: %w", err)
		}
		st.Photo = url
	}
	if err := s.repo.CreateStudent(ctx, st); err != nil {
		return roster.Student{}, err
	}
	return st, nil
}

// Approve admits a pending student to the roster.
func (s *Service) Approve(ctx context.Context, id string) (roster.Student, error) {
	return s.decide(ctx, id, roster.StatusApproved)
}

// Reject declines a pending registration.
func (s *Service) Reject(ctx context.Context, id string) (roster.Student, error) {
	return s.decide(ctx, id, roster.StatusRejected)
}

func (s *Service) decide(ctx context.Context, id string, status roster.Status) (roster.Student, error) {
	st, err := s.repo.StudentByID(ctx, id)
	if err != nil {
		return roster.Student{}, err
	}
	if st.Status != roster.StatusPending {
		return roster.Student{}, ErrInvalidTransition
	}
	at := s.now().UTC()
	if err := s.repo.UpdateStudentStatus(ctx, id, status, at); err != nil {
		return roster.Student{}, err
	}
	return s.repo.StudentByID(ctx, id)
}

// Student returns one registration.
func (s *Service) Student(ctx context.Context, id string) (roster.Student, error) {
	return s.repo.StudentByID(ctx, id)
}

// Students lists registrations, optionally by status.
func (s *Service) Students(ctx context.Context, status roster.Status) ([]roster.Student, error) {
	if status != "" && !status.Valid() {
		return nil, &ValidationError{Field: "status", Message: "unknown status"}
	}
	return s.repo.ListStudents(ctx, status)
}

// Authenticate checks a student login. Pending and rejected students are
// refused with their status.
func (s *Service) Authenticate(ctx context.Context, email, password string) (roster.Student, error) {
	st, err := s.repo.StudentByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, roster.ErrNotFound) {
			return roster.Student{}, ErrInvalidCredentials
		}
		return roster.Student{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(st.PasswordHash), []byte(password)) != nil {
		return roster.Student{}, ErrInvalidCredentials
	}
	switch st.Status {
	case roster.StatusPending:
		return st, ErrPending
	case roster.StatusRejected:
		return st, ErrRejected
	}
	return st, nil
}

// AuthenticateAdmin checks the configured administrator credential.
func (s *Service) AuthenticateAdmin(email, password string) error {
	if s.admin.Email == "" || s.admin.Password == "" {
		return ErrInvalidCredentials
	}
	emailOK := strings.EqualFold(strings.TrimSpace(email), s.admin.Email)
	pwOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.admin.Password)) == 1
	if !emailOK || !pwOK {
		return ErrInvalidCredentials
	}
	return nil
}
