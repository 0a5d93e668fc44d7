package roster

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound means no approved student has the payload's email.
	ErrNotFound = errors.New("student not found or registration not approved")
	// ErrDataMismatch means the email matched but the other fields did not.
	ErrDataMismatch = errors.New("qr data does not match roster")
)

// Directory reads students by email. Implementations return ErrNotFound when
// no record exists.
type Directory interface {
	StudentByEmail(ctx context.Context, email string) (Student, error)
}

// Lookup resolves scanned payloads against the approved roster.
type Lookup struct {
	dir Directory
}

// NewLookup creates a lookup over dir.
func NewLookup(dir Directory) *Lookup {
	return &Lookup{dir: dir}
}

// Resolve returns the approved student the payload was issued to.
func (l *Lookup) Resolve(ctx context.Context, p Payload) (Student, error) {
	st, err := l.dir.StudentByEmail(ctx, p.Email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Student{}, ErrNotFound
		}
		return Student{}, fmt.Errorf("roster read: %w", err)
	}
	if st.Status != StatusApproved {
		return Student{}, ErrNotFound
	}
	if st.RollNo != p.RollNo || st.Name != p.Name || st.Mess != p.MessName {
		return Student{}, ErrDataMismatch
	}
	return st, nil
}
