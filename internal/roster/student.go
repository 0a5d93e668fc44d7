package roster

import "time"

// Status is a registration state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// Student is a registered mess member.
type Student struct {
	ID           string     `json:"id"`
	RollNo       string     `json:"roll_no"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Branch       string     `json:"branch"`
	Hostel       string     `json:"hostel"`
	Mess         string     `json:"mess"`
	Room         string     `json:"room"`
	Phone        string     `json:"phone"`
	Photo        string     `json:"photo,omitempty"`
	PasswordHash string     `json:"-"`
	Status       Status     `json:"registration_status"`
	CreatedAt    time.Time  `json:"created_at"`
	ApprovedAt   *time.Time `json:"approved_at,omitempty"`
	DecidedAt    *time.Time `json:"decided_at,omitempty"`
}
