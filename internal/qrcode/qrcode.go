// Package qrcode issues the QR credential a student shows at the mess counter.
package qrcode

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	qr "github.com/skip2/go-qrcode"

	"messhall/internal/roster"
)

// ErrNotApproved is returned for students who may not scan yet.
var ErrNotApproved = errors.New("student is not approved")

// DefaultSize is the PNG edge in pixels.
const DefaultSize = 300

// Credential is the JSON encoded into the code. Scanners read email, name,
// rollNo and messName; the rest is informational.
type Credential struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	RollNo     string `json:"rollNo"`
	MessName   string `json:"messName"`
	Email      string `json:"email"`
	HostelName string `json:"hostelName"`
	Branch     string `json:"branch"`
	Timestamp  string `json:"timestamp"`
}

// For builds the credential for an approved student.
func For(st roster.Student, issuedAt time.Time) (Credential, error) {
	if st.Status != roster.StatusApproved {
		return Credential{}, ErrNotApproved
	}
	return Credential{
		ID:         st.ID,
		Name:       st.Name,
		RollNo:     st.RollNo,
		MessName:   st.Mess,
		Email:      st.Email,
		HostelName: st.Hostel,
		Branch:     st.Branch,
		Timestamp:  issuedAt.UTC().Format(time.RFC3339),
	}, nil
}

// Payload returns the QR text.
func (c Credential) Payload() ([]byte, error) {
	return json.Marshal(c)
}

// PNG renders the credential. size <= 0 uses DefaultSize.
func (c Credential) PNG(size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultSize
	}
	payload, err := c.Payload()
	if err != nil {
		return nil, err
	}
	png, err := qr.Encode(string(payload), qr.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}
