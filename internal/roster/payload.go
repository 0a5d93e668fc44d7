package roster

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidPayload means the scanned text is not a mess credential.
var ErrInvalidPayload = errors.New("invalid qr payload")

// Payload is the identity carried by a student's QR code. Issued codes carry
// more fields (id, branch, timestamp); only these take part in matching.
type Payload struct {
	Email    string `json:"email" validate:"required,email"`
	Name     string `json:"name" validate:"required"`
	RollNo   string `json:"rollNo" validate:"required"`
	MessName string `json:"messName" validate:"required"`
}

var validate = validator.New()

// ParsePayload decodes and validates raw QR text.
func ParsePayload(raw []byte) (Payload, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return Payload{}, fmt.Errorf("%w: empty", ErrInvalidPayload)
	}
	var p Payload
	if err := json.Unmarshal([]byte(trimmed), &p); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return Payload{}, fmt.Errorf("%w: field %s failed %s", ErrInvalidPayload, verrs[0].Field(), verrs[0].Tag())
		}
		return Payload{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return p, nil
}
