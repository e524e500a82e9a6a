package profile

import (
	"net/mail"
	"strings"
	"time"

	"github.com/healthplix/healthplix/internal/platform/apperr"
)

const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
)

// UnknownName is shown in place of a display name whose profile is missing.
const UnknownName = "Unknown"

// Profile is an account record. It is immutable after registration.
type Profile struct {
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Age       int       `json:"age"`
	Address   *string   `json:"address,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func (p *Profile) IsDoctor() bool  { return p.Role == RoleDoctor }
func (p *Profile) IsPatient() bool { return p.Role == RolePatient }

// NormalizeEmail trims and lowercases s and checks it is a bare address.
func NormalizeEmail(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", apperr.Validation("email is required")
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return "", apperr.Validation("invalid email %q", s)
	}
	return s, nil
}

// DisplayName returns the profile's name, or UnknownName for a nil profile.
func DisplayName(p *Profile) string {
	if p == nil || p.Name == "" {
		return UnknownName
	}
	return p.Name
}
