package connection

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/healthplix/healthplix/internal/platform/apperr"
)

const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"

	// statusDeclined is accepted on input and stored as rejected.
	statusDeclined = "declined"
)

// Request is a doctor's proposal to care for a patient. Only the patient
// changes its status, and only once: pending is the sole non-terminal state.
type Request struct {
	ID           uuid.UUID `json:"id"`
	DoctorEmail  string    `json:"doctor_email"`
	PatientEmail string    `json:"patient_email"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (r *Request) IsTerminal() bool {
	return r.Status == StatusApproved || r.Status == StatusRejected
}

// Involves reports whether email is the doctor or the patient on r.
func (r *Request) Involves(email string) bool {
	return strings.EqualFold(r.DoctorEmail, email) || strings.EqualFold(r.PatientEmail, email)
}

// PendingRequest is a pending request as the patient sees it.
type PendingRequest struct {
	Request
	DoctorName string `json:"doctor_name"`
}

// ParseTargetStatus validates a status a patient may set. "declined" is an
// alias of "rejected".
func ParseTargetStatus(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case StatusApproved:
		return StatusApproved, nil
	case StatusRejected, statusDeclined:
		return StatusRejected, nil
	case "":
		return "", apperr.Validation("status is required")
	default:
		return "", apperr.Validation("status must be %q or %q", StatusApproved, StatusRejected)
	}
}

// ParseStatusFilter validates an optional list filter.
func ParseStatusFilter(s string) (string, error) {
	switch s = strings.ToLower(strings.TrimSpace(s)); s {
	case "", StatusPending, StatusApproved, StatusRejected:
		return s, nil
	case statusDeclined:
		return StatusRejected, nil
	default:
		return "", apperr.Validation("unknown status %q", s)
	}
}
