package schedule

import (
	"time"

	"github.com/google/uuid"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Entry is one appointment on a doctor's day. PatientEmail is set when the
// appointment is with a registered, assigned patient; walk-ins carry only a
// name.
type Entry struct {
	ID           uuid.UUID `json:"id"`
	DoctorEmail  string    `json:"doctor_email"`
	PatientEmail *string   `json:"patient_email,omitempty"`
	PatientName  string    `json:"patient_name"`
	Date         string    `json:"date"`
	Time         string    `json:"time"`
	Notes        string    `json:"notes"`
	CreatedAt    time.Time `json:"created_at"`
}
