package prescription

import (
	"time"

	"github.com/google/uuid"
)

// Prescription is free text a doctor writes for one of their assigned
// patients. PatientName is copied from the care assignment at write time.
type Prescription struct {
	ID           uuid.UUID `json:"id"`
	PatientEmail string    `json:"patient_email"`
	DoctorEmail  string    `json:"doctor_email"`
	PatientName  string    `json:"patient_name"`
	Text         string    `json:"prescription_text"`
	CreatedAt    time.Time `json:"created_at"`
}
