package careassignment

import (
	"time"

	"github.com/google/uuid"
)

// Assignment links a patient to the one doctor currently caring for them.
// Name and Age are copied from the patient profile when the request is
// approved. Rows are never updated: a new approval replaces the row.
type Assignment struct {
	ID           uuid.UUID  `json:"id"`
	PatientEmail string     `json:"patient_email"`
	DoctorEmail  string     `json:"doctor_email"`
	Name         string     `json:"name"`
	Age          int        `json:"age"`
	RequestID    *uuid.UUID `json:"request_id,omitempty"`
	AssignedAt   time.Time  `json:"assigned_at"`
}

// AssignedDoctor is the patient's view of their assignment.
type AssignedDoctor struct {
	Assignment
	DoctorName string `json:"doctor_name"`
}
