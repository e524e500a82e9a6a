package careassignment

import "context"

type AssignmentRepository interface {
	// ReplaceForPatient removes the patient's current assignment, if any, and
	// inserts a. It returns the removed row. Callers run it inside a
	// transaction so the swap is atomic.
	ReplaceForPatient(ctx context.Context, a *Assignment) (*Assignment, error)
	GetByPatient(ctx context.Context, patientEmail string) (*Assignment, error)
	ListByDoctor(ctx context.Context, doctorEmail string) ([]*Assignment, error)
}
