package prescription

import "context"

type PrescriptionRepository interface {
	Create(ctx context.Context, p *Prescription) error
	ListByPatient(ctx context.Context, patientEmail string, limit, offset int) ([]*Prescription, int, error)
	ListByDoctor(ctx context.Context, doctorEmail string, limit, offset int) ([]*Prescription, int, error)
}
