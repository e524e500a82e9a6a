package connection

import (
	"context"

	"github.com/google/uuid"
)

type RequestRepository interface {
	// Create inserts a pending request. A second pending request for the
	// same pair fails with ErrDuplicateRequest.
	Create(ctx context.Context, r *Request) error
	GetByID(ctx context.Context, id uuid.UUID) (*Request, error)
	// GetForUpdate reads the request and locks its row until the enclosing
	// transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Request, error)
	// FindPending returns the pair's pending request, or nil.
	FindPending(ctx context.Context, doctorEmail, patientEmail string) (*Request, error)
	ListPendingForPatient(ctx context.Context, patientEmail string) ([]*Request, error)
	ListByDoctor(ctx context.Context, doctorEmail, status string, limit, offset int) ([]*Request, int, error)
	// UpdateStatusIfPending moves a pending request to status. It returns
	// nil when the request was no longer pending.
	UpdateStatusIfPending(ctx context.Context, id uuid.UUID, status string) (*Request, error)
}
