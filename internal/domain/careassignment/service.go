package careassignment

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/healthplix/healthplix/internal/domain/profile"
	"github.com/healthplix/healthplix/internal/platform/apperr"
)

var ErrNoDoctorAssigned = apperr.NotFound("no doctor assigned")

// ProfileLookup resolves display names for many emails at once.
type ProfileLookup interface {
	LookupInSet(ctx context.Context, emails []string) (map[string]*profile.Profile, error)
}

type Service struct {
	assignments AssignmentRepository
	profiles    ProfileLookup
}

func NewService(assignments AssignmentRepository, profiles ProfileLookup) *Service {
	return &Service{assignments: assignments, profiles: profiles}
}

// ListForDoctor returns the doctor's patient roster ordered by name.
func (s *Service) ListForDoctor(ctx context.Context, doctorEmail string) ([]*Assignment, error) {
	items, err := s.assignments.ListByDoctor(ctx, doctorEmail)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Assignment{}
	}
	return items, nil
}

// AssignedDoctor returns the patient's assignment with the doctor's
// display name. A missing or unreadable doctor profile yields "Unknown".
func (s *Service) AssignedDoctor(ctx context.Context, patientEmail string) (*AssignedDoctor, error) {
	a, err := s.assignments.GetByPatient(ctx, patientEmail)
	if err != nil {
		return nil, err
	}

	out := &AssignedDoctor{Assignment: *a, DoctorName: profile.UnknownName}
	names, err := s.profiles.LookupInSet(ctx, []string{a.DoctorEmail})
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("doctor_email", a.DoctorEmail).Msg("doctor name lookup failed")
		return out, nil
	}
	out.DoctorName = profile.DisplayName(names[a.DoctorEmail])
	return out, nil
}

// IsAssigned reports whether patientEmail is currently assigned to
// doctorEmail.
func (s *Service) IsAssigned(ctx context.Context, doctorEmail, patientEmail string) (bool, error) {
	a, err := s.assignments.GetByPatient(ctx, patientEmail)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return strings.EqualFold(a.DoctorEmail, doctorEmail), nil
}

// Current returns the patient's assignment.
func (s *Service) Current(ctx context.Context, patientEmail string) (*Assignment, error) {
	return s.assignments.GetByPatient(ctx, patientEmail)
}
