package prescription

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/healthplix/healthplix/internal/domain/careassignment"
	"github.com/healthplix/healthplix/internal/domain/profile"
	"github.com/healthplix/healthplix/internal/platform/apperr"
	"github.com/healthplix/healthplix/internal/platform/changefeed"
)

const maxTextLen = 10000

var ErrNotAssigned = apperr.Forbidden("patient is not assigned to this doctor")

// AssignmentReader returns a patient's current care assignment.
type AssignmentReader interface {
	Current(ctx context.Context, patientEmail string) (*careassignment.Assignment, error)
}

type Service struct {
	prescriptions PrescriptionRepository
	assignments   AssignmentReader
	publisher     changefeed.Publisher
}

func NewService(prescriptions PrescriptionRepository, assignments AssignmentReader) *Service {
	return &Service{prescriptions: prescriptions, assignments: assignments, publisher: changefeed.Discard}
}

func (s *Service) SetPublisher(p changefeed.Publisher) {
	if p == nil {
		p = changefeed.Discard
	}
	s.publisher = p
}

// Write stores a prescription from doctorEmail for one of their assigned
// patients.
func (s *Service) Write(ctx context.Context, doctorEmail, patientEmail, text string) (*Prescription, error) {
	patientEmail, err := profile.NormalizeEmail(patientEmail)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.Validation("prescription_text is required")
	}
	if len(text) > maxTextLen {
		return nil, apperr.Validation("prescription_text must be at most %d characters", maxTextLen)
	}

	a, err := s.assignments.Current(ctx, patientEmail)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return nil, ErrNotAssigned
	}
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(a.DoctorEmail, doctorEmail) {
		return nil, ErrNotAssigned
	}

	p := &Prescription{
		PatientEmail: patientEmail,
		DoctorEmail:  a.DoctorEmail,
		PatientName:  a.Name,
		Text:         text,
	}
	if err := s.prescriptions.Create(ctx, p); err != nil {
		return nil, err
	}

	change, err := changefeed.NewChange(changefeed.Insert, changefeed.TablePrescriptions, nil, p)
	if err == nil {
		err = s.publisher.Publish(ctx, change)
	}
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("table", changefeed.TablePrescriptions).Msg("publish change")
	}
	return p, nil
}

// ListOwn returns the caller's prescriptions, newest first: the ones
// written for them if they are a patient, the ones they wrote if a doctor.
func (s *Service) ListOwn(ctx context.Context, email, role string, limit, offset int) ([]*Prescription, int, error) {
	var (
		items []*Prescription
		total int
		err   error
	)
	switch role {
	case profile.RolePatient:
		items, total, err = s.prescriptions.ListByPatient(ctx, email, limit, offset)
	case profile.RoleDoctor:
		items, total, err = s.prescriptions.ListByDoctor(ctx, email, limit, offset)
	default:
		return nil, 0, apperr.Forbidden("unknown role %q", role)
	}
	if err != nil {
		return nil, 0, err
	}
	if items == nil {
		items = []*Prescription{}
	}
	return items, total, nil
}
