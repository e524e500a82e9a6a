package connection

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthplix/healthplix/internal/domain/careassignment"
	"github.com/healthplix/healthplix/internal/domain/profile"
	"github.com/healthplix/healthplix/internal/platform/apperr"
	"github.com/healthplix/healthplix/internal/platform/changefeed"
	"github.com/healthplix/healthplix/internal/platform/db"
)

var (
	ErrRequestNotFound   = apperr.NotFound("connection request not found")
	ErrDuplicateRequest  = apperr.Conflict("duplicate_request", "a pending request for this doctor and patient already exists")
	ErrInvalidTransition = apperr.Conflict("invalid_transition", "request has already been answered")
)

// ProfileLookup is the profile store as the ledger uses it.
type ProfileLookup interface {
	Get(ctx context.Context, email string) (*profile.Profile, error)
	LookupInSet(ctx context.Context, emails []string) (map[string]*profile.Profile, error)
}

// AssignmentWriter replaces a patient's care assignment. It must honour a
// transaction carried in ctx.
type AssignmentWriter interface {
	ReplaceForPatient(ctx context.Context, a *careassignment.Assignment) (*careassignment.Assignment, error)
}

type Service struct {
	requests    RequestRepository
	profiles    ProfileLookup
	assignments AssignmentWriter
	tx          db.TxRunner
	publisher   changefeed.Publisher
}

func NewService(requests RequestRepository, profiles ProfileLookup, assignments AssignmentWriter, tx db.TxRunner) *Service {
	return &Service{
		requests:    requests,
		profiles:    profiles,
		assignments: assignments,
		tx:          tx,
		publisher:   changefeed.Discard,
	}
}

// SetPublisher attaches the change feed. Without one, changes are dropped.
func (s *Service) SetPublisher(p changefeed.Publisher) {
	if p == nil {
		p = changefeed.Discard
	}
	s.publisher = p
}

// CreateRequest records a pending request from doctorEmail to patientEmail.
func (s *Service) CreateRequest(ctx context.Context, doctorEmail, patientEmail string) (*Request, error) {
	doctorEmail, err := profile.NormalizeEmail(doctorEmail)
	if err != nil {
		return nil, err
	}
	patientEmail, err = profile.NormalizeEmail(patientEmail)
	if err != nil {
		return nil, err
	}
	if doctorEmail == patientEmail {
		return nil, apperr.Validation("a doctor cannot send a request to themselves")
	}

	doctor, err := s.profiles.Get(ctx, doctorEmail)
	if err != nil {
		return nil, err
	}
	if !doctor.IsDoctor() {
		return nil, apperr.Validation("%s is not a doctor", doctorEmail)
	}
	patient, err := s.profiles.Get(ctx, patientEmail)
	if apperr.KindOf(err) == apperr.KindNotFound {
		return nil, apperr.NotFound("patient %s not found", patientEmail)
	}
	if err != nil {
		return nil, err
	}
	if !patient.IsPatient() {
		return nil, apperr.Validation("%s is not a patient", patientEmail)
	}

	req := &Request{DoctorEmail: doctorEmail, PatientEmail: patientEmail}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		existing, err := s.requests.FindPending(ctx, doctorEmail, patientEmail)
		if err != nil {
			return err
		}
		if existing != nil {
			return ErrDuplicateRequest
		}
		return s.requests.Create(ctx, req)
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, changefeed.Insert, changefeed.TableConnectionRequests, nil, req)
	return req, nil
}

// ListPendingForPatient returns the patient's pending requests, oldest
// first, each with the requesting doctor's name. Names come from a single
// lookup; if it fails the list is still returned with "Unknown" names.
func (s *Service) ListPendingForPatient(ctx context.Context, patientEmail string) ([]*PendingRequest, error) {
	reqs, err := s.requests.ListPendingForPatient(ctx, patientEmail)
	if err != nil {
		return nil, err
	}

	emails := make([]string, 0, len(reqs))
	for _, r := range reqs {
		emails = append(emails, r.DoctorEmail)
	}
	var names map[string]*profile.Profile
	if len(emails) > 0 {
		names, err = s.profiles.LookupInSet(ctx, emails)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).
				Str("patient_email", patientEmail).
				Int("requests", len(reqs)).
				Msg("doctor name lookup failed; showing placeholders")
			names = nil
		}
	}

	out := make([]*PendingRequest, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, &PendingRequest{Request: *r, DoctorName: profile.DisplayName(names[r.DoctorEmail])})
	}
	return out, nil
}

// GetRequest returns a request to one of its parties.
func (s *Service) GetRequest(ctx context.Context, callerEmail string, id uuid.UUID) (*Request, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !req.Involves(callerEmail) {
		return nil, ErrRequestNotFound
	}
	return req, nil
}

// ListForDoctor returns the doctor's sent requests, newest first,
// optionally filtered by status.
func (s *Service) ListForDoctor(ctx context.Context, doctorEmail, status string, limit, offset int) ([]*Request, int, error) {
	status, err := ParseStatusFilter(status)
	if err != nil {
		return nil, 0, err
	}
	items, total, err := s.requests.ListByDoctor(ctx, doctorEmail, status, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	if items == nil {
		items = []*Request{}
	}
	return items, total, nil
}

// SetStatus answers a pending request on behalf of its patient.
//
// Approval reads the patient's profile, replaces their care assignment and
// marks the request approved in one transaction; if any step fails nothing
// is kept. Store failures are returned as Integrity errors; a missing
// patient profile is returned as is, since retrying cannot fix it.
//
// Only a repeat of the status the request already has is a no-op. Moving
// an answered request to the other status, approved to rejected or back,
// is ErrInvalidTransition. Callers who are not a party to the request get
// ErrRequestNotFound; the requesting doctor gets a Forbidden error.
func (s *Service) SetStatus(ctx context.Context, callerEmail string, id uuid.UUID, status string) (*Request, error) {
	target, err := ParseTargetStatus(status)
	if err != nil {
		return nil, err
	}

	var (
		before, after      *Request
		inserted, replaced *careassignment.Assignment
		noop               bool
	)
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		req, err := s.requests.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !strings.EqualFold(req.PatientEmail, callerEmail) {
			if req.Involves(callerEmail) {
				return apperr.Forbidden("only the patient can answer this request")
			}
			return ErrRequestNotFound
		}
		if req.Status == target {
			noop, after = true, req
			return nil
		}
		if req.IsTerminal() {
			return ErrInvalidTransition
		}
		before = req

		if target == StatusApproved {
			patient, err := s.profiles.Get(ctx, req.PatientEmail)
			switch apperr.KindOf(err) {
			case apperr.KindNotFound, apperr.KindValidation:
				return err
			}
			if err != nil {
				return apperr.Integrity(err, "could not read patient profile")
			}
			a := &careassignment.Assignment{
				PatientEmail: req.PatientEmail,
				DoctorEmail:  req.DoctorEmail,
				Name:         patient.Name,
				Age:          patient.Age,
				RequestID:    &req.ID,
			}
			if replaced, err = s.assignments.ReplaceForPatient(ctx, a); err != nil {
				return apperr.Integrity(err, "could not record care assignment")
			}
			inserted = a
		}

		updated, err := s.requests.UpdateStatusIfPending(ctx, id, target)
		if err != nil {
			return apperr.Integrity(err, "could not update request")
		}
		if updated == nil {
			return apperr.Integrity(errors.New("request changed during update"), "could not update request")
		}
		after = updated
		return nil
	})
	if err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return nil, err
		}
		return nil, apperr.Integrity(err, "could not update request")
	}
	if noop {
		return after, nil
	}

	s.publish(ctx, changefeed.Update, changefeed.TableConnectionRequests, before, after)
	if inserted != nil {
		if replaced != nil {
			s.publish(ctx, changefeed.Delete, changefeed.TableCareAssignments, replaced, nil)
		}
		s.publish(ctx, changefeed.Insert, changefeed.TableCareAssignments, nil, inserted)
	}
	return after, nil
}

// publish reports a committed change. Failures are logged: the write has
// already happened and subscribers re-fetch on the next event anyway.
func (s *Service) publish(ctx context.Context, typ changefeed.Type, table string, oldRow, newRow interface{}) {
	change, err := changefeed.NewChange(typ, table, oldRow, newRow)
	if err == nil {
		err = s.publisher.Publish(ctx, change)
	}
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("table", table).Str("type", string(typ)).Msg("publish change")
	}
}
