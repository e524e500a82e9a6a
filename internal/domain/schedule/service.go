package schedule

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/healthplix/healthplix/internal/domain/profile"
	"github.com/healthplix/healthplix/internal/platform/apperr"
	"github.com/healthplix/healthplix/internal/platform/changefeed"
)

const maxNotesLen = 2000

// AssignmentChecker reports whether a patient is assigned to a doctor.
type AssignmentChecker interface {
	IsAssigned(ctx context.Context, doctorEmail, patientEmail string) (bool, error)
}

type Service struct {
	entries     EntryRepository
	assignments AssignmentChecker
	publisher   changefeed.Publisher
	now         func() time.Time
}

func NewService(entries EntryRepository, assignments AssignmentChecker) *Service {
	return &Service{
		entries:     entries,
		assignments: assignments,
		publisher:   changefeed.Discard,
		now:         time.Now,
	}
}

func (s *Service) SetPublisher(p changefeed.Publisher) {
	if p == nil {
		p = changefeed.Discard
	}
	s.publisher = p
}

// AddEntry books an appointment on the doctor's schedule. A linked patient
// must be assigned to the doctor.
func (s *Service) AddEntry(ctx context.Context, doctorEmail string, e *Entry) error {
	e.DoctorEmail = doctorEmail

	e.Date = strings.TrimSpace(e.Date)
	if _, err := time.Parse(DateLayout, e.Date); err != nil {
		return apperr.Validation("date must be YYYY-MM-DD")
	}
	e.Time = strings.TrimSpace(e.Time)
	if len(e.Time) != len(TimeLayout) {
		return apperr.Validation("time must be HH:MM")
	}
	if _, err := time.Parse(TimeLayout, e.Time); err != nil {
		return apperr.Validation("time must be HH:MM")
	}
	e.PatientName = strings.TrimSpace(e.PatientName)
	if e.PatientName == "" {
		return apperr.Validation("patient_name is required")
	}
	e.Notes = strings.TrimSpace(e.Notes)
	if len(e.Notes) > maxNotesLen {
		return apperr.Validation("notes must be at most %d characters", maxNotesLen)
	}

	if e.PatientEmail != nil {
		email, err := profile.NormalizeEmail(*e.PatientEmail)
		if err != nil {
			return err
		}
		ok, err := s.assignments.IsAssigned(ctx, doctorEmail, email)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.Forbidden("patient is not assigned to this doctor")
		}
		e.PatientEmail = &email
	}

	if err := s.entries.Create(ctx, e); err != nil {
		return err
	}

	change, err := changefeed.NewChange(changefeed.Insert, changefeed.TableScheduleEntries, nil, e)
	if err == nil {
		err = s.publisher.Publish(ctx, change)
	}
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("table", changefeed.TableScheduleEntries).Msg("publish change")
	}
	return nil
}

// ListForDay returns the doctor's entries for date, ordered by time. An
// empty date means today in the server's local time zone.
func (s *Service) ListForDay(ctx context.Context, doctorEmail, date string) ([]*Entry, error) {
	var day time.Time
	if date = strings.TrimSpace(date); date == "" {
		y, m, d := s.now().Date()
		day = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	} else {
		var err error
		if day, err = time.Parse(DateLayout, date); err != nil {
			return nil, apperr.Validation("date must be YYYY-MM-DD")
		}
	}

	items, err := s.entries.ListForDay(ctx, doctorEmail, day)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*Entry{}
	}
	return items, nil
}
