package careclient

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// PatientAPI is the part of Client the inbox uses.
type PatientAPI interface {
	PendingRequests(ctx context.Context) ([]PendingRequest, error)
	AssignedDoctor(ctx context.Context) (*AssignedDoctor, error)
	Approve(ctx context.Context, id string) (*Request, error)
	Reject(ctx context.Context, id string) (*Request, error)
	Watch(ctx context.Context, tables []string, fn func(Event)) error
}

// PatientInbox caches a patient's pending requests and assigned doctor.
// Change events for the patient mark the cached data stale; the next read
// re-fetches it. Events are never applied to the cache directly.
type PatientInbox struct {
	api   PatientAPI
	email string

	mu           sync.Mutex
	pending      map[string]PendingRequest
	order        []string
	pendingValid bool
	pendingGen   uint64
	doctor       *AssignedDoctor
	doctorValid  bool
	doctorGen    uint64

	inflight singleflight.Group
}

// NewPatientInbox builds an inbox for patientEmail. The server stores
// addresses lowercased, so the email is normalized the same way before it
// is matched against change events.
func NewPatientInbox(api PatientAPI, patientEmail string) *PatientInbox {
	return &PatientInbox{api: api, email: strings.ToLower(strings.TrimSpace(patientEmail))}
}

// Pending returns the pending requests, oldest first.
func (in *PatientInbox) Pending(ctx context.Context) ([]PendingRequest, error) {
	in.mu.Lock()
	if in.pendingValid {
		out := in.pendingLocked()
		in.mu.Unlock()
		return out, nil
	}
	gen := in.pendingGen
	in.mu.Unlock()

	v, err, _ := in.inflight.Do("pending", func() (interface{}, error) {
		return in.api.PendingRequests(ctx)
	})
	if err != nil {
		return nil, err
	}
	items := v.([]PendingRequest)

	in.mu.Lock()
	defer in.mu.Unlock()
	in.pending = make(map[string]PendingRequest, len(items))
	in.order = in.order[:0]
	for _, r := range items {
		in.pending[r.ID] = r
		in.order = append(in.order, r.ID)
	}
	// an event that arrived during the fetch keeps the cache stale
	in.pendingValid = in.pendingGen == gen
	return in.pendingLocked(), nil
}

func (in *PatientInbox) pendingLocked() []PendingRequest {
	out := make([]PendingRequest, 0, len(in.order))
	for _, id := range in.order {
		out = append(out, in.pending[id])
	}
	return out
}

// Doctor returns the assigned doctor, or nil.
func (in *PatientInbox) Doctor(ctx context.Context) (*AssignedDoctor, error) {
	in.mu.Lock()
	if in.doctorValid {
		d := in.doctor
		in.mu.Unlock()
		return d, nil
	}
	gen := in.doctorGen
	in.mu.Unlock()

	v, err, _ := in.inflight.Do("doctor", func() (interface{}, error) {
		return in.api.AssignedDoctor(ctx)
	})
	if err != nil {
		return nil, err
	}
	d := v.(*AssignedDoctor)

	in.mu.Lock()
	defer in.mu.Unlock()
	in.doctor, in.doctorValid = d, in.doctorGen == gen
	return d, nil
}

// Approve answers request id. While an answer for id is in flight, further
// Approve or Reject calls for it wait and share its result instead of
// sending a second request.
func (in *PatientInbox) Approve(ctx context.Context, id string) (*Request, error) {
	return in.respond(ctx, id, in.api.Approve)
}

func (in *PatientInbox) Reject(ctx context.Context, id string) (*Request, error) {
	return in.respond(ctx, id, in.api.Reject)
}

func (in *PatientInbox) respond(ctx context.Context, id string, call func(context.Context, string) (*Request, error)) (*Request, error) {
	v, err, _ := in.inflight.Do("respond:"+id, func() (interface{}, error) {
		return call(ctx, id)
	})
	// success or failure, the server state may have moved
	in.Invalidate()
	if err != nil {
		return nil, err
	}
	return v.(*Request), nil
}

// Invalidate marks everything stale.
func (in *PatientInbox) Invalidate() {
	in.mu.Lock()
	in.invalidatePendingLocked()
	in.invalidateDoctorLocked()
	in.mu.Unlock()
}

// Handle applies a change event to the cache.
func (in *PatientInbox) Handle(ev Event) {
	if !ev.Touches("patient_email", in.email) {
		return
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	switch ev.Table {
	case TableConnectionRequests:
		in.invalidatePendingLocked()
	case TableCareAssignments:
		in.invalidateDoctorLocked()
	}
}

func (in *PatientInbox) invalidatePendingLocked() {
	in.pendingValid = false
	in.pendingGen++
}

func (in *PatientInbox) invalidateDoctorLocked() {
	in.doctorValid = false
	in.doctorGen++
}

// Watch keeps the cache current until ctx ends. Everything is invalidated
// when the stream drops, since events may have been missed.
func (in *PatientInbox) Watch(ctx context.Context) error {
	err := in.api.Watch(ctx, []string{TableConnectionRequests, TableCareAssignments}, in.Handle)
	in.Invalidate()
	return err
}
