// Package changefeed carries row-level change events from the services that
// write them to everyone watching: the in-process WebSocket hub, other
// server instances over Redis, and mobile clients over MQTT.
//
// Events are hints. Subscribers invalidate what they hold and re-fetch; an
// event is never applied as data.
package changefeed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type Type string

const (
	Insert Type = "INSERT"
	Update Type = "UPDATE"
	Delete Type = "DELETE"
)

// Tables that emit changes.
const (
	TableConnectionRequests = "connection_requests"
	TableCareAssignments    = "care_assignments"
	TablePrescriptions      = "prescriptions"
	TableScheduleEntries    = "schedule_entries"
)

// Change describes one row change. Old is set for UPDATE and DELETE, New for
// INSERT and UPDATE.
type Change struct {
	Type      Type            `json:"type"`
	Table     string          `json:"table"`
	Old       json.RawMessage `json:"old,omitempty"`
	New       json.RawMessage `json:"new,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewChange encodes the old and new rows. A nil row is left out.
func NewChange(typ Type, table string, oldRow, newRow interface{}) (Change, error) {
	old, err := encodeRow(oldRow)
	if err != nil {
		return Change{}, fmt.Errorf("encode old %s row: %w", table, err)
	}
	nw, err := encodeRow(newRow)
	if err != nil {
		return Change{}, fmt.Errorf("encode new %s row: %w", table, err)
	}
	return Change{
		Type:      typ,
		Table:     table,
		Old:       old,
		New:       nw,
		Timestamp: time.Now().UTC(),
	}, nil
}

func encodeRow(row interface{}) (json.RawMessage, error) {
	if row == nil {
		return nil, nil
	}
	b, err := json.Marshal(row)
	if err != nil {
		return nil, err
	}
	if bytes.Equal(b, []byte("null")) {
		return nil, nil
	}
	return b, nil
}

// Field returns a string column from the new row, falling back to the old
// row. Subscribers use it to filter, e.g. Field("patient_email").
func (c Change) Field(name string) string {
	for _, row := range []json.RawMessage{c.New, c.Old} {
		if len(row) == 0 {
			continue
		}
		var m map[string]interface{}
		if err := json.Unmarshal(row, &m); err != nil {
			continue
		}
		if s, ok := m[name].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// Touches reports whether either row has column name equal to value.
func (c Change) Touches(name, value string) bool {
	for _, row := range []json.RawMessage{c.Old, c.New} {
		if len(row) == 0 {
			continue
		}
		var m map[string]interface{}
		if err := json.Unmarshal(row, &m); err != nil {
			continue
		}
		if s, ok := m[name].(string); ok && s == value {
			return true
		}
	}
	return false
}

// Involves reports whether email is the patient or the doctor on either
// row. Rows without those columns involve nobody.
func (c Change) Involves(email string) bool {
	if email == "" {
		return false
	}
	for _, row := range []json.RawMessage{c.Old, c.New} {
		if len(row) == 0 {
			continue
		}
		var m map[string]interface{}
		if err := json.Unmarshal(row, &m); err != nil {
			continue
		}
		for _, col := range partyColumns {
			if s, ok := m[col].(string); ok && strings.EqualFold(s, email) {
				return true
			}
		}
	}
	return false
}

var partyColumns = []string{"patient_email", "doctor_email"}

// Publisher delivers a change to its subscribers.
type Publisher interface {
	Publish(ctx context.Context, change Change) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, change Change) error

func (f PublisherFunc) Publish(ctx context.Context, change Change) error {
	return f(ctx, change)
}

// Fanout publishes every change to each of its publishers. A failing
// publisher does not stop delivery to the others; all errors are returned
// joined.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, change Change) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, change); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard drops every change.
var Discard Publisher = PublisherFunc(func(context.Context, Change) error { return nil })
