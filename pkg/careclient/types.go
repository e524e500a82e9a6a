package careclient

import (
	"encoding/json"
	"time"
)

// Tables streamed by the server.
const (
	TableConnectionRequests = "connection_requests"
	TableCareAssignments    = "care_assignments"
	TablePrescriptions      = "prescriptions"
	TableScheduleEntries    = "schedule_entries"
)

type Profile struct {
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Age       int       `json:"age"`
	Address   *string   `json:"address,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type Request struct {
	ID           string    `json:"id"`
	DoctorEmail  string    `json:"doctor_email"`
	PatientEmail string    `json:"patient_email"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type PendingRequest struct {
	Request
	DoctorName string `json:"doctor_name"`
}

type AssignedDoctor struct {
	ID           string    `json:"id"`
	PatientEmail string    `json:"patient_email"`
	DoctorEmail  string    `json:"doctor_email"`
	DoctorName   string    `json:"doctor_name"`
	Name         string    `json:"name"`
	Age          int       `json:"age"`
	AssignedAt   time.Time `json:"assigned_at"`
}

// Event is a row change received from the stream. It only signals that
// something changed; re-fetch to see the new state.
type Event struct {
	Type      string          `json:"type"`
	Table     string          `json:"table"`
	Old       json.RawMessage `json:"old,omitempty"`
	New       json.RawMessage `json:"new,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Touches reports whether the old or new row has column name equal to
// value.
func (e Event) Touches(name, value string) bool {
	for _, row := range []json.RawMessage{e.Old, e.New} {
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
