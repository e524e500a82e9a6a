package careclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/api/v1/", DevEmail: "p@x.com", Timeout: 2 * time.Second, RetryCount: 2})
}

func TestClient_PendingRequests(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/requests/pending", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "p@x.com", r.Header.Get(devEmailHeader))
		writeJSON(w, http.StatusOK, []PendingRequest{{
			Request:    Request{ID: "r1", DoctorEmail: "rao@x.com", PatientEmail: "p@x.com", Status: "pending"},
			DoctorName: "Dr. Rao",
		}})
	})
	c := newTestClient(t, mux)

	items, err := c.PendingRequests(t.Context())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Dr. Rao", items[0].DoctorName)
	assert.Equal(t, "r1", items[0].ID)
}

func TestClient_BearerToken(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/profiles/me", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, Profile{Email: "p@x.com", Role: "patient"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL + "/api/v1", Token: "tok"})
	p, err := c.Me(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "patient", p.Role)
}

func TestClient_APIError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/requests/r1/approve", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"kind": "conflict", "code": "invalid_transition", "message": "request has already been answered",
		})
	})
	c := newTestClient(t, mux)

	_, err := c.Approve(t.Context(), "r1")
	require.Error(t, err)
	var ae *APIError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, http.StatusConflict, ae.Status)
	assert.Equal(t, "invalid_transition", ae.Code)
	assert.False(t, IsNotFound(err))
}

func TestClient_RetriesGetOnly(t *testing.T) {
	var gets, posts int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/requests/pending", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&gets, 1) == 1 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"kind": "integrity", "message": "try again", "retryable": true})
			return
		}
		writeJSON(w, http.StatusOK, []PendingRequest{})
	})
	mux.HandleFunc("/api/v1/requests/r1/reject", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&posts, 1)
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"kind": "integrity", "message": "try again", "retryable": true})
	})
	c := newTestClient(t, mux)

	_, err := c.PendingRequests(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&gets))

	_, err = c.Reject(t.Context(), "r1")
	var ae *APIError
	require.ErrorAs(t, err, &ae)
	assert.True(t, ae.Retryable)
	assert.Equal(t, int32(1), atomic.LoadInt32(&posts), "writes must not be retried automatically")
}

func TestClient_AssignedDoctorNone(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/assignments/doctor", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"kind": "not_found", "message": "no doctor assigned"})
	})
	c := newTestClient(t, mux)

	d, err := c.AssignedDoctor(t.Context())
	require.NoError(t, err)
	assert.Nil(t, d)
}

func TestClient_SendRequest(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/requests", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeJSON(w, http.StatusCreated, Request{ID: "r9", PatientEmail: body["patient_email"], Status: "pending"})
	})
	c := newTestClient(t, mux)

	req, err := c.SendRequest(t.Context(), "q@x.com")
	require.NoError(t, err)
	assert.Equal(t, "q@x.com", req.PatientEmail)
}

func TestClient_StreamURL(t *testing.T) {
	c := New(Config{BaseURL: "https://api.example.com/api/v1"})
	u, err := c.StreamURL(TableConnectionRequests, TableCareAssignments)
	require.NoError(t, err)
	assert.Equal(t, "wss://api.example.com/api/v1/ws?tables=connection_requests%2Ccare_assignments", u)
}
