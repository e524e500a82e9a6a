package careassignment

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/healthplix/healthplix/internal/platform/auth"
)

func newTestHandler() (*Handler, *mockAssignmentRepo, *echo.Echo) {
	svc, repo, _ := newTestService()
	return NewHandler(svc), repo, echo.New()
}

func newRoleContext(e *echo.Echo, target, email, role string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), email, role))
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_ListPatients(t *testing.T) {
	h, repo, e := newTestHandler()
	seed(repo, "p@x.com", "rao@x.com", "Pat", 30)
	c, rec := newRoleContext(e, "/api/v1/assignments/patients", "rao@x.com", auth.RoleDoctor)

	if err := h.ListPatients(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got []Assignment
	json.Unmarshal(rec.Body.Bytes(), &got)
	if len(got) != 1 || got[0].PatientEmail != "p@x.com" {
		t.Errorf("unexpected roster %+v", got)
	}
}

func TestHandler_ExportPatients(t *testing.T) {
	h, repo, e := newTestHandler()
	seed(repo, "p@x.com", "rao@x.com", "Pat", 30)
	c, rec := newRoleContext(e, "/api/v1/assignments/patients.xlsx", "rao@x.com", auth.RoleDoctor)

	if err := h.ExportPatients(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ct := rec.Header().Get(echo.HeaderContentType); ct != xlsxMIME {
		t.Errorf("unexpected content type %q", ct)
	}
	if rec.Body.Len() == 0 {
		t.Error("expected workbook bytes")
	}
}

func TestHandler_GetDoctor(t *testing.T) {
	h, repo, e := newTestHandler()
	seed(repo, "p@x.com", "rao@x.com", "Pat", 30)
	c, rec := newRoleContext(e, "/api/v1/assignments/doctor", "p@x.com", auth.RolePatient)

	if err := h.GetDoctor(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got AssignedDoctor
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.DoctorName != "Dr. Rao" {
		t.Errorf("unexpected doctor %+v", got)
	}
}

func TestHandler_GetDoctor_NoneAssigned(t *testing.T) {
	h, _, e := newTestHandler()
	c, _ := newRoleContext(e, "/api/v1/assignments/doctor", "p@x.com", auth.RolePatient)

	err := h.GetDoctor(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestHandler_RoutesEnforceRole(t *testing.T) {
	h, _, e := newTestHandler()
	h.RegisterRoutes(e.Group("/api/v1"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/assignments/patients", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), "p@x.com", auth.RolePatient))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403 for a patient on the roster, got %d", rec.Code)
	}
}
