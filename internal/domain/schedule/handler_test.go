package schedule

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/healthplix/healthplix/internal/platform/auth"
)

func serve(e *echo.Echo, method, target, body, email, role string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	req = req.WithContext(auth.WithIdentity(req.Context(), email, role))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_AddAndList(t *testing.T) {
	svc, _, _ := newTestService()
	e := echo.New()
	NewHandler(svc).RegisterRoutes(e.Group("/api/v1"))

	rec := serve(e, http.MethodPost, "/api/v1/schedule",
		`{"date":"2026-03-14","time":"09:30","patient_name":"Pat","notes":"bring reports"}`, "rao@x.com", auth.RoleDoctor)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = serve(e, http.MethodGet, "/api/v1/schedule?date=2026-03-14", "", "rao@x.com", auth.RoleDoctor)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var items []Entry
	json.Unmarshal(rec.Body.Bytes(), &items)
	if len(items) != 1 || items[0].Notes != "bring reports" {
		t.Errorf("unexpected entries %+v", items)
	}
}

func TestHandler_BadInput(t *testing.T) {
	svc, _, _ := newTestService()
	e := echo.New()
	NewHandler(svc).RegisterRoutes(e.Group("/api/v1"))

	rec := serve(e, http.MethodPost, "/api/v1/schedule", `{"date":"2026-03-14","time":"noon","patient_name":"Pat"}`, "rao@x.com", auth.RoleDoctor)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_PatientForbidden(t *testing.T) {
	svc, _, _ := newTestService()
	e := echo.New()
	NewHandler(svc).RegisterRoutes(e.Group("/api/v1"))

	rec := serve(e, http.MethodGet, "/api/v1/schedule", "", "p@x.com", auth.RolePatient)
	if rec.Code != http.StatusForbidden {
		t.Errorf("expected 403, got %d", rec.Code)
	}
}
