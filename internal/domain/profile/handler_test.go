package profile

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/healthplix/healthplix/internal/platform/auth"
)

func newTestHandler() (*Handler, *mockProfileRepo, *echo.Echo) {
	svc, repo := newTestService()
	return NewHandler(svc), repo, echo.New()
}

func newAuthedContext(e *echo.Echo, method, target, body, email string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithIdentity(req.Context(), email, ""))
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_Register(t *testing.T) {
	h, repo, e := newTestHandler()
	body := `{"email":"p@x.com","name":"Pat","age":30,"role":"patient","address":"12 Main St"}`
	c, rec := newAuthedContext(e, http.MethodPost, "/api/v1/profiles", body, "p@x.com")

	if err := h.Register(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if repo.store["p@x.com"] == nil || *repo.store["p@x.com"].Address != "12 Main St" {
		t.Error("expected profile with address to be stored")
	}
}

func TestHandler_Register_Invalid(t *testing.T) {
	h, _, e := newTestHandler()
	c, _ := newAuthedContext(e, http.MethodPost, "/api/v1/profiles", `{"email":"p@x.com","name":"Pat","age":0,"role":"patient"}`, "p@x.com")

	err := h.Register(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestHandler_Register_Duplicate(t *testing.T) {
	h, repo, e := newTestHandler()
	repo.store["p@x.com"] = &Profile{Email: "p@x.com", Name: "Pat", Age: 30, Role: RolePatient}
	c, _ := newAuthedContext(e, http.MethodPost, "/api/v1/profiles", `{"email":"p@x.com","name":"Pat","age":30,"role":"patient"}`, "p@x.com")

	err := h.Register(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %v", err)
	}
}

func TestHandler_Me(t *testing.T) {
	h, repo, e := newTestHandler()
	repo.store["rao@x.com"] = &Profile{Email: "rao@x.com", Name: "Dr. Rao", Age: 45, Role: RoleDoctor}
	c, rec := newAuthedContext(e, http.MethodGet, "/api/v1/profiles/me", "", "rao@x.com")

	if err := h.Me(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var got Profile
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Name != "Dr. Rao" {
		t.Errorf("unexpected profile %+v", got)
	}
}

func TestHandler_Get_EscapedEmail(t *testing.T) {
	h, repo, e := newTestHandler()
	repo.store["rao@x.com"] = &Profile{Email: "rao@x.com", Name: "Dr. Rao", Age: 45, Role: RoleDoctor}
	c, rec := newAuthedContext(e, http.MethodGet, "/", "", "p@x.com")
	c.SetParamNames("email")
	c.SetParamValues("rao%40x.com")

	if err := h.Get(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_Get_NotFound(t *testing.T) {
	h, _, e := newTestHandler()
	c, _ := newAuthedContext(e, http.MethodGet, "/", "", "p@x.com")
	c.SetParamNames("email")
	c.SetParamValues("ghost@x.com")

	err := h.Get(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}
