package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var testSigningKey = []byte("test-secret-key-for-unit-tests-only")

func createTestToken(t *testing.T, claims Claims, key []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenStr, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return tokenStr
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, EmailFromContext(c.Request().Context()))
}

func expectStatus(t *testing.T, err error, code int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error with status %d, got nil", code)
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d", code, httpErr.Code)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	h := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})(okHandler)
	expectStatus(t, h(c), http.StatusUnauthorized)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no bearer prefix", "Token abc123"},
		{"missing token", "Bearer"},
		{"empty value", "Bearer "},
		{"basic auth", "Basic dXNlcjpwYXNz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", tt.header)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			h := JWTMiddleware(JWTConfig{SigningKey: testSigningKey})(okHandler)
			expectStatus(t, h(c), http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	cfg := JWTConfig{SigningKey: testSigningKey, Issuer: "identity", Audience: "healthplix"}
	tok, err := IssueToken(cfg, "Rao@X.com", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := JWTMiddleware(cfg)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Body.String() != "rao@x.com" {
		t.Errorf("expected normalized email in context, got %q", rec.Body.String())
	}
	if got, _ := c.Get(string(UserEmailKey)).(string); got != "rao@x.com" {
		t.Errorf("expected email on echo context, got %q", got)
	}
}

func TestJWTMiddleware_QueryTokenForGet(t *testing.T) {
	cfg := JWTConfig{SigningKey: testSigningKey}
	tok, err := IssueToken(cfg, "p@x.com", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/ws?access_token="+tok, nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := JWTMiddleware(cfg)(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Body.String() != "p@x.com" {
		t.Errorf("got %q", rec.Body.String())
	}
}

func TestJWTMiddleware_Rejects(t *testing.T) {
	cfg := JWTConfig{SigningKey: testSigningKey, Issuer: "identity"}
	now := time.Now()

	tests := []struct {
		name   string
		claims Claims
		key    []byte
	}{
		{
			name: "expired",
			claims: Claims{
				RegisteredClaims: jwt.RegisteredClaims{
					Issuer:    "identity",
					ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
				},
				Email: "p@x.com",
			},
			key: testSigningKey,
		},
		{
			name: "wrong key",
			claims: Claims{
				RegisteredClaims: jwt.RegisteredClaims{Issuer: "identity"},
				Email:            "p@x.com",
			},
			key: []byte("another-key-that-is-long-enough-0000"),
		},
		{
			name: "wrong issuer",
			claims: Claims{
				RegisteredClaims: jwt.RegisteredClaims{Issuer: "someone-else"},
				Email:            "p@x.com",
			},
			key: testSigningKey,
		},
		{
			name: "no email",
			claims: Claims{
				RegisteredClaims: jwt.RegisteredClaims{Issuer: "identity"},
			},
			key: testSigningKey,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok := createTestToken(t, tt.claims, tt.key)
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+tok)
			c := e.NewContext(req, httptest.NewRecorder())

			expectStatus(t, JWTMiddleware(cfg)(okHandler)(c), http.StatusUnauthorized)
		})
	}
}

func TestJWTMiddleware_Skipper(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/health")

	cfg := JWTConfig{SigningKey: testSigningKey, Skipper: AuthSkipper}
	if err := JWTMiddleware(cfg)(okHandler)(c); err != nil {
		t.Fatalf("expected public path to skip auth, got %v", err)
	}
}

func TestDevAuthMiddleware_Header(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(DevEmailHeader, " Dr.Rao@X.com ")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := DevAuthMiddleware(JWTConfig{})(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Body.String() != "dr.rao@x.com" {
		t.Errorf("got %q", rec.Body.String())
	}
}

func TestDevAuthMiddleware_MissingIdentity(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	expectStatus(t, DevAuthMiddleware(JWTConfig{})(okHandler)(c), http.StatusUnauthorized)
}

func TestDevAuthMiddleware_VerifiesTokenWhenKeySet(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	req.Header.Set(DevEmailHeader, "p@x.com")
	c := e.NewContext(req, httptest.NewRecorder())

	expectStatus(t, DevAuthMiddleware(JWTConfig{SigningKey: testSigningKey})(okHandler)(c), http.StatusUnauthorized)
}

func TestContextHelpers_Empty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if EmailFromContext(req.Context()) != "" {
		t.Error("expected empty email")
	}
	if RoleFromContext(req.Context()) != "" {
		t.Error("expected empty role")
	}
	ctx := WithIdentity(req.Context(), "p@x.com", RolePatient)
	if EmailFromContext(ctx) != "p@x.com" || RoleFromContext(ctx) != RolePatient {
		t.Error("WithIdentity round trip failed")
	}
}

func TestIsPublicPath(t *testing.T) {
	for path, want := range map[string]bool{
		"/health":             true,
		"/health/db":          true,
		"/api/v1/profiles/me": false,
		"/api/v1/ws":          false,
		"":                    false,
	} {
		if got := IsPublicPath(path); got != want {
			t.Errorf("IsPublicPath(%q) = %v, want %v", path, got, want)
		}
	}
}
