package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/healthplix/healthplix/internal/platform/auth"
)

// AuditEntry records who changed what through the API.
type AuditEntry struct {
	Actor      string
	ActorRole  string
	Resource   string
	ResourceID string
	Action     string // create, update, delete
	Method     string
	Path       string
	IPAddress  string
	RequestID  string
	StatusCode int
	Timestamp  time.Time
}

// Audit logs every mutating call under /api/v1 after the handler has run.
// Reads are covered by the request log.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !isAuditable(req.Method, req.URL.Path) {
				return next(c)
			}

			err := next(c)

			entry := buildAuditEntry(c)
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					entry.StatusCode = he.Code
				} else {
					entry.StatusCode = http.StatusInternalServerError
				}
			}

			evt := logger.Info()
			if entry.StatusCode >= http.StatusBadRequest {
				evt = logger.Warn()
			}
			evt.
				Str("type", "audit").
				Str("request_id", entry.RequestID).
				Str("actor", entry.Actor).
				Str("actor_role", entry.ActorRole).
				Str("resource", entry.Resource).
				Str("resource_id", entry.ResourceID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.IPAddress).
				Int("status", entry.StatusCode).
				Msg("api_change")

			return err
		}
	}
}

func buildAuditEntry(c echo.Context) AuditEntry {
	req := c.Request()
	ctx := req.Context()
	entry := AuditEntry{
		Actor:      auth.EmailFromContext(ctx),
		ActorRole:  auth.RoleFromContext(ctx),
		Method:     req.Method,
		Path:       req.URL.Path,
		IPAddress:  c.RealIP(),
		Action:     httpMethodToAction(req.Method),
		StatusCode: c.Response().Status,
		Timestamp:  time.Now().UTC(),
	}
	entry.RequestID, _ = c.Get("request_id").(string)
	entry.Resource, entry.ResourceID = splitResource(req.URL.Path)
	return entry
}

func isAuditable(method, path string) bool {
	if !strings.HasPrefix(path, "/api/v1/") {
		return false
	}
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func httpMethodToAction(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

// splitResource returns the first path segment under /api/v1 and the
// first UUID segment after it, if any.
//
//	/api/v1/requests                 -> requests, ""
//	/api/v1/requests/<uuid>/approve  -> requests, <uuid>
func splitResource(path string) (string, string) {
	segments := strings.Split(strings.TrimPrefix(path, "/api/v1/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		return "unknown", ""
	}
	for _, s := range segments[1:] {
		if _, err := uuid.Parse(s); err == nil {
			return segments[0], s
		}
	}
	return segments[0], ""
}
