package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Logger attaches a request-scoped logger to the request context, so
// handlers and services can use zerolog.Ctx, and writes one line per request.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()
			rid, _ := c.Get("request_id").(string)

			reqLogger := logger.With().Str("request_id", rid).Logger()
			c.SetRequest(req.WithContext(reqLogger.WithContext(req.Context())))

			err := next(c)
			if err != nil {
				// Let echo write the response now so the logged status is
				// the one the client sees.
				c.Error(err)
			}

			status := c.Response().Status
			evt := reqLogger.Info()
			switch {
			case status >= http.StatusInternalServerError:
				evt = reqLogger.Error()
			case status >= http.StatusBadRequest:
				evt = reqLogger.Warn()
			}
			if err != nil {
				evt = evt.Err(err)
				if he, ok := err.(*echo.HTTPError); ok && he.Internal != nil {
					evt = evt.AnErr("cause", he.Internal)
				}
			}
			if email, ok := c.Get("user_email").(string); ok && email != "" {
				evt = evt.Str("user", email)
			}

			evt.
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", status).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Msg("request")

			return nil
		}
	}
}
