package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/healthplix/healthplix/internal/platform/apperr"
)

const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
)

// RoleLookup resolves the role of a registered profile. Implementations
// return an apperr NotFound error for an unknown email.
type RoleLookup interface {
	RoleOf(ctx context.Context, email string) (string, error)
}

// ResolveProfile loads the caller's role from the profile store. Callers
// without a profile are rejected with 401 unless skip reports true, which is
// how registration stays reachable.
func ResolveProfile(lookup RoleLookup, skip func(c echo.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skip != nil && skip(c) {
				return next(c)
			}
			ctx := c.Request().Context()
			email := EmailFromContext(ctx)
			if email == "" {
				return next(c)
			}

			role, err := lookup.RoleOf(ctx, email)
			if err != nil {
				var ae *apperr.Error
				if errors.As(err, &ae) && ae.Kind == apperr.KindNotFound {
					return apperr.HTTP(apperr.Auth("profile not found"))
				}
				zerolog.Ctx(ctx).Error().Err(err).Str("email", email).Msg("resolve caller profile")
				return apperr.HTTP(err)
			}

			c.Set(string(UserRoleKey), role)
			c.SetRequest(c.Request().WithContext(context.WithValue(ctx, UserRoleKey, role)))
			return next(c)
		}
	}
}

// RequireRole returns middleware that checks the caller has one of roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			has := RoleFromContext(c.Request().Context())
			for _, required := range roles {
				if has == required {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("required role: %s", strings.Join(roles, " or ")))
		}
	}
}
