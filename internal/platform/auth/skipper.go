package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// publicPaths bypass authentication entirely.
var publicPaths = map[string]bool{
	"/health":    true,
	"/health/db": true,
}

// AuthSkipper reports whether the matched route is a public endpoint.
func AuthSkipper(c echo.Context) bool {
	return IsPublicPath(c.Path())
}

// IsPublicPath reports whether path bypasses authentication.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}

// RegistrationSkipper lets a caller with a valid token but no profile yet
// reach profile registration.
func RegistrationSkipper(c echo.Context) bool {
	return AuthSkipper(c) ||
		(c.Request().Method == http.MethodPost && c.Path() == "/api/v1/profiles")
}
