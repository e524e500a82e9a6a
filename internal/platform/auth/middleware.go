package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserEmailKey contextKey = "user_email"
	UserRoleKey  contextKey = "user_role"
)

// DevEmailHeader carries the caller identity when the server runs in
// development mode without a token.
const DevEmailHeader = "X-Dev-Email"

// Claims are the identity-service token claims. Email is the account key.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
}

type JWTConfig struct {
	Issuer     string
	Audience   string
	SigningKey []byte
	// Skipper bypasses verification, e.g. for health checks.
	Skipper func(c echo.Context) bool
}

// ParseToken verifies an HS256 token and returns its claims.
func ParseToken(cfg JWTConfig, tokenStr string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return cfg.SigningKey, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is not valid")
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("token has no email claim")
	}
	return claims, nil
}

// IssueToken signs a token for email. The server never issues tokens itself;
// this exists for tests and local tooling.
func IssueToken(cfg JWTConfig, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email: email,
	}
	if cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.Audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.SigningKey)
}

// bearerToken extracts the token from the Authorization header. WebSocket
// upgrades from browsers cannot set headers, so GET requests may pass it as
// the access_token query parameter instead.
func bearerToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		if c.Request().Method == http.MethodGet {
			if tok := c.QueryParam("access_token"); tok != "" {
				return tok, nil
			}
		}
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}
	return strings.TrimSpace(parts[1]), nil
}

func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			tokenStr, err := bearerToken(c)
			if err != nil {
				return err
			}
			claims, err := ParseToken(cfg, tokenStr)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			setEmail(c, claims.Email)
			return next(c)
		}
	}
}

// DevAuthMiddleware accepts the X-Dev-Email header as the caller identity.
// A bearer token, when present, is still verified if a signing key is set.
func DevAuthMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	verify := JWTMiddleware(cfg)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		verified := verify(next)
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}
			if c.Request().Header.Get("Authorization") != "" && len(cfg.SigningKey) > 0 {
				return verified(c)
			}

			email := strings.ToLower(strings.TrimSpace(c.Request().Header.Get(DevEmailHeader)))
			if email == "" {
				return echo.NewHTTPError(http.StatusUnauthorized,
					fmt.Sprintf("missing %s header", DevEmailHeader))
			}
			setEmail(c, email)
			return next(c)
		}
	}
}

func setEmail(c echo.Context, email string) {
	email = strings.ToLower(email)
	c.Set(string(UserEmailKey), email)
	ctx := context.WithValue(c.Request().Context(), UserEmailKey, email)
	c.SetRequest(c.Request().WithContext(ctx))
}

// WithIdentity returns ctx carrying an authenticated caller.
func WithIdentity(ctx context.Context, email, role string) context.Context {
	ctx = context.WithValue(ctx, UserEmailKey, email)
	return context.WithValue(ctx, UserRoleKey, role)
}

func EmailFromContext(ctx context.Context) string {
	email, _ := ctx.Value(UserEmailKey).(string)
	return email
}

func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(UserRoleKey).(string)
	return role
}
