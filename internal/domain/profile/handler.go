package profile

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"github.com/healthplix/healthplix/internal/platform/apperr"
	"github.com/healthplix/healthplix/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the profile endpoints. Registration is reachable
// before the caller has a profile; see auth.RegistrationSkipper.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/profiles", h.Register)
	api.GET("/profiles/me", h.Me)
	api.GET("/profiles/:email", h.Get)
}

func (h *Handler) Register(c echo.Context) error {
	var p Profile
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	if err := h.svc.Register(ctx, auth.EmailFromContext(ctx), &p); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) Me(c echo.Context) error {
	ctx := c.Request().Context()
	p, err := h.svc.Get(ctx, auth.EmailFromContext(ctx))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Get(c echo.Context) error {
	email, err := url.PathUnescape(c.Param("email"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid email")
	}
	p, err := h.svc.Get(c.Request().Context(), email)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}
