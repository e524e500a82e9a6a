package prescription

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/healthplix/healthplix/internal/platform/apperr"
	"github.com/healthplix/healthplix/internal/platform/auth"
	"github.com/healthplix/healthplix/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/prescriptions", h.Write, auth.RequireRole(auth.RoleDoctor))
	api.GET("/prescriptions", h.List, auth.RequireRole(auth.RoleDoctor, auth.RolePatient))
}

type writeRequest struct {
	PatientEmail string `json:"patient_email"`
	Text         string `json:"prescription_text"`
}

func (h *Handler) Write(c echo.Context) error {
	var body writeRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	p, err := h.svc.Write(ctx, auth.EmailFromContext(ctx), body.PatientEmail, body.Text)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListOwn(ctx, auth.EmailFromContext(ctx), auth.RoleFromContext(ctx), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}
