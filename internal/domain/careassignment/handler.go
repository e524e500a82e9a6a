package careassignment

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/healthplix/healthplix/internal/platform/apperr"
	"github.com/healthplix/healthplix/internal/platform/auth"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	doctor := auth.RequireRole(auth.RoleDoctor)
	api.GET("/assignments/patients", h.ListPatients, doctor)
	api.GET("/assignments/patients.xlsx", h.ExportPatients, doctor)

	api.GET("/assignments/doctor", h.GetDoctor, auth.RequireRole(auth.RolePatient))
}

func (h *Handler) ListPatients(c echo.Context) error {
	ctx := c.Request().Context()
	items, err := h.svc.ListForDoctor(ctx, auth.EmailFromContext(ctx))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ExportPatients(c echo.Context) error {
	ctx := c.Request().Context()
	var buf bytes.Buffer
	if err := h.svc.ExportRoster(ctx, auth.EmailFromContext(ctx), &buf); err != nil {
		return apperr.HTTP(err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", "patients.xlsx"))
	return c.Blob(http.StatusOK, xlsxMIME, buf.Bytes())
}

func (h *Handler) GetDoctor(c echo.Context) error {
	ctx := c.Request().Context()
	d, err := h.svc.AssignedDoctor(ctx, auth.EmailFromContext(ctx))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, d)
}
