package schedule

import (
	"net/http"

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

func (h *Handler) RegisterRoutes(api *echo.Group) {
	doctor := auth.RequireRole(auth.RoleDoctor)
	api.POST("/schedule", h.Add, doctor)
	api.GET("/schedule", h.ListForDay, doctor)
}

func (h *Handler) Add(c echo.Context) error {
	var e Entry
	if err := c.Bind(&e); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	if err := h.svc.AddEntry(ctx, auth.EmailFromContext(ctx), &e); err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) ListForDay(c echo.Context) error {
	ctx := c.Request().Context()
	items, err := h.svc.ListForDay(ctx, auth.EmailFromContext(ctx), c.QueryParam("date"))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}
