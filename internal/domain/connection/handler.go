package connection

import (
	"net/http"

	"github.com/google/uuid"
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
	doctor := auth.RequireRole(auth.RoleDoctor)
	patient := auth.RequireRole(auth.RolePatient)

	api.POST("/requests", h.Create, doctor)
	api.GET("/requests/sent", h.ListSent, doctor)
	api.GET("/requests/pending", h.ListPending, patient)
	api.GET("/requests/:id", h.Get)
	api.PUT("/requests/:id/status", h.SetStatus, patient)
	api.POST("/requests/:id/approve", h.Approve, patient)
	api.POST("/requests/:id/reject", h.Reject, patient)
}

type createRequest struct {
	PatientEmail string `json:"patient_email"`
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) Create(c echo.Context) error {
	var body createRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ctx := c.Request().Context()
	req, err := h.svc.CreateRequest(ctx, auth.EmailFromContext(ctx), body.PatientEmail)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, req)
}

func (h *Handler) ListPending(c echo.Context) error {
	ctx := c.Request().Context()
	items, err := h.svc.ListPendingForPatient(ctx, auth.EmailFromContext(ctx))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListSent(c echo.Context) error {
	ctx := c.Request().Context()
	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListForDoctor(ctx, auth.EmailFromContext(ctx), c.QueryParam("status"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	req, err := h.svc.GetRequest(ctx, auth.EmailFromContext(ctx), id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, req)
}

func (h *Handler) SetStatus(c echo.Context) error {
	var body statusRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return h.respond(c, body.Status)
}

func (h *Handler) Approve(c echo.Context) error {
	return h.respond(c, StatusApproved)
}

func (h *Handler) Reject(c echo.Context) error {
	return h.respond(c, StatusRejected)
}

func (h *Handler) respond(c echo.Context, status string) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	req, err := h.svc.SetStatus(ctx, auth.EmailFromContext(ctx), id, status)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, req)
}
