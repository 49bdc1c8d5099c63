package patient

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/clinic/frontdesk/internal/platform/apperr"
	"github.com/clinic/frontdesk/internal/platform/auth"
	"github.com/clinic/frontdesk/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("/patients", auth.RequireRole(auth.RoleFrontDesk, auth.RoleDoctor))
	read.GET("", h.ListPatients)
	read.GET("/:id", h.GetPatient)

	write := api.Group("/patients", auth.RequireRole(auth.RoleFrontDesk))
	write.POST("", h.CreatePatient)
	write.PUT("/:id", h.UpdatePatient)
	write.DELETE("/:id", h.DeletePatient)
}

func confirmFromRequest(c echo.Context) Confirmer {
	ok, _ := strconv.ParseBool(c.QueryParam("confirm"))
	return ConfirmFunc(func(context.Context, string, *PatientRecord) bool { return ok })
}

func (h *Handler) ListPatients(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), c.QueryParam("q"), pg)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetPatient(c echo.Context) error {
	p, err := h.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) CreatePatient(c echo.Context) error {
	var in Input
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.Add(c.Request().Context(), in)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	var in Input
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.Update(c.Request().Context(), c.Param("id"), in, confirmFromRequest(c))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	if err := h.svc.Delete(c.Request().Context(), c.Param("id"), confirmFromRequest(c)); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}
