package appointment

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicbook/clinicbook/internal/platform/apperr"
	"github.com/clinicbook/clinicbook/internal/platform/auth"
	"github.com/clinicbook/clinicbook/pkg/pagination"
)

type Handler struct {
	ledger *Ledger
}

func NewHandler(ledger *Ledger) *Handler {
	return &Handler{ledger: ledger}
}

// RegisterRoutes mounts the doctor-side appointment endpoints on a group
// already restricted to the doctor role.
func (h *Handler) RegisterRoutes(doctor *echo.Group) {
	doctor.GET("/appointments", h.ListAppointments)
	doctor.GET("/appointments/:id", h.GetAppointment)
	doctor.PUT("/appointments/:id/status", h.UpdateStatus)
}

func doctorID(c echo.Context) (uuid.UUID, error) {
	id, ok := auth.SubjectID(c.Request().Context())
	if !ok {
		return uuid.Nil, apperr.HTTPError(apperr.Unauthorized("token subject is not a doctor id"))
	}
	return id, nil
}

func (h *Handler) ListAppointments(c echo.Context) error {
	did, err := doctorID(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	items, total, err := h.ledger.ListForDoctorPage(c.Request().Context(), did, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	if items == nil {
		items = []*Appointment{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetAppointment(c echo.Context) error {
	did, err := doctorID(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.HTTPError(apperr.Validation("invalid appointment id"))
	}
	a, err := h.ledger.Get(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	if a.DoctorID != did {
		return apperr.HTTPError(apperr.Unauthorized("appointment %s belongs to another doctor", id))
	}
	return c.JSON(http.StatusOK, a)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	did, err := doctorID(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.HTTPError(apperr.Validation("invalid appointment id"))
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return apperr.HTTPError(apperr.Validation("invalid request body"))
	}
	a, err := h.ledger.SetStatus(c.Request().Context(), did, id, req.Status)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, a)
}
