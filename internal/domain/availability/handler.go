package availability

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicbook/clinicbook/internal/platform/apperr"
	"github.com/clinicbook/clinicbook/internal/platform/auth"
)

type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes mounts the doctor-side availability endpoints on a group
// already restricted to the doctor role. The doctor is the token subject.
func (h *Handler) RegisterRoutes(doctor *echo.Group) {
	doctor.POST("/availability", h.Publish)
	doctor.GET("/availability", h.ListDates)
	doctor.GET("/availability/:date", h.ListSlots)
}

type publishRequest struct {
	Date  string   `json:"date"`
	Slots []string `json:"slots"`
}

type slotsResponse struct {
	Date  string   `json:"date"`
	Slots []string `json:"slots"`
}

func (h *Handler) Publish(c echo.Context) error {
	doctorID, ok := auth.SubjectID(c.Request().Context())
	if !ok {
		return apperr.HTTPError(apperr.Unauthorized("token subject is not a doctor id"))
	}
	var req publishRequest
	if err := c.Bind(&req); err != nil {
		return apperr.HTTPError(apperr.Validation("invalid request body"))
	}
	open, err := h.store.Publish(c.Request().Context(), doctorID, req.Date, req.Slots)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, slotsResponse{Date: req.Date, Slots: open})
}

func (h *Handler) ListDates(c echo.Context) error {
	doctorID, ok := auth.SubjectID(c.Request().Context())
	if !ok {
		return apperr.HTTPError(apperr.Unauthorized("token subject is not a doctor id"))
	}
	dates, err := h.store.Dates(c.Request().Context(), doctorID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"dates": dates})
}

func (h *Handler) ListSlots(c echo.Context) error {
	doctorID, ok := auth.SubjectID(c.Request().Context())
	if !ok {
		return apperr.HTTPError(apperr.Unauthorized("token subject is not a doctor id"))
	}
	date := c.Param("date")
	open, err := h.store.ListSlots(c.Request().Context(), doctorID, date)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, slotsResponse{Date: date, Slots: open})
}
