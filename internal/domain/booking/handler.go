package booking

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicbook/clinicbook/internal/platform/apperr"
	"github.com/clinicbook/clinicbook/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the patient booking flow on a group already
// restricted to the patient role.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/initiate", h.Initiate)
	g.POST("/specialization", h.ChooseSpecialization)
	g.POST("/doctor", h.ChooseDoctor)
	g.POST("/date", h.ChooseDate)
	g.POST("/slot", h.ChooseSlot)
	g.POST("/confirm", h.Confirm)
	g.GET("/session", h.GetSession)
	g.DELETE("/session", h.AbandonSession)
}

type choiceRequest struct {
	Specialization string `json:"specialization"`
	DoctorID       string `json:"doctor_id"`
	Date           string `json:"date"`
	Slot           string `json:"slot"`
}

func bindChoice(c echo.Context) (*choiceRequest, error) {
	var req choiceRequest
	if err := c.Bind(&req); err != nil {
		return nil, apperr.HTTPError(apperr.Validation("invalid request body"))
	}
	return &req, nil
}

func parseDoctorID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperr.HTTPError(apperr.Validation("doctor_id must be a valid id"))
	}
	return id, nil
}

func userID(c echo.Context) string {
	return auth.UserIDFromContext(c.Request().Context())
}

func (h *Handler) Initiate(c echo.Context) error {
	p, err := h.svc.Initiate(c.Request().Context(), userID(c))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ChooseSpecialization(c echo.Context) error {
	req, err := bindChoice(c)
	if err != nil {
		return err
	}
	p, err := h.svc.ChooseSpecialization(c.Request().Context(), userID(c), req.Specialization)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ChooseDoctor(c echo.Context) error {
	req, err := bindChoice(c)
	if err != nil {
		return err
	}
	id, err := parseDoctorID(req.DoctorID)
	if err != nil {
		return err
	}
	p, err := h.svc.ChooseDoctor(c.Request().Context(), userID(c), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ChooseDate(c echo.Context) error {
	req, err := bindChoice(c)
	if err != nil {
		return err
	}
	id, err := parseDoctorID(req.DoctorID)
	if err != nil {
		return err
	}
	p, err := h.svc.ChooseDate(c.Request().Context(), userID(c), id, req.Date)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ChooseSlot(c echo.Context) error {
	req, err := bindChoice(c)
	if err != nil {
		return err
	}
	id, err := parseDoctorID(req.DoctorID)
	if err != nil {
		return err
	}
	p, err := h.svc.ChooseSlot(c.Request().Context(), userID(c), id, req.Date, req.Slot)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Confirm(c echo.Context) error {
	appt, err := h.svc.Confirm(c.Request().Context(), userID(c))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"message":     "Appointment confirmed successfully!",
		"appointment": appt,
	})
}

func (h *Handler) GetSession(c echo.Context) error {
	sess, err := h.svc.Current(c.Request().Context(), userID(c))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) AbandonSession(c echo.Context) error {
	if err := h.svc.Abandon(c.Request().Context(), userID(c)); err != nil {
		return apperr.HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
