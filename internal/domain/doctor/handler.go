package doctor

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicbook/clinicbook/internal/platform/apperr"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the directory reads. Any authenticated caller may
// browse doctors.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/doctors", h.ListDoctors)
	api.GET("/doctors/:id", h.GetDoctor)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	specialty := c.QueryParam("specialization")
	ctx := c.Request().Context()
	var (
		items []*Doctor
		err   error
	)
	if specialty == "" {
		items, err = h.svc.List(ctx)
	} else {
		items, err = h.svc.BySpecialization(ctx, specialty)
	}
	if err != nil {
		return apperr.HTTPError(err)
	}
	if items == nil {
		items = []*Doctor{}
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) GetDoctor(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apperr.HTTPError(apperr.Validation("invalid doctor id"))
	}
	d, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, d)
}
