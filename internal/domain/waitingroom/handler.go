package waitingroom

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carebridge/carebridge/internal/domain/telehealth"
	"github.com/carebridge/carebridge/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Patients drive their own entry; staff manage the line.
	patient := api.Group("", auth.RequireRole("admin", "physician", "nurse", "registrar", "patient"))
	patient.POST("/telehealth/sessions/:id/waiting-room", h.Enter)
	patient.PATCH("/waiting-room/:queueId/device-check", h.UpdateDeviceCheck)
	patient.GET("/waiting-room/:queueId/position", h.Position)
	patient.POST("/waiting-room/:queueId/leave", h.Leave)

	staff := api.Group("", auth.RequireRole("admin", "physician", "nurse", "registrar"))
	staff.POST("/waiting-room/:queueId/no-show", h.NoShow)
	staff.GET("/providers/:providerId/waiting-room", h.GetWaitingRoom)
	staff.POST("/providers/:providerId/waiting-room/call-next", h.CallNext)
}

func (h *Handler) Enter(c echo.Context) error {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}
	entry, err := h.svc.AddToWaitingRoom(c.Request().Context(), sessionID)
	if err != nil {
		return queueHTTPError(err)
	}
	return c.JSON(http.StatusCreated, entry)
}

func (h *Handler) UpdateDeviceCheck(c echo.Context) error {
	queueID, err := uuid.Parse(c.Param("queueId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid queue id")
	}
	var patch DeviceCheckPatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	entry, err := h.svc.UpdateDeviceCheck(c.Request().Context(), queueID, patch)
	if err != nil {
		return queueHTTPError(err)
	}
	return c.JSON(http.StatusOK, entry)
}

func (h *Handler) Position(c echo.Context) error {
	queueID, err := uuid.Parse(c.Param("queueId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid queue id")
	}
	info, err := h.svc.Position(c.Request().Context(), queueID)
	if err != nil {
		return queueHTTPError(err)
	}
	return c.JSON(http.StatusOK, info)
}

func (h *Handler) Leave(c echo.Context) error {
	queueID, err := uuid.Parse(c.Param("queueId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid queue id")
	}
	if err := h.svc.MarkLeft(c.Request().Context(), queueID); err != nil {
		return queueHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) NoShow(c echo.Context) error {
	queueID, err := uuid.Parse(c.Param("queueId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid queue id")
	}
	if err := h.svc.MarkNoShow(c.Request().Context(), queueID); err != nil {
		return queueHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) GetWaitingRoom(c echo.Context) error {
	providerID, err := uuid.Parse(c.Param("providerId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid provider id")
	}
	entries, err := h.svc.GetWaitingRoom(c.Request().Context(), providerID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if entries == nil {
		entries = []*WaitingQueueEntry{}
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) CallNext(c echo.Context) error {
	providerID, err := uuid.Parse(c.Param("providerId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid provider id")
	}
	entry, err := h.svc.CallNextPatient(c.Request().Context(), providerID)
	if err != nil {
		return queueHTTPError(err)
	}
	if entry == nil {
		return c.JSON(http.StatusOK, map[string]interface{}{"entry": nil})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"entry": entry})
}

func queueHTTPError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, telehealth.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, telehealth.ErrInvalidState):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, telehealth.ErrPreconditionFailed):
		return echo.NewHTTPError(http.StatusPreconditionFailed, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
