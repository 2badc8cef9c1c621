package telehealth

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carebridge/carebridge/internal/platform/auth"
	"github.com/carebridge/carebridge/internal/platform/db"
	"github.com/carebridge/carebridge/pkg/pagination"
)

type Handler struct {
	svc      *Service
	registry *Registry
}

func NewHandler(svc *Service, registry *Registry) *Handler {
	return &Handler{svc: svc, registry: registry}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := api.Group("", auth.RequireRole("admin", "physician", "nurse", "registrar"))
	staff.POST("/telehealth/sessions", h.CreateSession)
	staff.GET("/telehealth/sessions", h.ListSessions)
	staff.GET("/telehealth/sessions/:id", h.GetSession)
	staff.POST("/telehealth/sessions/:id/start", h.StartSession)
	staff.POST("/telehealth/sessions/:id/end", h.EndSession)
	staff.POST("/telehealth/sessions/:id/participants", h.AddParticipant)
	staff.GET("/telehealth/sessions/:id/participants", h.ListParticipants)
	staff.POST("/telehealth/sessions/:id/issues", h.ReportIssue)
	staff.GET("/telehealth/sessions/:id/notes", h.GetNotes)
	staff.PATCH("/telehealth/sessions/:id/notes", h.UpdateNotes)

	// Patients join and leave their own calls.
	everyone := api.Group("", auth.RequireRole("admin", "physician", "nurse", "registrar", "patient"))
	everyone.POST("/telehealth/sessions/:id/join", h.Join)
	everyone.POST("/telehealth/sessions/:id/participants/:pid/leave", h.Leave)
}

type createSessionRequest struct {
	AppointmentID uuid.UUID     `json:"appointment_id"`
	Options       CreateOptions `json:"options"`
}

func (h *Handler) CreateSession(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.AppointmentID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "appointment_id is required")
	}

	tenantID := db.TenantFromContext(c.Request().Context())
	sess, err := h.svc.CreateSession(c.Request().Context(), tenantID, req.AppointmentID, req.Options)
	if err != nil {
		return domainHTTPError(err)
	}
	return c.JSON(http.StatusCreated, sess)
}

func (h *Handler) GetSession(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}
	sess, err := h.svc.GetSession(c.Request().Context(), id)
	if err != nil {
		return domainHTTPError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) ListSessions(c echo.Context) error {
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()

	if pid := c.QueryParam("provider_id"); pid != "" {
		providerID, err := uuid.Parse(pid)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid provider_id")
		}
		sessions, total, err := h.svc.ListSessionsByProvider(ctx, providerID, pg.Limit, pg.Offset)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(sessions, total, pg.Limit, pg.Offset))
	}

	if pid := c.QueryParam("patient_id"); pid != "" {
		patientID, err := uuid.Parse(pid)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		sessions, total, err := h.svc.ListSessionsByPatient(ctx, patientID, pg.Limit, pg.Offset)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(sessions, total, pg.Limit, pg.Offset))
	}

	return echo.NewHTTPError(http.StatusBadRequest, "provider_id or patient_id is required")
}

func (h *Handler) StartSession(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}
	var req struct {
		ProviderID uuid.UUID `json:"provider_id"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.ProviderID == uuid.Nil {
		return echo.NewHTTPError(http.StatusBadRequest, "provider_id is required")
	}

	sess, err := h.svc.StartSession(c.Request().Context(), id, req.ProviderID)
	if err != nil {
		return domainHTTPError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) EndSession(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}
	sess, err := h.svc.EndSession(c.Request().Context(), id)
	if err != nil {
		return domainHTTPError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) Join(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}
	var req JoinRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	result, err := h.registry.Join(c.Request().Context(), id, req)
	if err != nil {
		return domainHTTPError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) AddParticipant(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}
	var req AddParticipantRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.registry.AddParticipant(c.Request().Context(), id, req)
	if err != nil {
		return domainHTTPError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) Leave(c echo.Context) error {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}
	participantID, err := uuid.Parse(c.Param("pid"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid participant id")
	}
	if err := h.registry.Leave(c.Request().Context(), sessionID, participantID); err != nil {
		return domainHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListParticipants(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}
	parts, err := h.registry.ListParticipants(c.Request().Context(), id)
	if err != nil {
		return domainHTTPError(err)
	}
	if parts == nil {
		parts = []*Participant{}
	}
	return c.JSON(http.StatusOK, parts)
}

func (h *Handler) ReportIssue(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}
	var req struct {
		Description string `json:"description"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	count, err := h.svc.ReportTechnicalIssue(c.Request().Context(), id, req.Description)
	if err != nil {
		return domainHTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"session_id":             id,
		"technical_issues_count": count,
	})
}

func (h *Handler) GetNotes(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}
	notes, err := h.svc.GetNotes(c.Request().Context(), id)
	if err != nil {
		return domainHTTPError(err)
	}
	return c.JSON(http.StatusOK, notes)
}

func (h *Handler) UpdateNotes(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}
	var patch NotesPatch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	notes, err := h.svc.UpdateNotes(c.Request().Context(), id, patch)
	if err != nil {
		return domainHTTPError(err)
	}
	return c.JSON(http.StatusOK, notes)
}

// domainHTTPError maps domain error kinds onto HTTP statuses.
func domainHTTPError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidState):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrCapacityExceeded):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrPreconditionFailed):
		return echo.NewHTTPError(http.StatusPreconditionFailed, err.Error())
	case errors.Is(err, ErrDependencyFailure):
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
