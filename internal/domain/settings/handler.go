package settings

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carebridge/carebridge/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "physician"))
	g.GET("/providers/:providerId/settings", h.GetSettings)
	g.PUT("/providers/:providerId/settings", h.UpdateSettings)
}

func (h *Handler) GetSettings(c echo.Context) error {
	providerID, err := uuid.Parse(c.Param("providerId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid provider id")
	}
	s, err := h.svc.GetSettings(c.Request().Context(), providerID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) UpdateSettings(c echo.Context) error {
	providerID, err := uuid.Parse(c.Param("providerId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid provider id")
	}
	if !canMutate(c, providerID) {
		return echo.NewHTTPError(http.StatusForbidden, "settings may only be changed by the owning provider")
	}

	var patch Patch
	if err := c.Bind(&patch); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	s, err := h.svc.UpdateSettings(c.Request().Context(), providerID, patch)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, s)
}

// canMutate allows the owning provider (subject matches the provider id) or
// an admin.
func canMutate(c echo.Context, providerID uuid.UUID) bool {
	ctx := c.Request().Context()
	for _, r := range auth.RolesFromContext(ctx) {
		if r == "admin" {
			return true
		}
	}
	return auth.UserIDFromContext(ctx) == providerID.String()
}
