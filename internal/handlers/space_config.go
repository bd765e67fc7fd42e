package handlers

import (
	"context"
	"encoding/json"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fennel/internal/services/spaceconfig"
	"github.com/Ramsey-B/fennel/pkg/utils"
)

type SpaceConfigService interface {
	Renew(ctx context.Context, spaceID int64, values map[string]json.RawMessage) (spaceconfig.Presentation, error)
	Get(ctx context.Context, spaceID int64) (spaceconfig.Presentation, error)
}

// SpaceConfigHandler handles space configuration requests
type SpaceConfigHandler struct {
	service SpaceConfigService
}

func NewSpaceConfigHandler(service SpaceConfigService) *SpaceConfigHandler {
	return &SpaceConfigHandler{service: service}
}

type RenewSpaceConfigRequest struct {
	Config map[string]json.RawMessage `json:"config" validate:"required"`
}

func (h *SpaceConfigHandler) RegisterRoutes(g *echo.Group) {
	configs := g.Group("/spaces/:space_id/configs")
	configs.GET("", h.Get)
	configs.POST("", h.Renew)
}

// Get handles GET /configs
func (h *SpaceConfigHandler) Get(c echo.Context) error {
	spaceID, err := ParseInt64(c, "space_id")
	if err != nil {
		return err
	}

	presentation, err := h.service.Get(c.Request().Context(), spaceID)
	if err != nil {
		return err
	}

	return SuccessResponse(c, presentation)
}

// Renew handles POST /configs
func (h *SpaceConfigHandler) Renew(c echo.Context) error {
	if _, err := GetOperator(c); err != nil {
		return err
	}

	spaceID, err := ParseInt64(c, "space_id")
	if err != nil {
		return err
	}

	req, err := utils.BindRequest[RenewSpaceConfigRequest](c)
	if err != nil {
		return err
	}

	presentation, err := h.service.Renew(c.Request().Context(), spaceID, req.Config)
	if err != nil {
		return err
	}

	return SuccessResponse(c, presentation)
}
