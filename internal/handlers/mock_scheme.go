package handlers

import (
	"context"
	"encoding/json"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fennel/pkg/models"
	"github.com/Ramsey-B/fennel/pkg/utils"
)

type MockSchemeService interface {
	Save(ctx context.Context, operator string, scope models.TemplateScope, data json.RawMessage) (models.MockScheme, error)
	Get(ctx context.Context, scope models.TemplateScope) (models.MockScheme, error)
}

// MockSchemeHandler handles the per-template mock scheme
type MockSchemeHandler struct {
	service MockSchemeService
}

func NewMockSchemeHandler(service MockSchemeService) *MockSchemeHandler {
	return &MockSchemeHandler{service: service}
}

type SaveMockSchemeRequest struct {
	Data json.RawMessage `json:"data" validate:"required"`
}

func (h *MockSchemeHandler) RegisterRoutes(g *echo.Group) {
	scheme := g.Group("/spaces/:space_id/templates/:template_id/mock_scheme")
	scheme.GET("", h.Get)
	scheme.PUT("", h.Save)
}

// Get handles GET /mock_scheme
func (h *MockSchemeHandler) Get(c echo.Context) error {
	scope, err := ParseScope(c)
	if err != nil {
		return err
	}

	scheme, err := h.service.Get(c.Request().Context(), scope)
	if err != nil {
		return err
	}

	return SuccessResponse(c, scheme)
}

// Save handles PUT /mock_scheme
func (h *MockSchemeHandler) Save(c echo.Context) error {
	operator, err := GetOperator(c)
	if err != nil {
		return err
	}

	scope, err := ParseScope(c)
	if err != nil {
		return err
	}

	req, err := utils.BindRequest[SaveMockSchemeRequest](c)
	if err != nil {
		return err
	}

	scheme, err := h.service.Save(c.Request().Context(), operator, scope, req.Data)
	if err != nil {
		return err
	}

	return SuccessResponse(c, scheme)
}
