package handlers

import (
	"context"
	"encoding/json"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fennel/internal/services/template"
	"github.com/Ramsey-B/fennel/pkg/models"
	"github.com/Ramsey-B/fennel/pkg/utils"
)

type TemplateService interface {
	Create(ctx context.Context, operator string, spaceID int64, in template.CreateInput) (template.Detail, error)
	Get(ctx context.Context, scope models.TemplateScope) (template.Detail, error)
	UpdatePipelineTree(ctx context.Context, operator string, scope models.TemplateScope, tree json.RawMessage) (template.Detail, bool, error)
}

// TemplateHandler handles templates and their pipeline tree
type TemplateHandler struct {
	service TemplateService
}

func NewTemplateHandler(service TemplateService) *TemplateHandler {
	return &TemplateHandler{service: service}
}

type CreateTemplateRequest struct {
	Name         string          `json:"name" validate:"required,max=128"`
	Desc         string          `json:"desc" validate:"max=256"`
	Version      string          `json:"version" validate:"required,max=32"`
	ExtraInfo    map[string]any  `json:"extra_info"`
	PipelineTree json.RawMessage `json:"pipeline_tree" validate:"required"`
}

type UpdatePipelineTreeRequest struct {
	PipelineTree json.RawMessage `json:"pipeline_tree" validate:"required"`
}

type UpdatePipelineTreeResponse struct {
	template.Detail
	Changed bool `json:"changed"`
}

func (h *TemplateHandler) RegisterRoutes(g *echo.Group) {
	templates := g.Group("/spaces/:space_id/templates")
	templates.POST("", h.Create)
	templates.GET("/:template_id", h.Get)
	templates.PUT("/:template_id/pipeline_tree", h.UpdatePipelineTree)
}

// Create handles POST /templates
func (h *TemplateHandler) Create(c echo.Context) error {
	operator, err := GetOperator(c)
	if err != nil {
		return err
	}

	spaceID, err := ParseInt64(c, "space_id")
	if err != nil {
		return err
	}

	req, err := utils.BindRequest[CreateTemplateRequest](c)
	if err != nil {
		return err
	}

	detail, err := h.service.Create(c.Request().Context(), operator, spaceID, template.CreateInput{
		Name:         req.Name,
		Desc:         req.Desc,
		Version:      req.Version,
		ExtraInfo:    req.ExtraInfo,
		PipelineTree: req.PipelineTree,
	})
	if err != nil {
		return err
	}

	return CreatedResponse(c, detail)
}

func (h *TemplateHandler) Get(c echo.Context) error {
	scope, err := ParseScope(c)
	if err != nil {
		return err
	}

	detail, err := h.service.Get(c.Request().Context(), scope)
	if err != nil {
		return err
	}

	return SuccessResponse(c, detail)
}

// UpdatePipelineTree handles PUT /pipeline_tree. An unchanged tree is not
// written and comes back with changed=false.
func (h *TemplateHandler) UpdatePipelineTree(c echo.Context) error {
	operator, err := GetOperator(c)
	if err != nil {
		return err
	}

	scope, err := ParseScope(c)
	if err != nil {
		return err
	}

	req, err := utils.BindRequest[UpdatePipelineTreeRequest](c)
	if err != nil {
		return err
	}

	detail, changed, err := h.service.UpdatePipelineTree(c.Request().Context(), operator, scope, req.PipelineTree)
	if err != nil {
		return err
	}

	return SuccessResponse(c, UpdatePipelineTreeResponse{Detail: detail, Changed: changed})
}
