package handlers

import (
	"context"

	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/fennel/internal/services/mockdata"
	"github.com/Ramsey-B/fennel/pkg/models"
	"github.com/Ramsey-B/fennel/pkg/utils"
)

type MockDataService interface {
	Reconcile(ctx context.Context, operator string, scope models.TemplateScope, desired models.DesiredMockData) (mockdata.Result, error)
	BatchCreate(ctx context.Context, operator string, scope models.TemplateScope, desired models.DesiredMockData) (mockdata.Result, error)
	List(ctx context.Context, scope models.TemplateScope) ([]models.MockData, error)
	ListByNode(ctx context.Context, scope models.TemplateScope, nodeID string) ([]models.MockData, error)
	Get(ctx context.Context, scope models.TemplateScope, id int64) (models.MockData, error)
}

// MockDataHandler handles template mock data requests
type MockDataHandler struct {
	service MockDataService
}

func NewMockDataHandler(service MockDataService) *MockDataHandler {
	return &MockDataHandler{service: service}
}

// MockDataRequest is the body of both writes: the desired mock data of a
// template keyed by node id.
type MockDataRequest struct {
	MockData map[string][]models.MockDataInput `json:"mock_data" validate:"required,dive,dive"`
}

func (h *MockDataHandler) RegisterRoutes(g *echo.Group) {
	mockData := g.Group("/spaces/:space_id/templates/:template_id/mock_data")
	mockData.GET("", h.List)
	mockData.GET("/:id", h.Get)
	mockData.POST("", h.BatchCreate)
	mockData.PUT("", h.Reconcile)
}

// List handles GET /mock_data, optionally narrowed by ?node_id=
func (h *MockDataHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	scope, err := ParseScope(c)
	if err != nil {
		return err
	}

	var records []models.MockData
	if nodeID := c.QueryParam("node_id"); nodeID != "" {
		records, err = h.service.ListByNode(ctx, scope, nodeID)
	} else {
		records, err = h.service.List(ctx, scope)
	}
	if err != nil {
		return err
	}

	return SuccessResponse(c, records)
}

// Get handles GET /mock_data/:id
func (h *MockDataHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	scope, err := ParseScope(c)
	if err != nil {
		return err
	}

	id, err := ParseInt64(c, "id")
	if err != nil {
		return err
	}

	record, err := h.service.Get(ctx, scope, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, record)
}

// BatchCreate handles POST /mock_data
func (h *MockDataHandler) BatchCreate(c echo.Context) error {
	return h.write(c, h.service.BatchCreate, CreatedResponse)
}

// Reconcile handles PUT /mock_data
func (h *MockDataHandler) Reconcile(c echo.Context) error {
	return h.write(c, h.service.Reconcile, SuccessResponse)
}

type writeFunc func(ctx context.Context, operator string, scope models.TemplateScope, desired models.DesiredMockData) (mockdata.Result, error)

func (h *MockDataHandler) write(c echo.Context, fn writeFunc, respond func(echo.Context, any) error) error {
	ctx := c.Request().Context()

	operator, err := GetOperator(c)
	if err != nil {
		return err
	}

	scope, err := ParseScope(c)
	if err != nil {
		return err
	}

	req, err := utils.BindRequest[MockDataRequest](c)
	if err != nil {
		return err
	}

	result, err := fn(ctx, operator, scope, models.ToDesired(req.MockData))
	if err != nil {
		return err
	}

	return respond(c, result.Records)
}
