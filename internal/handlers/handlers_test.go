package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fennel/internal/handlers"
	"github.com/Ramsey-B/fennel/internal/services/mockdata"
	"github.com/Ramsey-B/fennel/internal/services/spaceconfig"
	fennelerrors "github.com/Ramsey-B/fennel/pkg/errors"
	"github.com/Ramsey-B/fennel/pkg/middleware"
	"github.com/Ramsey-B/fennel/pkg/models"
)

type fakeMockDataService struct {
	operator string
	scope    models.TemplateScope
	desired  models.DesiredMockData
	nodeID   string
	err      error
	records  []models.MockData
}

func (f *fakeMockDataService) Reconcile(_ context.Context, operator string, scope models.TemplateScope, desired models.DesiredMockData) (mockdata.Result, error) {
	f.operator, f.scope, f.desired = operator, scope, desired
	return mockdata.Result{Records: f.records}, f.err
}

func (f *fakeMockDataService) BatchCreate(_ context.Context, operator string, scope models.TemplateScope, desired models.DesiredMockData) (mockdata.Result, error) {
	f.operator, f.scope, f.desired = operator, scope, desired
	return mockdata.Result{Records: f.records}, f.err
}

func (f *fakeMockDataService) List(_ context.Context, scope models.TemplateScope) ([]models.MockData, error) {
	f.scope = scope
	return f.records, f.err
}

func (f *fakeMockDataService) ListByNode(_ context.Context, scope models.TemplateScope, nodeID string) ([]models.MockData, error) {
	f.scope, f.nodeID = scope, nodeID
	return f.records, f.err
}

func (f *fakeMockDataService) Get(_ context.Context, scope models.TemplateScope, id int64) (models.MockData, error) {
	f.scope = scope
	for _, r := range f.records {
		if r.ID == id {
			return r, nil
		}
	}
	return models.MockData{}, httperror.NewHTTPError(http.StatusNotFound, "mock data not found")
}

type fakeSpaceConfigService struct {
	values map[string]json.RawMessage
}

func (f *fakeSpaceConfigService) Renew(_ context.Context, _ int64, values map[string]json.RawMessage) (spaceconfig.Presentation, error) {
	f.values = values
	return spaceconfig.Presentation{"a": "b"}, nil
}

func (f *fakeSpaceConfigService) Get(context.Context, int64) (spaceconfig.Presentation, error) {
	return spaceconfig.Presentation{"a": "b"}, nil
}

func newServer(service handlers.MockDataService, configs handlers.SpaceConfigService) *echo.Echo {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(logger)
	e.Use(middleware.Context())

	api := e.Group("/api/v1")
	handlers.NewMockDataHandler(service).RegisterRoutes(api)
	if configs != nil {
		handlers.NewSpaceConfigHandler(configs).RegisterRoutes(api)
	}
	return e
}

func do(e *echo.Echo, method, path, body, user string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if user != "" {
		req.Header.Set(middleware.HeaderUserID, user)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

const mockDataPath = "/api/v1/spaces/7/templates/9/mock_data"

func TestReconcile(t *testing.T) {
	service := &fakeMockDataService{records: []models.MockData{{ID: 1, NodeID: "n1", Name: "A2"}}}
	e := newServer(service, nil)

	rec := do(e, http.MethodPut, mockDataPath,
		`{"mock_data":{"n1":[{"id":1,"name":"A2","data":{}},{"name":"C","data":[1]}],"n2":[]}}`, "bob")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "bob", service.operator)
	assert.Equal(t, models.TemplateScope{SpaceID: 7, TemplateID: 9}, service.scope)
	require.Len(t, service.desired["n1"], 2)
	assert.Equal(t, int64(1), service.desired["n1"][0].(models.ExistingMockData).ID)
	assert.IsType(t, models.NewMockData{}, service.desired["n1"][1])
	assert.Empty(t, service.desired["n2"])

	var resp struct {
		Result bool              `json:"result"`
		Code   int               `json:"code"`
		Data   []models.MockData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Result)
	assert.Equal(t, 0, resp.Code)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "A2", resp.Data[0].Name)
}

func TestBatchCreate_Created(t *testing.T) {
	service := &fakeMockDataService{}
	e := newServer(service, nil)

	rec := do(e, http.MethodPost, mockDataPath, `{"mock_data":{"n1":[{"name":"C","data":{}}]}}`, "bob")

	assert.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, service.desired["n1"], 1)
}

func TestWrite_Errors(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		body     string
		user     string
		err      error
		wantCode int
		wantMeta map[string]any
	}{
		{
			name:     "missing operator",
			path:     mockDataPath,
			body:     `{"mock_data":{}}`,
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "bad template id",
			path:     "/api/v1/spaces/7/templates/x/mock_data",
			body:     `{"mock_data":{}}`,
			user:     "bob",
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "malformed body",
			path:     mockDataPath,
			body:     `{"mock_data":`,
			user:     "bob",
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "missing mock_data",
			path:     mockDataPath,
			body:     `{}`,
			user:     "bob",
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "item without name",
			path:     mockDataPath,
			body:     `{"mock_data":{"n1":[{"data":{}}]}}`,
			user:     "bob",
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "null id",
			path:     mockDataPath,
			body:     `{"mock_data":{"n1":[{"id":null,"name":"x","data":{}}]}}`,
			user:     "bob",
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown id",
			path:     mockDataPath,
			body:     `{"mock_data":{}}`,
			user:     "bob",
			err:      fennelerrors.NewValidationError("mock data does not belong to the template").AddNode("n1").AddItem(99),
			wantCode: http.StatusBadRequest,
			wantMeta: map[string]any{"node_id": "n1", "mock_data_id": float64(99)},
		},
		{
			name:     "storage failure",
			path:     mockDataPath,
			body:     `{"mock_data":{}}`,
			user:     "bob",
			err:      fennelerrors.NewStorageError("bulk_delete", assert.AnError),
			wantCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			service := &fakeMockDataService{err: tt.err}
			e := newServer(service, nil)

			rec := do(e, http.MethodPut, tt.path, tt.body, tt.user)

			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			var resp middleware.ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.False(t, resp.Result)
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.NotEmpty(t, resp.RequestID)
			assert.NotContains(t, resp.Message, assert.AnError.Error())
			for k, v := range tt.wantMeta {
				assert.Equal(t, v, resp.Meta[k], k)
			}
		})
	}
}

func TestList(t *testing.T) {
	service := &fakeMockDataService{records: []models.MockData{{ID: 2}, {ID: 1}}}
	e := newServer(service, nil)

	rec := do(e, http.MethodGet, mockDataPath, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, service.nodeID)

	rec = do(e, http.MethodGet, mockDataPath+"?node_id=n1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "n1", service.nodeID)
}

func TestGet(t *testing.T) {
	service := &fakeMockDataService{records: []models.MockData{{ID: 2, Name: "B"}}}
	e := newServer(service, nil)

	rec := do(e, http.MethodGet, mockDataPath+"/2", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"B"`)

	rec = do(e, http.MethodGet, mockDataPath+"/3", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(e, http.MethodGet, mockDataPath+"/0", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRenewSpaceConfig(t *testing.T) {
	configs := &fakeSpaceConfigService{}
	e := newServer(&fakeMockDataService{}, configs)

	rec := do(e, http.MethodPost, "/api/v1/spaces/7/configs", `{"config":{"token_expire":"1d","limits":{"n":1}}}`, "bob")

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `"1d"`, string(configs.values["token_expire"]))
	assert.JSONEq(t, `{"n":1}`, string(configs.values["limits"]))
	assert.JSONEq(t, `{"result":true,"data":{"a":"b"},"code":0}`, rec.Body.String())

	rec = do(e, http.MethodPost, "/api/v1/spaces/7/configs", `{}`, "bob")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
