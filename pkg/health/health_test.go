package health_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fennel/pkg/health"
)

func serve(t *testing.T, checker *health.Checker, path string) (int, health.Response) {
	t.Helper()
	e := echo.New()
	checker.RegisterRoutes(e)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var resp health.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func TestLiveness(t *testing.T) {
	code, resp := serve(t, health.NewChecker("v1"), "/health/live")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, health.StatusHealthy, resp.Status)
	assert.Equal(t, "v1", resp.Version)
}

func TestReadiness(t *testing.T) {
	t.Run("not ready during startup", func(t *testing.T) {
		code, resp := serve(t, health.NewChecker("v1"), "/health/ready")
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, health.StatusUnhealthy, resp.Checks["startup"].Status)
	})

	t.Run("healthy dependencies", func(t *testing.T) {
		checker := health.NewChecker("v1")
		checker.AddCheck("database", func(context.Context) error { return nil })
		checker.AddCheck("redis", nil)
		checker.SetReady(true)

		code, resp := serve(t, checker, "/health/ready")
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, health.StatusHealthy, resp.Status)
		assert.Len(t, resp.Checks, 1)
	})

	t.Run("failing dependency", func(t *testing.T) {
		checker := health.NewChecker("v1")
		checker.AddCheck("database", func(context.Context) error { return nil })
		checker.AddCheck("redis", func(context.Context) error { return errors.New("dial tcp: refused") })
		checker.SetReady(true)

		code, resp := serve(t, checker, "/health/ready")
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, health.StatusUnhealthy, resp.Status)
		assert.Equal(t, "dial tcp: refused", resp.Checks["redis"].Message)
		assert.Equal(t, health.StatusHealthy, resp.Checks["database"].Status)
	})
}
