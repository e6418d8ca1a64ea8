package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jsamuelsen/quotevault/internal/platform/metrics"
	"github.com/jsamuelsen/quotevault/internal/ports"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockHealthRegistry struct {
	mock.Mock
}

func (m *mockHealthRegistry) Register(checker ports.HealthChecker, opts ...ports.CheckOption) error {
	args := m.Called(checker)
	return args.Error(0)
}

func (m *mockHealthRegistry) CheckAll(ctx context.Context) *ports.HealthResult {
	args := m.Called(ctx)
	return args.Get(0).(*ports.HealthResult)
}

func healthEngine(h *HealthHandler) *gin.Engine {
	engine := gin.New()
	h.RegisterHealthRoutesOnEngine(engine)

	return engine
}

func TestNewBuildInfo(t *testing.T) {
	bi := NewBuildInfo("1.0.0", "abc123", "2024-01-15T10:00:00Z")

	assert.Equal(t, "1.0.0", bi.Version)
	assert.Equal(t, "abc123", bi.Commit)
	assert.Equal(t, runtime.Version(), bi.GoVersion)
}

func TestHealthHandler_Liveness(t *testing.T) {
	registry := &mockHealthRegistry{}
	engine := healthEngine(NewHealthHandler(registry, prometheus.NewRegistry(), BuildInfo{}))

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/-/live", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	registry.AssertNotCalled(t, "CheckAll", mock.Anything)
}

func TestHealthHandler_Readiness(t *testing.T) {
	tests := []struct {
		name       string
		result     *ports.HealthResult
		wantStatus int
		wantBody   string
	}{
		{
			name: "healthy",
			result: &ports.HealthResult{
				Status: ports.HealthStatusHealthy,
				Checks: map[string]*ports.CheckResult{
					"store":    {Status: ports.HealthStatusHealthy, Critical: true},
					"pipeline": {Status: ports.HealthStatusHealthy},
				},
			},
			wantStatus: http.StatusOK,
			wantBody:   "healthy",
		},
		{
			name: "pipeline paused",
			result: &ports.HealthResult{
				Status: ports.HealthStatusDegraded,
				Checks: map[string]*ports.CheckResult{
					"store":    {Status: ports.HealthStatusHealthy, Critical: true},
					"pipeline": {Status: ports.HealthStatusUnhealthy, Message: "dispatch paused"},
				},
			},
			wantStatus: http.StatusOK,
			wantBody:   "degraded",
		},
		{
			name: "store down",
			result: &ports.HealthResult{
				Status: ports.HealthStatusUnhealthy,
				Checks: map[string]*ports.CheckResult{
					"store": {Status: ports.HealthStatusUnhealthy, Critical: true, Message: "database closed"},
				},
			},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   "unhealthy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := &mockHealthRegistry{}
			registry.On("CheckAll", mock.Anything).Return(tt.result).Once()

			engine := healthEngine(NewHealthHandler(registry, prometheus.NewRegistry(), BuildInfo{}))

			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/-/ready", nil))

			assert.Equal(t, tt.wantStatus, w.Code)

			var resp readinessResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantBody, resp.Status)
			assert.Len(t, resp.Checks, len(tt.result.Checks))

			registry.AssertExpectations(t)
		})
	}
}

func TestHealthHandler_BuildInfo(t *testing.T) {
	bi := NewBuildInfo("2.1.0", "def456", "2024-02-01T00:00:00Z")
	engine := healthEngine(NewHealthHandler(&mockHealthRegistry{}, prometheus.NewRegistry(), bi))

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/-/build", nil))

	var got BuildInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, bi, got)
}

func TestHealthHandler_MetricsServesInjectedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.DuplicateChecks.WithLabelValues("exact").Inc()

	engine := healthEngine(NewHealthHandler(&mockHealthRegistry{}, reg, BuildInfo{}))

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/-/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `quotevault_duplicate_checks_total{rule="exact"} 1`)
	assert.NotContains(t, w.Body.String(), "go_goroutines")
}
