package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aks-migrator/engine/pkg/dispatcher"
	"github.com/aks-migrator/engine/pkg/telemetry"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeHealthChecker struct {
	health *dispatcher.PoolHealth
}

func (f *fakeHealthChecker) Health(ctx context.Context) *dispatcher.PoolHealth { return f.health }

func TestHealthzAlwaysOK(t *testing.T) {
	router := NewRouter(telemetry.NewMemStore(), nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzWithoutPoolReportsNotStarted(t *testing.T) {
	router := NewRouter(telemetry.NewMemStore(), nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReportsUnhealthyPool(t *testing.T) {
	pool := &fakeHealthChecker{health: &dispatcher.PoolHealth{IsHealthy: false}}
	router := NewRouter(telemetry.NewMemStore(), pool)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestProcessSnapshotReturnsRecord(t *testing.T) {
	store := telemetry.NewMemStore()
	require.NoError(t, store.MarkAgentActive(context.Background(), "proc-1", "platform_detector"))

	router := NewRouter(store, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/processes/proc-1", nil)
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProcessSnapshotReturns404ForUnknownProcess(t *testing.T) {
	router := NewRouter(telemetry.NewMemStore(), nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/processes/missing", nil)
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
