// Package api exposes the engine's HTTP ops surface: liveness/readiness
// probes and a read-only process snapshot endpoint. It is not an
// interactive UI (that remains out of scope); it is the same kind of
// minimal health-check router the teacher bootstraps in cmd/tarsy.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aks-migrator/engine/pkg/dispatcher"
	"github.com/aks-migrator/engine/pkg/telemetry"
)

// HealthChecker reports the dispatcher's current health for /readyz.
type HealthChecker interface {
	Health(ctx context.Context) *dispatcher.PoolHealth
}

// NewRouter builds the engine's gin.Engine. store serves the process
// snapshot endpoint; pool (optional, may be nil before the dispatcher
// starts) serves /readyz's queue-reachability check.
func NewRouter(store telemetry.Store, pool HealthChecker) *gin.Engine {
	router := gin.Default()

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/readyz", func(c *gin.Context) {
		if pool == nil {
			c.JSON(http.StatusOK, gin.H{"status": "ready", "dispatcher": "not started"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		health := pool.Health(ctx)
		if !health.IsHealthy {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not ready", "dispatcher": health})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "dispatcher": health})
	})

	router.GET("/api/v1/processes/:id", func(c *gin.Context) {
		record, err := store.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, record)
	})

	return router
}
