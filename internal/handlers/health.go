package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nextmind-ai/app-verification/internal/middleware"
	"github.com/nextmind-ai/app-verification/internal/observability"
	"github.com/nextmind-ai/app-verification/internal/utils"
	"go.uber.org/zap"
)

const healthCheckTimeout = 3 * time.Second

// HealthCheckFunc probes one dependency
type HealthCheckFunc func(ctx context.Context) error

type healthCheck struct {
	name     string
	critical bool
	check    HealthCheckFunc
}

// HealthHandler reports the health of the service dependencies. A failing
// critical dependency makes the service unhealthy, any other one degraded.
type HealthHandler struct {
	checks []healthCheck
}

// NewHealthHandler creates a handler without checks
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// AddCheck registers a dependency probe
func (h *HealthHandler) AddCheck(name string, critical bool, check HealthCheckFunc) *HealthHandler {
	h.checks = append(h.checks, healthCheck{name: name, critical: critical, check: check})
	return h
}

// HealthCheck godoc
// @Summary Health check
// @Description Checks the service and its dependencies (MongoDB, Redis, mail dispatch).
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse "Service is healthy or degraded"
// @Failure 503 {object} HealthResponse "A critical dependency is unavailable"
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	health := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Services:  make(map[string]string, len(h.checks)),
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, hc := range h.checks {
		wg.Add(1)
		go func(hc healthCheck) {
			defer wg.Done()

			spanCtx, span := utils.TraceExternalService(ctx, hc.name, "health")
			err := hc.check(spanCtx)
			if err != nil {
				utils.RecordErrorInSpan(span, err, nil)
			}
			span.End()

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				health.Services[hc.name] = "healthy"
				return
			}

			observability.Logger().Warn("health check failed",
				zap.String("service", hc.name),
				zap.Error(err))
			health.Services[hc.name] = "unhealthy"
			if hc.critical {
				health.Status = "unhealthy"
			} else if health.Status == "healthy" {
				health.Status = "degraded"
			}
		}(hc)
	}
	wg.Wait()

	health.ResponseTime = middleware.ElapsedSince(c).String()

	if health.Status == "unhealthy" {
		c.JSON(http.StatusServiceUnavailable, health)
		return
	}
	c.JSON(http.StatusOK, health)
}
