package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// HealthHandler serves GET /health by running every registered check.
type HealthHandler struct {
	service string
	checks  map[string]HealthCheck
	timeout time.Duration
	log     *zap.Logger
}

// NewHealthHandler creates a health handler for the named checks.
func NewHealthHandler(service string, checks map[string]HealthCheck, log *zap.Logger) *HealthHandler {
	return &HealthHandler{
		service: service,
		checks:  checks,
		timeout: 2 * time.Second,
		log:     log,
	}
}

// Health responds 200 when all checks pass and 503 otherwise.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			h.log.Warn("health check failed", zap.String("check", name), zap.Error(err))
			results[name] = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	state := "healthy"
	if status != http.StatusOK {
		state = "unhealthy"
	}
	c.JSON(status, gin.H{
		"status":  state,
		"service": h.service,
		"checks":  results,
	})
}
