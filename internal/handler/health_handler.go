package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/response"
)

const healthTimeout = 2 * time.Second

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// HealthHandler reports process liveness and dependency readiness.
type HealthHandler struct {
	checks    map[string]HealthCheck
	startTime time.Time
	log       zerolog.Logger
}

// NewHealthHandler creates a HealthHandler with named dependency checks.
func NewHealthHandler(checks map[string]HealthCheck, log zerolog.Logger) *HealthHandler {
	return &HealthHandler{
		checks:    checks,
		startTime: time.Now(),
		log:       log.With().Str("component", "health_handler").Logger(),
	}
}

// Health godoc
// GET /health
// Returns 200 when every dependency answers, 503 otherwise.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	deps := make(gin.H, len(names))
	healthy := true
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.log.Warn().Err(err).Str("dependency", name).Msg("Health check failed")
			deps[name] = "down"
			healthy = false
			continue
		}
		deps[name] = "up"
	}

	status, state := http.StatusOK, "ok"
	if !healthy {
		status, state = http.StatusServiceUnavailable, "degraded"
	}
	response.Success(c, status, gin.H{
		"status":       state,
		"uptime":       time.Since(h.startTime).Round(time.Second).String(),
		"dependencies": deps,
	})
}
