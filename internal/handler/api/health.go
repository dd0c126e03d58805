package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"LobCast/internal/service/metrics"
	xhttp "LobCast/pkg/http"
	xlogger "LobCast/pkg/logger"
)

// healthTimeout bounds one pass over all dependency probes.
const healthTimeout = 5 * time.Second

// HealthCheck probes one infrastructure dependency by name.
type HealthCheck struct {
	Name  string
	Probe func(ctx context.Context) error
}

// HealthEchoHandler reports whether the process and its dependencies are
// reachable.
type HealthEchoHandler struct {
	logger *xlogger.Logger
	checks []HealthCheck
}

func NewHealthEchoHandler(logger *xlogger.Logger, checks ...HealthCheck) *HealthEchoHandler {
	metrics.Register()
	return &HealthEchoHandler{logger: logger, checks: checks}
}

func (h *HealthEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
}

// Health runs every dependency probe. The envelope status drops to 503
// when any dependency is down; probes read it from the body like every
// other response.
func (h *HealthEchoHandler) Health(c echo.Context) error {
	start := time.Now()
	endpoint := "health"
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
	defer cancel()

	status := http.StatusOK
	checks := make(map[string]string, len(h.checks))
	for _, chk := range h.checks {
		if err := chk.Probe(ctx); err != nil {
			status = http.StatusServiceUnavailable
			checks[chk.Name] = err.Error()
			metrics.APIErrors.WithLabelValues(endpoint).Inc()
			h.logger.Warn("health check failed",
				xlogger.String("dependency", chk.Name),
				xlogger.Error(err))
			continue
		}
		checks[chk.Name] = "ok"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	return xhttp.DataResponse(c, status, map[string]interface{}{
		"status": state,
		"checks": checks,
	})
}
