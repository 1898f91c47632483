package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/erp/receiving/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// Pinger is a dependency whose reachability is reported by /health
type Pinger interface {
	Ping(ctx context.Context) error
}

// SessionCounter reports the number of open intake sessions
type SessionCounter interface {
	Len() int
}

// HealthHandler serves liveness and basic service information
type HealthHandler struct {
	BaseHandler
	name      string
	version   string
	startTime time.Time
	sessions  SessionCounter
	checks    map[string]Pinger
	timeout   time.Duration
}

// HealthResponse is the /health payload
type HealthResponse struct {
	Status    string            `json:"status"`
	Name      string            `json:"name"`
	Version   string            `json:"version"`
	GoVersion string            `json:"go_version"`
	Uptime    string            `json:"uptime"`
	Sessions  int               `json:"sessions"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// NewHealthHandler creates a HealthHandler. checks maps a dependency name
// to its pinger; a failing check reports "degraded" with 503.
func NewHealthHandler(name, version string, sessions SessionCounter, checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{
		name:      name,
		version:   version,
		startTime: time.Now(),
		sessions:  sessions,
		checks:    checks,
		timeout:   2 * time.Second,
	}
}

// Health GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	resp := HealthResponse{
		Status:    "ok",
		Name:      h.name,
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	}
	if h.sessions != nil {
		resp.Sessions = h.sessions.Len()
	}

	status := http.StatusOK
	if len(h.checks) > 0 {
		ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
		defer cancel()

		resp.Checks = make(map[string]string, len(h.checks))
		for name, check := range h.checks {
			if err := check.Ping(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
	}

	c.JSON(status, dto.NewSuccessResponse(resp))
}
