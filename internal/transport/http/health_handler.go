package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"zipenrich/internal/infrastructure"
	"zipenrich/pkg/contracts"
)

// HealthResponse is the body of GET /healthz
type HealthResponse struct {
	Status  string                `json:"status"`
	Service string                `json:"service"`
	Version contracts.VersionInfo `json:"version"`
	Uptime  string                `json:"uptime"`
	Time    time.Time             `json:"time"`
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	started time.Time
	logger  *slog.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{
		started: time.Now(),
		logger:  logger.With(slog.String("handler", "health")),
	}
}

// HealthCheck handles GET /healthz
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	render.JSON(w, r, HealthResponse{
		Status:  "ok",
		Service: infrastructure.ServiceName,
		Version: contracts.GetVersionInfo(),
		Uptime:  now.Sub(h.started).Truncate(time.Second).String(),
		Time:    now.UTC(),
	})
}
