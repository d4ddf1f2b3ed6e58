package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-vkg/pkg/config"
)

// checkTimeout bounds each dependency check made by /health.
const checkTimeout = 3 * time.Second

// Dependency checks one dependency the pipeline needs to answer questions.
type Dependency struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthResponse reports overall status and per-dependency results.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
	QueryMode   string `json:"query_mode"`
}

// HealthHandler handles health check and ping endpoints.
type HealthHandler struct {
	cfg    *config.Config
	deps   []Dependency
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. Dependencies are checked on every /health request.
func NewHealthHandler(cfg *config.Config, deps []Dependency, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{cfg: cfg, deps: deps, logger: logger.Named("health")}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Health handles GET /health requests.
// Returns 503 when any dependency check fails.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{Status: "ok"}
	status := http.StatusOK

	if len(h.deps) > 0 {
		response.Components = make(map[string]string, len(h.deps))
	}
	for _, p := range h.deps {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := p.Check(ctx)
		cancel()
		if err != nil {
			h.logger.Warn("Health check failed", zap.String("component", p.Name), zap.Error(err))
			response.Components[p.Name] = "unavailable"
			response.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		response.Components[p.Name] = "ok"
	}

	if err := WriteJSON(w, status, response); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
	}
}

// Ping handles GET /ping requests.
// Returns detailed service information including version and environment.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "ekaya-vkg",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
		QueryMode:   h.cfg.Pipeline.QueryMode,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}
