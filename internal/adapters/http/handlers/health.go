package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type HealthCheckConfig struct {
	Timeout time.Duration
}

func DefaultHealthCheckConfig() HealthCheckConfig {
	return HealthCheckConfig{Timeout: 5 * time.Second}
}

// HealthHandler reports liveness and, for the detailed endpoint, the
// reachability of each external dependency the pipeline relies on.
type HealthHandler struct {
	config HealthCheckConfig
	db     *pgxpool.Pool
}

func NewHealthHandler() *HealthHandler {
	return &HealthHandler{config: DefaultHealthCheckConfig()}
}

func NewHealthHandlerWithDB(db *pgxpool.Pool) *HealthHandler {
	return &HealthHandler{config: DefaultHealthCheckConfig(), db: db}
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

type DetailedHealthResponse struct {
	Status   string                   `json:"status"`
	Version  string                   `json:"version"`
	Services map[string]ServiceHealth `json:"services"`
}

type ServiceHealth struct {
	Status    string  `json:"status"`
	LatencyMs *int64  `json:"latency_ms,omitempty"`
	Error     *string `json:"error,omitempty"`
}

func (h *HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: "1.0.0"})
}

func (h *HealthHandler) HandleDetailed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	response := DetailedHealthResponse{Version: "1.0.0", Services: make(map[string]ServiceHealth)}

	if h.db != nil {
		response.Services["database"] = h.checkDatabase(ctx)
	}

	response.Status = calculateOverallStatus(response.Services)

	status := http.StatusOK
	if response.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

func (h *HealthHandler) checkDatabase(ctx context.Context) ServiceHealth {
	start := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	err := h.db.Ping(checkCtx)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		errMsg := err.Error()
		return ServiceHealth{Status: "unhealthy", LatencyMs: &latency, Error: &errMsg}
	}
	return ServiceHealth{Status: "healthy", LatencyMs: &latency}
}

func calculateOverallStatus(services map[string]ServiceHealth) string {
	if len(services) == 0 {
		return "healthy"
	}
	for name, svc := range services {
		if svc.Status == "unhealthy" && name == "database" {
			return "unhealthy"
		}
	}
	return "healthy"
}
