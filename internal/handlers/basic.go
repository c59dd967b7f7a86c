package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"doc-chat/internal/models"
	"doc-chat/internal/workers"

	"go.uber.org/zap"
)

// Pinger is a dependency whose liveness is reported by the health endpoint
type Pinger interface {
	Ping(ctx context.Context) error
}

// WorkerStatsSource reports the statistics of background workers
type WorkerStatsSource interface {
	GetAllStats() []workers.WorkerStats
}

// HealthHandler reports service health
type HealthHandler struct {
	deps   map[string]Pinger
	pool   WorkerStatsSource
	logger *zap.Logger
}

// NewHealthHandler creates a health handler checking the given dependencies
func NewHealthHandler(deps map[string]Pinger, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{deps: deps, logger: logger}
}

// WithWorkers includes the statistics of pool in every health response
func (h *HealthHandler) WithWorkers(pool WorkerStatsSource) *HealthHandler {
	h.pool = pool
	return h
}

// HealthResponse is the health endpoint payload
type HealthResponse struct {
	Message      string                `json:"message"`
	Status       string                `json:"status"`
	Dependencies map[string]string     `json:"dependencies,omitempty"`
	Workers      []workers.WorkerStats `json:"workers,omitempty"`
}

// HealthCheck handles health requests
// @Summary Health check
// @Description Report service health and the state of its dependencies
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{
		Message: "Server is healthy",
		Status:  "success",
	}
	status := http.StatusOK

	if len(h.deps) > 0 {
		resp.Dependencies = make(map[string]string, len(h.deps))
		for name, dep := range h.deps {
			if err := dep.Ping(ctx); err != nil {
				h.logger.Warn("Health dependency down", zap.String("dependency", name), zap.Error(err))
				resp.Dependencies[name] = "unavailable"
				resp.Message = "Server is degraded"
				resp.Status = "error"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Dependencies[name] = "ok"
		}
	}

	if h.pool != nil {
		resp.Workers = h.pool.GetAllStats()
	}

	sendJSON(w, h.logger, status, resp)
}

// Liveness answers as long as the process serves HTTP
func Liveness(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, nil, http.StatusOK, models.BasicResponse{
		Message: "alive",
		Status:  "success",
	})
}

func sendJSON(w http.ResponseWriter, logger *zap.Logger, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil && logger != nil {
		logger.Error("Failed to encode JSON", zap.Error(err))
	}
}

// ErrorResponse is the error envelope of every endpoint
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func sendError(w http.ResponseWriter, logger *zap.Logger, status int, message string) {
	sendJSON(w, logger, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Status:  status,
	})
}
