package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// HealthChecker defines the interface for checking database health.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// VendorHealthChecker reports whether the voice vendor is reachable.
type VendorHealthChecker interface {
	IsCircuitOpen() bool
}

// HealthHandler handles health check HTTP requests.
type HealthHandler struct {
	healthChecker HealthChecker
	vendorChecker VendorHealthChecker
	logger        *zap.Logger
}

// NewHealthHandler creates a HealthHandler. Either checker may be nil.
func NewHealthHandler(db HealthChecker, vendor VendorHealthChecker, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		healthChecker: db,
		vendorChecker: vendor,
		logger:        logger,
	}
}

// RegisterRoutes registers health routes on the router.
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HandleHealth)
	r.Get("/ready", h.HandleReadiness)
	r.Get("/live", h.HandleLiveness)
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status string                     `json:"status"`
	Checks map[string]ComponentHealth `json:"checks,omitempty"`
}

// ComponentHealth represents the health of a single component.
type ComponentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HandleHealth returns a health check response including dependencies.
// The vendor circuit being open degrades the service but does not fail
// the check: cached and persisted results remain servable.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status: "ok",
		Checks: make(map[string]ComponentHealth),
	}

	hasCriticalFailure := false
	hasDegradation := false

	if h.healthChecker != nil {
		if err := h.healthChecker.Ping(ctx); err != nil {
			hasCriticalFailure = true
			response.Checks["database"] = ComponentHealth{
				Status:  "unhealthy",
				Message: err.Error(),
			}
			h.logger.Error("database health check failed", zap.Error(err))
		} else {
			response.Checks["database"] = ComponentHealth{Status: "healthy"}
		}
	}

	if h.vendorChecker != nil {
		if h.vendorChecker.IsCircuitOpen() {
			hasDegradation = true
			response.Checks["voice_vendor"] = ComponentHealth{
				Status:  "degraded",
				Message: "circuit breaker open - vendor temporarily unavailable",
			}
			h.logger.Warn("voice vendor circuit breaker is open")
		} else {
			response.Checks["voice_vendor"] = ComponentHealth{Status: "healthy"}
		}
	}

	if hasCriticalFailure {
		response.Status = "unhealthy"
	} else if hasDegradation {
		response.Status = "degraded"
	}

	statusCode := http.StatusOK
	if response.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}
	JSON(w, r, statusCode, response)
}

// HandleReadiness returns a simple readiness probe response.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	// Only check database - the critical dependency
	if h.healthChecker != nil {
		if err := h.healthChecker.Ping(ctx); err != nil {
			h.logger.Error("readiness check failed", zap.Error(err))
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// HandleLiveness returns a simple liveness probe response.
func (h *HealthHandler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("alive"))
}
