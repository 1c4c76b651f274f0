package health

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/devrev/shardrouter/internal/registry"
	"go.uber.org/zap"
)

// HealthChecker provides health check endpoints
type HealthChecker struct {
	registry *registry.SessionRegistry
	logger   *zap.Logger
}

// HealthStatus represents the health status response
type HealthStatus struct {
	Status         string `json:"status"`
	Timestamp      int64  `json:"timestamp"`
	ActiveSessions int    `json:"active_sessions,omitempty"`
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(reg *registry.SessionRegistry, logger *zap.Logger) *HealthChecker {
	return &HealthChecker{
		registry: reg,
		logger:   logger,
	}
}

// LivenessHandler handles liveness probe requests
func (h *HealthChecker) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    "alive",
		Timestamp: time.Now().Unix(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(status)
}

// ReadinessHandler handles readiness probe requests. The router holds no
// external stores; readiness is the session registry being serviceable.
func (h *HealthChecker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:         "ready",
		Timestamp:      time.Now().Unix(),
		ActiveSessions: h.registry.Len(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(status)
}
