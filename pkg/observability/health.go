package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Health states reported by the probes.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// CheckFunc probes one dependency. A nil return is healthy.
type CheckFunc func(ctx context.Context) error

// HealthChecker aggregates dependency probes into liveness and readiness
// endpoints. Required checks failing make the service unhealthy; optional
// checks failing only degrade it.
type HealthChecker struct {
	required map[string]CheckFunc
	optional map[string]CheckFunc
	version  string
}

// NewHealthChecker creates a checker reporting the given build version.
func NewHealthChecker(version string) *HealthChecker {
	return &HealthChecker{
		required: make(map[string]CheckFunc),
		optional: make(map[string]CheckFunc),
		version:  version,
	}
}

// AddCheck registers a required dependency probe.
func (h *HealthChecker) AddCheck(name string, fn CheckFunc) {
	h.required[name] = fn
}

// AddOptionalCheck registers a probe whose failure only degrades the
// service.
func (h *HealthChecker) AddOptionalCheck(name string, fn CheckFunc) {
	h.optional[name] = fn
}

// HealthStatus is the readiness response body.
type HealthStatus struct {
	Status       string                      `json:"status"`
	Timestamp    time.Time                   `json:"timestamp"`
	Version      string                      `json:"version,omitempty"`
	Dependencies map[string]DependencyStatus `json:"dependencies,omitempty"`
}

// DependencyStatus is the outcome of one probe.
type DependencyStatus struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Check runs every probe and aggregates the result.
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Status:       StatusHealthy,
		Timestamp:    time.Now().UTC(),
		Version:      h.version,
		Dependencies: make(map[string]DependencyStatus),
	}

	for name, fn := range h.required {
		dep := runCheck(ctx, fn)
		status.Dependencies[name] = dep
		if dep.Status == StatusUnhealthy {
			status.Status = StatusUnhealthy
		}
	}
	for name, fn := range h.optional {
		dep := runCheck(ctx, fn)
		status.Dependencies[name] = dep
		if dep.Status == StatusUnhealthy && status.Status == StatusHealthy {
			status.Status = StatusDegraded
		}
	}
	return status
}

func runCheck(ctx context.Context, fn CheckFunc) DependencyStatus {
	start := time.Now()
	err := fn(ctx)
	dep := DependencyStatus{
		Status:    StatusHealthy,
		LatencyMS: time.Since(start).Milliseconds(),
	}
	if err != nil {
		dep.Status = StatusUnhealthy
		dep.Message = err.Error()
	}
	return dep
}

// Liveness always reports healthy while the process serves requests.
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    StatusHealthy,
		"timestamp": time.Now().UTC(),
	})
}

// Readiness runs the probes; unhealthy maps to 503, degraded stays 200.
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)
	w.Header().Set("Content-Type", "application/json")
	if status.Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(status)
}

// RegisterHealthRoutes mounts the probe endpoints.
func RegisterHealthRoutes(mux *http.ServeMux, checker *HealthChecker) {
	mux.HandleFunc("/health", checker.Readiness)
	mux.HandleFunc("/health/live", checker.Liveness)
	mux.HandleFunc("/health/ready", checker.Readiness)
}
