package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"signalwatch/internal/domain/signal"
	"signalwatch/pkg/logger"
)

// Pinger is a dependency that can report connectivity
type Pinger interface {
	Ping(ctx context.Context) error
}

// StateSource lists per-feed schedule state
type StateSource interface {
	States() []signal.ScheduleState
}

// Handler provides health check endpoints
type Handler struct {
	log         *logger.Logger
	store       Pinger
	storeName   string
	feeds       StateSource
	startTime   time.Time
	serviceName string
	version     string
}

// New creates a new health check handler
func New(
	log *logger.Logger,
	store Pinger,
	storeName string,
	feeds StateSource,
	serviceName string,
	version string,
) *Handler {
	return &Handler{
		log:         log,
		store:       store,
		storeName:   storeName,
		feeds:       feeds,
		startTime:   time.Now(),
		serviceName: serviceName,
		version:     version,
	}
}

// HealthStatus represents the overall health status
type HealthStatus struct {
	Status      string                     `json:"status"` // "healthy", "degraded", "unhealthy"
	Service     string                     `json:"service"`
	Version     string                     `json:"version"`
	Uptime      string                     `json:"uptime"`
	Timestamp   string                     `json:"timestamp"`
	Checks      map[string]ComponentHealth `json:"checks"`
	Unreachable []string                   `json:"unreachable_feeds,omitempty"`
}

// ComponentHealth represents health of a single component
type ComponentHealth struct {
	Status       string `json:"status"`
	ResponseTime string `json:"response_time,omitempty"`
	Error        string `json:"error,omitempty"`
}

// HandleLiveness returns 200 OK if service is running
// Used by Kubernetes liveness probe
func (h *Handler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status": "alive",
	})
}

// HandleReadiness checks if service is ready to accept traffic.
// Unreachable feeds do not affect readiness.
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]ComponentHealth{
		h.storeName: h.checkStore(ctx),
	}

	status := h.newStatus(checks)
	statusCode := http.StatusOK
	if checks[h.storeName].Status != "healthy" {
		status.Status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
		h.log.Warn("Readiness check failed", "checks", checks)
	}

	writeStatus(w, statusCode, status)
}

// HandleHealth returns detailed health status including feed reachability
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	checks := map[string]ComponentHealth{
		h.storeName: h.checkStore(ctx),
	}

	status := h.newStatus(checks)
	status.Unreachable = h.unreachableFeeds()

	statusCode := http.StatusOK
	switch {
	case checks[h.storeName].Status != "healthy":
		status.Status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	case len(status.Unreachable) > 0:
		status.Status = "degraded" // still 200
	}

	writeStatus(w, statusCode, status)
}

func (h *Handler) newStatus(checks map[string]ComponentHealth) HealthStatus {
	return HealthStatus{
		Status:    "healthy",
		Service:   h.serviceName,
		Version:   h.version,
		Uptime:    time.Since(h.startTime).String(),
		Timestamp: time.Now().Format(time.RFC3339),
		Checks:    checks,
	}
}

func (h *Handler) unreachableFeeds() []string {
	if h.feeds == nil {
		return nil
	}
	var out []string
	for _, st := range h.feeds.States() {
		if st.Unreachable() {
			out = append(out, st.FeedID)
		}
	}
	return out
}

// checkStore verifies settings store connectivity
func (h *Handler) checkStore(ctx context.Context) ComponentHealth {
	if h.store == nil {
		return ComponentHealth{Status: "healthy"}
	}

	start := time.Now()
	err := h.store.Ping(ctx)
	elapsed := time.Since(start)

	if err != nil {
		h.log.Warn("Settings store health check failed", "store", h.storeName, "error", err, "elapsed", elapsed)
		return ComponentHealth{
			Status:       "unhealthy",
			ResponseTime: elapsed.String(),
			Error:        err.Error(),
		}
	}

	return ComponentHealth{
		Status:       "healthy",
		ResponseTime: elapsed.String(),
	}
}

func writeStatus(w http.ResponseWriter, code int, status HealthStatus) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(status)
}
