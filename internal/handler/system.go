package handler

import (
	"context"
	"net/http"
	"sort"
	"time"

	"propvest/pkg/logger"
)

// Check probes one dependency.
type Check func(ctx context.Context) error

// SystemHandler serves liveness and readiness probes.
type SystemHandler struct {
	checks    map[string]Check
	logger    logger.Logger
	startTime time.Time
	timeout   time.Duration
}

func NewSystemHandler(checks map[string]Check, log logger.Logger) *SystemHandler {
	return &SystemHandler{
		checks:    checks,
		logger:    log,
		startTime: time.Now(),
		timeout:   2 * time.Second,
	}
}

type ServiceStatus struct {
	Name      string `json:"name"`
	Status    string `json:"status"` // operational, degraded, outage
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "healthy",
		"service":        "propvest",
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
	})
}

// Ready reports 503 when any dependency is down.
func (h *SystemHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	ready := true
	services := make([]ServiceStatus, 0, len(names))
	for _, name := range names {
		start := time.Now()
		err := h.checks[name](ctx)
		st := ServiceStatus{Name: name, Status: "operational", LatencyMs: time.Since(start).Milliseconds()}
		switch {
		case err != nil:
			ready = false
			st.Status = "outage"
			st.Error = err.Error()
			h.logger.Error("Readiness check failed", map[string]interface{}{"check": name, "error": err.Error()})
		case st.LatencyMs > 200:
			st.Status = "degraded"
		}
		services = append(services, st)
	}

	status, label := http.StatusOK, "ready"
	if !ready {
		status, label = http.StatusServiceUnavailable, "not ready"
	}
	respondJSON(w, status, map[string]interface{}{"status": label, "services": services})
}
