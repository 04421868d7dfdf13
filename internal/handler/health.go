package handler

import (
	"net/http"
	"time"

	"github.com/sheetcart-ai/ops-platform/internal/events"
	"github.com/sheetcart-ai/ops-platform/internal/store"
)

// HealthHandler reports liveness and readiness.
type HealthHandler struct {
	store      *store.Store
	natsClient *events.Client
	startTime  time.Time
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(st *store.Store, nc *events.Client) *HealthHandler {
	return &HealthHandler{
		store:      st,
		natsClient: nc,
		startTime:  time.Now(),
	}
}

// Health handles liveness checks.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"uptime": time.Since(h.startTime).String(),
	})
}

// Ready handles readiness checks: the process is ready only when both the
// database and the event bus are reachable.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{
		"database": "ok",
		"nats":     "ok",
	}
	ready := true

	if !h.store.Healthy(r.Context()) {
		checks["database"] = "unreachable"
		ready = false
	}
	if !h.natsClient.IsConnected() {
		checks["nats"] = "disconnected"
		ready = false
	}

	status := http.StatusOK
	state := "ready"
	if !ready {
		status = http.StatusServiceUnavailable
		state = "not ready"
	}

	writeJSON(w, status, map[string]interface{}{
		"status": state,
		"checks": checks,
	})
}
