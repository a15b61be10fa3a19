package api

import (
	"net/http"
	"time"

	"github.com/chronoplan/scheduler/internal/api/respond"
	"github.com/chronoplan/scheduler/internal/store"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	store store.Store
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(st store.Store) *HealthHandler { return &HealthHandler{store: st} }

// CheckHealth handles GET /api/health
// Always returns 200; body reports healthy/unhealthy. 500 indicates handler failure only.
func (h *HealthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

// CheckStorageHealth handles GET /api/health/db
func (h *HealthHandler) CheckStorageHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if err := h.store.Ping(r.Context()); err != nil {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	respond.WriteJSON(w, code, map[string]interface{}{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
