package handler

import (
	"net/http"
	"time"
)

// SystemHandler serves health and status probes. Both are public routes
// outside the authorization pipeline.
type SystemHandler struct {
	version   string
	startedAt time.Time
}

// NewSystemHandler creates a SystemHandler.
func NewSystemHandler(version string) *SystemHandler {
	return &SystemHandler{version: version, startedAt: time.Now()}
}

// Health is a liveness probe.
// GET /v1/system/health
func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"status":  "ok",
	})
}

// Status reports version and uptime.
// GET /v1/system/status
func (h *SystemHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"version":        h.version,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	})
}
