package handlers

import (
	"net/http"

	"github.com/facemark/facemark/internal/liveness"
)

// ConfigHandler exposes the read-only liveness and matching tuning so the
// dashboard can display what a deployment is running with.
type ConfigHandler struct {
	thresholds liveness.Thresholds
	pattern    liveness.Pattern
	topK       int
	threshold  float64
}

// NewConfigHandler creates a new config handler.
func NewConfigHandler(thresholds liveness.Thresholds, pattern liveness.Pattern, topK int, threshold float64) *ConfigHandler {
	return &ConfigHandler{
		thresholds: thresholds,
		pattern:    pattern,
		topK:       topK,
		threshold:  threshold,
	}
}

// Get handles GET /api/v1/config.
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"thresholds": h.thresholds,
		"pattern":    patternStages(h.pattern),
		"matching": map[string]any{
			"top_k":        h.topK,
			"max_distance": h.threshold,
			"stage_count":  len(h.pattern.Stages),
		},
	})
}
