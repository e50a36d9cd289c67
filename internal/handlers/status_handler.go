package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"

	"github.com/droverhq/drover/internal/common"
	"github.com/droverhq/drover/internal/interfaces"
)

// StatusHandler serves health and stats endpoints
type StatusHandler struct {
	jobs   interfaces.JobService
	logger arbor.ILogger
}

// NewStatusHandler creates a status handler
func NewStatusHandler(jobs interfaces.JobService, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		jobs:   jobs,
		logger: logger,
	}
}

// HealthHandler reports liveness
// GET /health
func (h *StatusHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"version": common.GetVersion(),
	})
}

// StatsHandler reports aggregate job counts
// GET /stats
func (h *StatusHandler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.jobs.Stats(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Stats aggregation failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, stats)
}
