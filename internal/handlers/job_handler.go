package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"

	"github.com/droverhq/drover/internal/interfaces"
	"github.com/droverhq/drover/internal/models"
)

var validate = validator.New()

// startJobRequest is the body of POST /jobs/{task_type}/start
type startJobRequest struct {
	TaskID  int               `json:"task_id" validate:"gte=0"`
	Options models.RunOptions `json:"options"`
}

// JobHandler serves the jobs API
type JobHandler struct {
	orchestrator interfaces.Orchestrator
	jobs         interfaces.JobService
	logger       arbor.ILogger
}

// NewJobHandler creates a job handler
func NewJobHandler(orchestrator interfaces.Orchestrator, jobs interfaces.JobService, logger arbor.ILogger) *JobHandler {
	return &JobHandler{
		orchestrator: orchestrator,
		jobs:         jobs,
		logger:       logger,
	}
}

// StartJobHandler accepts a start-request for one task type
// POST /jobs/{task_type}/start
func (h *JobHandler) StartJobHandler(w http.ResponseWriter, r *http.Request) {
	taskType := models.TaskType(pathSegment(r.URL.Path, 1))

	var req startJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid start-request: "+err.Error())
		return
	}

	jobID, err := h.orchestrator.Start(r.Context(), taskType, req.TaskID, req.Options)
	if err != nil {
		if errors.Is(err, interfaces.ErrInvalidTaskType) {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error().Err(err).Str("task_type", string(taskType)).Msg("Start-request failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"job_id":   jobID,
		"accepted": true,
	})
}

// ListJobsHandler returns job summaries
// GET /jobs?status=running&task_type=warmup&limit=50&offset=0
func (h *JobHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	opts := &interfaces.JobListOptions{
		Status:   r.URL.Query().Get("status"),
		TaskType: r.URL.Query().Get("task_type"),
		Limit:    50,
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			opts.Limit = parsed
		}
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			opts.Offset = parsed
		}
	}

	summaries, err := h.jobs.ListJobs(r.Context(), opts)
	if err != nil {
		h.logger.Error().Err(err).Msg("Job listing failed")
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  summaries,
		"count": len(summaries),
	})
}

// JobStatusHandler returns one job's summary
// GET /jobs/{job_id}/status
func (h *JobHandler) JobStatusHandler(w http.ResponseWriter, r *http.Request) {
	jobID := pathSegment(r.URL.Path, 1)

	summary, err := h.jobs.GetStatus(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, interfaces.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, "job not found: "+jobID)
			return
		}
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, summary)
}

// StopJobHandler requests cooperative cancellation
// POST /jobs/{job_id}/stop
func (h *JobHandler) StopJobHandler(w http.ResponseWriter, r *http.Request) {
	jobID := pathSegment(r.URL.Path, 1)

	stopped, err := h.jobs.Cancel(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, interfaces.ErrJobNotFound) {
			WriteError(w, http.StatusNotFound, "job not found: "+jobID)
			return
		}
		WriteError(w, http.StatusInternalServerError, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]bool{"stopped": stopped})
}

// DeleteJobHandler removes a non-running job record
// DELETE /jobs/{job_id}
func (h *JobHandler) DeleteJobHandler(w http.ResponseWriter, r *http.Request) {
	jobID := pathSegment(r.URL.Path, 1)

	if err := h.jobs.DeleteJob(r.Context(), jobID); err != nil {
		var execErr *interfaces.JobExecutionError
		switch {
		case errors.Is(err, interfaces.ErrJobNotFound):
			WriteError(w, http.StatusNotFound, "job not found: "+jobID)
		case errors.As(err, &execErr):
			WriteError(w, http.StatusConflict, execErr.Reason)
		default:
			WriteError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	WriteJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// pathSegment returns the idx-th non-empty path segment, or ""
func pathSegment(path string, idx int) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if idx < 0 || idx >= len(parts) {
		return ""
	}
	return parts[idx]
}
