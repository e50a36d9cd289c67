package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/droverhq/drover/internal/interfaces"
)

// lockRequest is the body of POST /locks/acquire and /locks/release
type lockRequest struct {
	Kind       string `json:"kind" validate:"required"`
	EntityID   string `json:"entity_id" validate:"required"`
	HolderID   string `json:"holder_id" validate:"required"`
	TTLSeconds int    `json:"ttl_seconds" validate:"gte=0"`
}

// LockHandler exposes the lock manager over HTTP so processes without
// access to the shared lock store can still coordinate through this
// worker.
type LockHandler struct {
	locks      interfaces.LockManager
	defaultTTL time.Duration
	logger     arbor.ILogger
}

// NewLockHandler creates a lock handler
func NewLockHandler(locks interfaces.LockManager, defaultTTL time.Duration, logger arbor.ILogger) *LockHandler {
	return &LockHandler{
		locks:      locks,
		defaultTTL: defaultTTL,
		logger:     logger,
	}
}

// AcquireHandler attempts a lock acquire
// POST /locks/acquire
func (h *LockHandler) AcquireHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	ttl := h.defaultTTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}

	granted, err := h.locks.Acquire(r.Context(), req.Kind, req.EntityID, req.HolderID, ttl)
	if err != nil {
		WriteError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]bool{"acquired": granted})
}

// ReleaseHandler releases a held lock
// POST /locks/release
func (h *LockHandler) ReleaseHandler(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}

	if err := h.locks.Release(r.Context(), req.Kind, req.EntityID, req.HolderID); err != nil {
		WriteError(w, http.StatusServiceUnavailable, err.Error())
		return
	}

	WriteJSON(w, http.StatusOK, map[string]bool{"released": true})
}

func (h *LockHandler) decode(w http.ResponseWriter, r *http.Request) (*lockRequest, bool) {
	var req lockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return nil, false
	}
	if err := validate.Struct(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid lock request: "+err.Error())
		return nil, false
	}
	return &req, true
}
