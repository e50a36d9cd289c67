package models

import (
	"fmt"
	"time"
)

// TaskLock is a TTL-scoped mutual-exclusion record for one entity within
// one task kind. At most one non-expired lock exists per (kind,
// entity_id) pair; an expired lock is free regardless of whether the
// holder released it, which self-heals after a crashed worker.
type TaskLock struct {
	Kind      string    `json:"kind"`
	EntityID  string    `json:"entity_id"`
	HolderID  string    `json:"holder_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Key returns the storage key for the (kind, entity_id) namespace
func (l *TaskLock) Key() string {
	return LockKey(l.Kind, l.EntityID)
}

// LockKey builds the storage key for a (kind, entity_id) pair
func LockKey(kind, entityID string) string {
	return fmt.Sprintf("lock:%s:%s", kind, entityID)
}

// Expired reports whether the lock is free as of now
func (l *TaskLock) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// HeldBy reports whether the lock is currently held by holderID
func (l *TaskLock) HeldBy(holderID string, now time.Time) bool {
	return l.HolderID == holderID && !l.Expired(now)
}
