package interfaces

import (
	"context"
	"time"

	"github.com/droverhq/drover/internal/models"
)

// LockManager grants TTL-scoped exclusive locks keyed by (kind,
// entity_id). Acquire is atomic check-and-set: for concurrent acquires
// of the same key by different holders, at most one returns true until
// the granted lock expires or is released.
type LockManager interface {
	// Acquire attempts to take the lock. Returns false (not an error) if
	// a different, non-expired holder owns it. Re-acquiring with the same
	// holder extends the TTL. Returns ErrResourceNotAvailable if the
	// shared store is unreachable.
	Acquire(ctx context.Context, kind, entityID, holderID string, ttl time.Duration) (bool, error)

	// Release frees the lock if held by holderID. A no-op when the lock
	// is already expired or owned by someone else.
	Release(ctx context.Context, kind, entityID, holderID string) error
}

// LockStorage is the persistence surface behind the lock manager. The
// conditional write is a single storage-level transaction; no separate
// read-then-write steps.
type LockStorage interface {
	// AcquireLock atomically claims or refreshes the lock. Returns
	// ErrLockNotHeld when another live holder owns the key.
	AcquireLock(ctx context.Context, lock *models.TaskLock) error

	// ReleaseLock deletes the lock iff held by holderID; no-op otherwise
	ReleaseLock(ctx context.Context, kind, entityID, holderID string) error

	// PurgeExpired removes expired lock records, returning the count.
	// Housekeeping only: expiry alone already makes a lock free.
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}
