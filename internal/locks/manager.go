package locks

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/droverhq/drover/internal/interfaces"
	"github.com/droverhq/drover/internal/models"
)

// Manager implements the LockManager interface over a LockStorage.
// Atomicity lives in the storage layer's conditional write; the manager
// adds the boolean contract, TTL handling and best-effort release.
type Manager struct {
	storage interfaces.LockStorage
	logger  arbor.ILogger
}

// NewManager creates a new lock manager
func NewManager(storage interfaces.LockStorage, logger arbor.ILogger) *Manager {
	return &Manager{
		storage: storage,
		logger:  logger,
	}
}

// Acquire attempts to take the (kind, entityID) lock for holderID.
// Returns false when another live holder owns it. Re-acquiring a lock
// already held by holderID extends its TTL.
func (m *Manager) Acquire(ctx context.Context, kind, entityID, holderID string, ttl time.Duration) (bool, error) {
	lock := &models.TaskLock{
		Kind:      kind,
		EntityID:  entityID,
		HolderID:  holderID,
		ExpiresAt: time.Now().UTC().Add(ttl),
	}

	err := m.storage.AcquireLock(ctx, lock)
	if err == nil {
		return true, nil
	}

	if errors.Is(err, interfaces.ErrLockNotHeld) {
		m.logger.Debug().
			Str("kind", kind).
			Str("entity_id", entityID).
			Str("holder_id", holderID).
			Msg("Lock contended, held by another holder")
		return false, nil
	}

	m.logger.Warn().
		Err(err).
		Str("kind", kind).
		Str("entity_id", entityID).
		Msg("Lock store unavailable")
	return false, err
}

// Release frees the lock if held by holderID. Failures are logged and
// swallowed: an unreleased lock only delays the next acquirer by the
// remaining TTL, it never causes incorrect concurrent access.
func (m *Manager) Release(ctx context.Context, kind, entityID, holderID string) error {
	if err := m.storage.ReleaseLock(ctx, kind, entityID, holderID); err != nil {
		m.logger.Warn().
			Err(err).
			Str("kind", kind).
			Str("entity_id", entityID).
			Str("holder_id", holderID).
			Msg("Best-effort lock release failed; lock will expire via TTL")
	}
	return nil
}
