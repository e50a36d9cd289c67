package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"

	"github.com/droverhq/drover/internal/interfaces"
	"github.com/droverhq/drover/internal/models"
)

// lockPrefix namespaces lock records away from badgerhold-managed data
var lockPrefix = []byte("lock:")

// LockStorage implements the LockStorage interface on raw Badger
// transactions. Acquire is a single serializable check-and-set: the
// read, the expiry check and the write happen inside one transaction,
// so two concurrent acquires for the same key cannot both succeed.
type LockStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewLockStorage creates a new LockStorage instance
func NewLockStorage(db *BadgerDB, logger arbor.ILogger) interfaces.LockStorage {
	return &LockStorage{
		db:     db,
		logger: logger,
	}
}

// AcquireLock atomically claims or refreshes the lock. The record also
// carries a Badger entry TTL so crashed holders leave no garbage even
// without the sweeper.
func (s *LockStorage) AcquireLock(ctx context.Context, lock *models.TaskLock) error {
	key := []byte(lock.Key())
	now := time.Now().UTC()
	ttl := time.Until(lock.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("lock ttl must be positive")
	}

	data, err := json.Marshal(lock)
	if err != nil {
		return fmt.Errorf("failed to marshal lock: %w", err)
	}

	err = s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(key)
		if err != nil && !errors.Is(err, badgerdb.ErrKeyNotFound) {
			return err
		}

		if err == nil {
			var existing models.TaskLock
			if uerr := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &existing)
			}); uerr != nil {
				return uerr
			}
			// A live lock blocks everyone except its own holder, who may
			// refresh. An expired lock is free to anyone.
			if !existing.Expired(now) && existing.HolderID != lock.HolderID {
				return interfaces.ErrLockNotHeld
			}
		}

		entry := badgerdb.NewEntry(key, data).WithTTL(ttl)
		return txn.SetEntry(entry)
	})

	if err != nil {
		if errors.Is(err, interfaces.ErrLockNotHeld) {
			return interfaces.ErrLockNotHeld
		}
		// A write conflict means another acquire won the race.
		if errors.Is(err, badgerdb.ErrConflict) {
			return interfaces.ErrLockNotHeld
		}
		return fmt.Errorf("%w: %v", interfaces.ErrResourceNotAvailable, err)
	}

	return nil
}

// ReleaseLock deletes the lock iff held by holderID. Late or duplicate
// releases after expiry and reassignment are silently ignored.
func (s *LockStorage) ReleaseLock(ctx context.Context, kind, entityID, holderID string) error {
	key := []byte(models.LockKey(kind, entityID))
	now := time.Now().UTC()

	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		var existing models.TaskLock
		if uerr := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &existing)
		}); uerr != nil {
			return uerr
		}

		if !existing.HeldBy(holderID, now) {
			return nil
		}

		return txn.Delete(key)
	})

	if err != nil && !errors.Is(err, badgerdb.ErrConflict) {
		return fmt.Errorf("%w: %v", interfaces.ErrResourceNotAvailable, err)
	}
	return nil
}

// PurgeExpired removes expired lock records. Housekeeping only — expiry
// alone already makes a lock free for the next acquirer.
func (s *LockStorage) PurgeExpired(ctx context.Context, now time.Time) (int, error) {
	var expired [][]byte

	err := s.db.Store().Badger().View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = lockPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(lockPrefix); it.ValidForPrefix(lockPrefix); it.Next() {
			item := it.Item()
			var lock models.TaskLock
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &lock)
			}); err != nil {
				continue
			}
			if lock.Expired(now) {
				expired = append(expired, item.KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to scan locks: %w", err)
	}

	purged := 0
	for _, key := range expired {
		err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
			return txn.Delete(key)
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("key", string(key)).Msg("Failed to purge expired lock")
			continue
		}
		purged++
	}

	return purged, nil
}
