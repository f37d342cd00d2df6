// Package badgerstore persists session snapshots in an embedded Badger
// database. Writes are applied behind the live graph by a background
// flush loop: the store is a recovery aid, never a correctness
// dependency, and a failed flush only costs the most recent snapshot.
package badgerstore

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"agora-backend/domain/core/aggregates"
	pkgerrors "agora-backend/pkg/errors"
)

const snapshotPrefix = "snapshot/"

// Store is a write-behind snapshot journal backed by Badger
type Store struct {
	db     *badger.DB
	logger *zap.Logger

	mu      sync.Mutex
	pending map[string]*aggregates.Snapshot

	stop chan struct{}
	done chan struct{}
}

// NewStore opens the database at path and starts the flush loop
func NewStore(path string, flushInterval time.Duration, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if flushInterval <= 0 {
		flushInterval = time.Second
	}

	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, pkgerrors.NewExternalError("badger", err)
	}

	s := &Store{
		db:      db,
		logger:  logger,
		pending: make(map[string]*aggregates.Snapshot),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.flushLoop(flushInterval)
	return s, nil
}

// SaveSnapshot queues a snapshot for the next flush. Only the newest
// snapshot per session survives the queue; intermediate ones are
// superseded before they hit disk.
func (s *Store) SaveSnapshot(_ context.Context, snap *aggregates.Snapshot) error {
	if snap == nil || snap.SessionID == "" {
		return pkgerrors.NewValidationError("snapshot must carry a session ID")
	}

	s.mu.Lock()
	s.pending[snap.SessionID] = snap
	s.mu.Unlock()
	return nil
}

// LoadSnapshot returns the latest snapshot for a session, preferring a
// queued one over what is on disk
func (s *Store) LoadSnapshot(_ context.Context, sessionID string) (*aggregates.Snapshot, error) {
	s.mu.Lock()
	if snap, ok := s.pending[sessionID]; ok {
		s.mu.Unlock()
		return snap, nil
	}
	s.mu.Unlock()

	var snap aggregates.Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(snapshotPrefix + sessionID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snap)
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, pkgerrors.NewNotFoundError("snapshot for session " + sessionID)
	}
	if err != nil {
		return nil, pkgerrors.NewExternalError("badger", err)
	}
	return &snap, nil
}

// ListSessions returns every session ID with a stored or queued snapshot
func (s *Store) ListSessions(_ context.Context) ([]string, error) {
	seen := make(map[string]struct{})

	s.mu.Lock()
	for id := range s.pending {
		seen[id] = struct{}{}
	}
	s.mu.Unlock()

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(snapshotPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			seen[strings.TrimPrefix(key, snapshotPrefix)] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, pkgerrors.NewExternalError("badger", err)
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	return ids, nil
}

// DeleteSession removes a session's snapshot from the queue and disk
func (s *Store) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.pending, sessionID)
	s.mu.Unlock()

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(snapshotPrefix + sessionID))
	})
	if err != nil {
		return pkgerrors.NewExternalError("badger", err)
	}
	return nil
}

// Close stops the flush loop, writes out what is queued, and closes the
// database
func (s *Store) Close() error {
	close(s.stop)
	<-s.done
	s.flush()
	if err := s.db.Close(); err != nil {
		return pkgerrors.NewExternalError("badger", err)
	}
	return nil
}

func (s *Store) flushLoop(interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.flush()
		}
	}
}

func (s *Store) flush() {
	s.mu.Lock()
	batch := s.pending
	s.pending = make(map[string]*aggregates.Snapshot)
	s.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		for sessionID, snap := range batch {
			data, err := json.Marshal(snap)
			if err != nil {
				return err
			}
			if err := txn.Set([]byte(snapshotPrefix+sessionID), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// Re-queue nothing: the next snapshot supersedes these anyway
		s.logger.Warn("snapshot flush failed", zap.Int("snapshots", len(batch)), zap.Error(err))
		return
	}
	s.logger.Debug("snapshots flushed", zap.Int("snapshots", len(batch)))
}
