package services

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"agora-backend/domain/config"
	"agora-backend/domain/core/aggregates"
	pkgerrors "agora-backend/pkg/errors"
)

// SessionRegistry owns every live session. Each session gets its own
// coordinator, lock manager, and merged configuration; nothing is shared
// between sessions except the injected infrastructure.
type SessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*SessionCoordinator

	defaults *config.SessionConfig
	deps     CoordinatorDeps
	logger   *zap.Logger
}

// NewSessionRegistry creates a registry with the given session defaults
func NewSessionRegistry(defaults *config.SessionConfig, deps CoordinatorDeps) *SessionRegistry {
	if defaults == nil {
		defaults = config.DefaultSessionConfig()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionRegistry{
		sessions: make(map[string]*SessionCoordinator),
		defaults: defaults,
		deps:     deps,
		logger:   logger,
	}
}

// CreateSession creates a session with the defaults merged with the
// given overrides and starts its lease sweeper
func (r *SessionRegistry) CreateSession(ctx context.Context, overrides *config.Overrides) *SessionCoordinator {
	sessionID := uuid.New().String()
	cfg := r.defaults.Apply(overrides)
	coordinator := NewSessionCoordinator(sessionID, cfg, r.deps)
	coordinator.StartSweeper(ctx)

	r.mu.Lock()
	r.sessions[sessionID] = coordinator
	r.mu.Unlock()

	r.logger.Info("session created", zap.String("session_id", sessionID))
	return coordinator
}

// Get returns the coordinator for a session
func (r *SessionRegistry) Get(sessionID string) (*SessionCoordinator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	coordinator, ok := r.sessions[sessionID]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("session " + sessionID)
	}
	return coordinator, nil
}

// List returns the IDs of all live sessions, sorted
func (r *SessionRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DeleteSession stops a session and removes its persisted state
func (r *SessionRegistry) DeleteSession(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	coordinator, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()

	if !ok {
		return pkgerrors.NewNotFoundError("session " + sessionID)
	}

	coordinator.Close()
	if r.deps.Store != nil {
		if err := r.deps.Store.DeleteSession(ctx, sessionID); err != nil {
			r.logger.Warn("failed to delete persisted session state",
				zap.String("session_id", sessionID), zap.Error(err))
		}
	}
	r.logger.Info("session deleted", zap.String("session_id", sessionID))
	return nil
}

// PersistedSnapshot loads the last persisted snapshot for a session.
// Works for sessions that are no longer live, which is the point: it is
// the recovery read path after a restart.
func (r *SessionRegistry) PersistedSnapshot(ctx context.Context, sessionID string) (*aggregates.Snapshot, error) {
	if r.deps.Store == nil {
		return nil, pkgerrors.NewNotFoundError("snapshot for session " + sessionID)
	}
	return r.deps.Store.LoadSnapshot(ctx, sessionID)
}

// PersistedSessions returns the session IDs with a stored snapshot, sorted
func (r *SessionRegistry) PersistedSessions(ctx context.Context) ([]string, error) {
	if r.deps.Store == nil {
		return nil, nil
	}
	ids, err := r.deps.Store.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// CloseAll stops every session's background work
func (r *SessionRegistry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, coordinator := range r.sessions {
		coordinator.Close()
	}
}
