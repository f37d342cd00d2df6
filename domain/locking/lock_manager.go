// Package locking implements lease-based branch locks. One worker at a
// time may edit a branch; everyone else observes. Leases expire unless
// renewed, so a crashed holder can never wedge a branch.
package locking

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"agora-backend/domain/core/valueobjects"
	"agora-backend/domain/events"
	pkgerrors "agora-backend/pkg/errors"
	"agora-backend/pkg/observability"
)

// LockState is the lock mode of a branch
type LockState string

const (
	// StateEditable means no worker holds the branch; anyone may acquire
	StateEditable LockState = "EDITABLE"
	// StateObservation means one worker holds a lease; others observe
	StateObservation LockState = "OBSERVATION"
	// StatePaused means a global interrupt froze the branch
	StatePaused LockState = "PAUSED"
)

// Transition reasons carried on lock change events
const (
	ReasonAcquired        = "acquired"
	ReasonRenewed         = "renewed"
	ReasonReleased        = "released"
	ReasonHolderCrashed   = "holder_crashed"
	ReasonGlobalInterrupt = "global_interrupt"
	ReasonResumed         = "resumed"
	ReasonBranchPruned    = "branch_pruned"
)

// record is the lock state of one branch
type record struct {
	state       LockState
	holderID    string
	leaseExpiry time.Time
}

// Manager owns the lock state of every branch in one session. All
// transitions happen under a single mutex, which makes acquisition a
// compare-and-set: checking the current holder and installing a new one
// is one atomic step.
type Manager struct {
	mu      sync.Mutex
	records map[valueobjects.BranchID]*record

	leaseTTL    time.Duration
	retryPeriod time.Duration
	interrupted bool

	// now is swappable so lease expiry can be tested without sleeping
	now func() time.Time

	logger  *zap.Logger
	metrics *observability.Collector

	uncommitted []events.DomainEvent
}

// NewManager creates a lock manager with the given lease TTL
func NewManager(leaseTTL time.Duration, logger *zap.Logger, metrics *observability.Collector) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		records:     make(map[valueobjects.BranchID]*record),
		leaseTTL:    leaseTTL,
		retryPeriod: 50 * time.Millisecond,
		now:         time.Now,
		logger:      logger,
		metrics:     metrics,
	}
}

// SetClock replaces the manager's time source. Intended for tests.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// RegisterBranch starts tracking a branch in the EDITABLE state. Already
// registered branches are left untouched.
func (m *Manager) RegisterBranch(branchID valueobjects.BranchID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[branchID]; ok {
		return
	}
	state := StateEditable
	if m.interrupted {
		state = StatePaused
	}
	m.records[branchID] = &record{state: state}
}

// UnregisterBranch stops tracking a branch, resetting any held lease
func (m *Manager) UnregisterBranch(branchID valueobjects.BranchID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[branchID]
	if !ok {
		return
	}
	if rec.state == StateObservation {
		m.addEvent(events.NewBranchLockChanged(branchID, string(StateEditable), "", ReasonBranchPruned, m.now()))
	}
	delete(m.records, branchID)
}

// AcquireLock attempts to take the branch lease in one compare-and-set
// step. Re-acquisition by the current holder renews the lease. A lapsed
// lease is reclaimed and granted to the requester in the same step.
func (m *Manager) AcquireLock(branchID valueobjects.BranchID, holderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if holderID == "" {
		return pkgerrors.NewValidationError("holder ID cannot be empty")
	}
	rec, ok := m.records[branchID]
	if !ok {
		return pkgerrors.NewNotFoundError("branch " + branchID.String())
	}

	now := m.now()
	switch rec.state {
	case StatePaused:
		return pkgerrors.NewLockHeldError(branchID.String(), "global_interrupt")

	case StateObservation:
		if rec.holderID == holderID {
			rec.leaseExpiry = now.Add(m.leaseTTL)
			m.addEvent(events.NewBranchLockChanged(branchID, string(StateObservation), holderID, ReasonRenewed, now))
			return nil
		}
		if !now.After(rec.leaseExpiry) {
			if m.metrics != nil {
				m.metrics.LockContention.Inc()
			}
			return pkgerrors.NewLockHeldError(branchID.String(), rec.holderID)
		}
		// The previous holder's lease lapsed; reclaim before granting
		m.logger.Warn("reclaiming lapsed lease",
			zap.String("branch_id", branchID.String()),
			zap.String("previous_holder", rec.holderID))
		if m.metrics != nil {
			m.metrics.LockReclaims.Inc()
		}
		m.addEvent(events.NewBranchLockChanged(branchID, string(StateEditable), "", ReasonHolderCrashed, now))
		fallthrough

	case StateEditable:
		rec.state = StateObservation
		rec.holderID = holderID
		rec.leaseExpiry = now.Add(m.leaseTTL)
		if m.metrics != nil {
			m.metrics.LockAcquisitions.Inc()
		}
		m.logger.Debug("lease acquired",
			zap.String("branch_id", branchID.String()),
			zap.String("holder_id", holderID))
		m.addEvent(events.NewBranchLockChanged(branchID, string(StateObservation), holderID, ReasonAcquired, now))
		return nil
	}
	return pkgerrors.NewInternalError("unknown lock state: " + string(rec.state))
}

// TryRequestLock retries acquisition with a fixed backoff until the wait
// window or the context expires
func (m *Manager) TryRequestLock(ctx context.Context, branchID valueobjects.BranchID, holderID string, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	for {
		err := m.AcquireLock(branchID, holderID)
		if err == nil || !pkgerrors.IsLockHeld(err) {
			return err
		}
		if time.Now().After(deadline) {
			return err
		}
		select {
		case <-ctx.Done():
			return pkgerrors.NewTimeoutError("acquire lock on branch " + branchID.String())
		case <-time.After(m.retryPeriod):
		}
	}
}

// Renew extends the holder's lease. A renewal after expiry fails: the
// lease is gone and must be re-acquired.
func (m *Manager) Renew(branchID valueobjects.BranchID, holderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[branchID]
	if !ok {
		return pkgerrors.NewNotFoundError("branch " + branchID.String())
	}
	if rec.state != StateObservation || rec.holderID != holderID {
		return pkgerrors.NewLockExpiredError(branchID.String(), holderID)
	}
	now := m.now()
	if now.After(rec.leaseExpiry) {
		return pkgerrors.NewLockExpiredError(branchID.String(), holderID)
	}

	rec.leaseExpiry = now.Add(m.leaseTTL)
	return nil
}

// Release returns the branch to EDITABLE if holderID still holds it.
// Releasing a lock you do not hold is a no-op, which makes release safe
// to retry.
func (m *Manager) Release(branchID valueobjects.BranchID, holderID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[branchID]
	if !ok || rec.state != StateObservation || rec.holderID != holderID {
		return
	}

	rec.state = StateEditable
	rec.holderID = ""
	rec.leaseExpiry = time.Time{}
	m.logger.Debug("lease released",
		zap.String("branch_id", branchID.String()),
		zap.String("holder_id", holderID))
	m.addEvent(events.NewBranchLockChanged(branchID, string(StateEditable), "", ReasonReleased, m.now()))
}

// SweepExpired reclaims every lease whose expiry is strictly in the past
// and returns the affected branches. Runs periodically so a crashed
// holder's branch is editable again within one sweep interval.
func (m *Manager) SweepExpired() []valueobjects.BranchID {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var reclaimed []valueobjects.BranchID
	for branchID, rec := range m.records {
		if rec.state != StateObservation || !now.After(rec.leaseExpiry) {
			continue
		}
		m.logger.Warn("sweeping lapsed lease",
			zap.String("branch_id", branchID.String()),
			zap.String("holder_id", rec.holderID))
		rec.state = StateEditable
		rec.holderID = ""
		rec.leaseExpiry = time.Time{}
		if m.metrics != nil {
			m.metrics.LockReclaims.Inc()
		}
		m.addEvent(events.NewBranchLockChanged(branchID, string(StateEditable), "", ReasonHolderCrashed, now))
		reclaimed = append(reclaimed, branchID)
	}
	return reclaimed
}

// GlobalInterrupt freezes every branch. Holder identity and lease expiry
// are preserved so Resume can restore the pre-interrupt state.
func (m *Manager) GlobalInterrupt() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.interrupted {
		return // Idempotent
	}
	m.interrupted = true
	now := m.now()
	for branchID, rec := range m.records {
		if rec.state == StatePaused {
			continue
		}
		rec.state = StatePaused
		m.addEvent(events.NewBranchLockChanged(branchID, string(StatePaused), rec.holderID, ReasonGlobalInterrupt, now))
	}
	m.logger.Info("global interrupt engaged", zap.Int("branches", len(m.records)))
}

// Resume lifts a global interrupt. Branches whose holder's lease is still
// valid return to OBSERVATION; the rest return to EDITABLE.
func (m *Manager) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.interrupted {
		return
	}
	m.interrupted = false
	now := m.now()
	for branchID, rec := range m.records {
		if rec.state != StatePaused {
			continue
		}
		if rec.holderID != "" && !now.After(rec.leaseExpiry) {
			rec.state = StateObservation
			m.addEvent(events.NewBranchLockChanged(branchID, string(StateObservation), rec.holderID, ReasonResumed, now))
		} else {
			rec.state = StateEditable
			rec.holderID = ""
			rec.leaseExpiry = time.Time{}
			m.addEvent(events.NewBranchLockChanged(branchID, string(StateEditable), "", ReasonResumed, now))
		}
	}
	m.logger.Info("global interrupt lifted")
}

// Interrupted reports whether a global interrupt is in effect
func (m *Manager) Interrupted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.interrupted
}

// State returns the branch's current lock state and holder
func (m *Manager) State(branchID valueobjects.BranchID) (LockState, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[branchID]
	if !ok {
		return "", "", pkgerrors.NewNotFoundError("branch " + branchID.String())
	}
	return rec.state, rec.holderID, nil
}

// CanEdit reports whether holderID may mutate the branch right now: it
// must hold the lease and the lease must not have lapsed. Pure query; no
// state changes.
func (m *Manager) CanEdit(branchID valueobjects.BranchID, holderID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[branchID]
	if !ok || rec.state != StateObservation || rec.holderID != holderID {
		return false
	}
	return !m.now().After(rec.leaseExpiry)
}

// DrainEvents atomically returns and clears pending lock change events
func (m *Manager) DrainEvents() []events.DomainEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := m.uncommitted
	m.uncommitted = nil
	return out
}

func (m *Manager) addEvent(event events.DomainEvent) {
	m.uncommitted = append(m.uncommitted, event)
}
