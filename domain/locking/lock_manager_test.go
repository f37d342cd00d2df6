package locking

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agora-backend/domain/core/valueobjects"
	pkgerrors "agora-backend/pkg/errors"
)

const ttl = 30 * time.Second

// fakeClock lets tests move time without sleeping
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestManager() (*Manager, *fakeClock, valueobjects.BranchID) {
	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	m := NewManager(ttl, nil, nil)
	m.SetClock(clock.Now)
	branchID := valueobjects.NewBranchID()
	m.RegisterBranch(branchID)
	return m, clock, branchID
}

func TestAcquireLock(t *testing.T) {
	m, _, branchID := newTestManager()

	require.NoError(t, m.AcquireLock(branchID, "worker-a"))

	state, holder, err := m.State(branchID)
	require.NoError(t, err)
	assert.Equal(t, StateObservation, state)
	assert.Equal(t, "worker-a", holder)

	t.Run("contender rejected while held", func(t *testing.T) {
		err := m.AcquireLock(branchID, "worker-b")
		require.Error(t, err)
		assert.True(t, pkgerrors.IsLockHeld(err))
	})

	t.Run("reacquire by holder renews", func(t *testing.T) {
		require.NoError(t, m.AcquireLock(branchID, "worker-a"))
	})

	t.Run("empty holder rejected", func(t *testing.T) {
		err := m.AcquireLock(branchID, "")
		assert.True(t, pkgerrors.IsValidation(err))
	})

	t.Run("unknown branch rejected", func(t *testing.T) {
		err := m.AcquireLock(valueobjects.NewBranchID(), "worker-a")
		assert.True(t, pkgerrors.IsNotFound(err))
	})
}

func TestAcquireLock_SingleWinnerUnderContention(t *testing.T) {
	m := NewManager(ttl, nil, nil)
	branchID := valueobjects.NewBranchID()
	m.RegisterBranch(branchID)

	const contenders = 64
	var wg sync.WaitGroup
	var successes int64

	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := m.AcquireLock(branchID, fmt.Sprintf("worker-%d", i))
			if err == nil {
				atomic.AddInt64(&successes, 1)
				return
			}
			assert.True(t, pkgerrors.IsLockHeld(err))
		}(i)
	}
	wg.Wait()

	// Every contender uses a distinct holder ID, so exactly one wins
	assert.Equal(t, int64(1), successes)

	_, holder, err := m.State(branchID)
	require.NoError(t, err)
	assert.True(t, m.CanEdit(branchID, holder))
}

func TestLeaseExpiryBoundary(t *testing.T) {
	epsilon := time.Millisecond

	t.Run("just before expiry the holder keeps the lease", func(t *testing.T) {
		m, clock, branchID := newTestManager()
		require.NoError(t, m.AcquireLock(branchID, "worker-a"))

		clock.Advance(ttl - epsilon)
		err := m.AcquireLock(branchID, "worker-b")
		assert.True(t, pkgerrors.IsLockHeld(err))
		assert.True(t, m.CanEdit(branchID, "worker-a"))
	})

	t.Run("exactly at expiry the lease still holds", func(t *testing.T) {
		m, clock, branchID := newTestManager()
		require.NoError(t, m.AcquireLock(branchID, "worker-a"))

		clock.Advance(ttl)
		err := m.AcquireLock(branchID, "worker-b")
		assert.True(t, pkgerrors.IsLockHeld(err))
	})

	t.Run("just past expiry a contender reclaims", func(t *testing.T) {
		m, clock, branchID := newTestManager()
		require.NoError(t, m.AcquireLock(branchID, "worker-a"))

		clock.Advance(ttl + epsilon)
		require.NoError(t, m.AcquireLock(branchID, "worker-b"))

		_, holder, err := m.State(branchID)
		require.NoError(t, err)
		assert.Equal(t, "worker-b", holder)
		assert.False(t, m.CanEdit(branchID, "worker-a"))
	})
}

func TestRenew(t *testing.T) {
	m, clock, branchID := newTestManager()
	require.NoError(t, m.AcquireLock(branchID, "worker-a"))

	clock.Advance(ttl / 2)
	require.NoError(t, m.Renew(branchID, "worker-a"))

	// The renewal pushed the expiry out a full TTL from now
	clock.Advance(ttl - time.Second)
	assert.True(t, m.CanEdit(branchID, "worker-a"))

	t.Run("renew by non-holder fails", func(t *testing.T) {
		err := m.Renew(branchID, "worker-b")
		assert.True(t, pkgerrors.IsLockExpired(err))
	})

	t.Run("renew after expiry fails", func(t *testing.T) {
		clock.Advance(2 * ttl)
		err := m.Renew(branchID, "worker-a")
		assert.True(t, pkgerrors.IsLockExpired(err))
	})
}

func TestRelease(t *testing.T) {
	m, _, branchID := newTestManager()
	require.NoError(t, m.AcquireLock(branchID, "worker-a"))

	t.Run("release by non-holder is a no-op", func(t *testing.T) {
		m.Release(branchID, "worker-b")
		_, holder, err := m.State(branchID)
		require.NoError(t, err)
		assert.Equal(t, "worker-a", holder)
	})

	t.Run("release returns the branch to editable", func(t *testing.T) {
		m.Release(branchID, "worker-a")
		state, _, err := m.State(branchID)
		require.NoError(t, err)
		assert.Equal(t, StateEditable, state)
	})

	t.Run("release is idempotent", func(t *testing.T) {
		m.Release(branchID, "worker-a")
		m.Release(branchID, "worker-a")
		state, _, err := m.State(branchID)
		require.NoError(t, err)
		assert.Equal(t, StateEditable, state)
	})
}

func TestSweepExpired(t *testing.T) {
	m, clock, branchID := newTestManager()
	other := valueobjects.NewBranchID()
	m.RegisterBranch(other)

	require.NoError(t, m.AcquireLock(branchID, "worker-a"))
	require.NoError(t, m.AcquireLock(other, "worker-b"))

	clock.Advance(ttl / 2)
	require.NoError(t, m.Renew(other, "worker-b"))

	clock.Advance(ttl/2 + time.Millisecond)
	reclaimed := m.SweepExpired()

	// Only worker-a's lease lapsed; worker-b renewed in time
	require.Len(t, reclaimed, 1)
	assert.True(t, reclaimed[0].Equals(branchID))

	state, _, err := m.State(branchID)
	require.NoError(t, err)
	assert.Equal(t, StateEditable, state)
	assert.True(t, m.CanEdit(other, "worker-b"))

	events := m.DrainEvents()
	var sawReclaim bool
	for _, e := range events {
		if e.GetEventType() == "branch.lock_changed" && e.GetAggregateID() == branchID.String() {
			sawReclaim = true
		}
	}
	assert.True(t, sawReclaim)
}

func TestGlobalInterrupt(t *testing.T) {
	m, clock, branchID := newTestManager()
	free := valueobjects.NewBranchID()
	m.RegisterBranch(free)
	require.NoError(t, m.AcquireLock(branchID, "worker-a"))

	m.GlobalInterrupt()
	assert.True(t, m.Interrupted())

	t.Run("all branches pause", func(t *testing.T) {
		for _, id := range []valueobjects.BranchID{branchID, free} {
			state, _, err := m.State(id)
			require.NoError(t, err)
			assert.Equal(t, StatePaused, state)
		}
	})

	t.Run("no edits or acquisitions while paused", func(t *testing.T) {
		assert.False(t, m.CanEdit(branchID, "worker-a"))
		err := m.AcquireLock(free, "worker-b")
		assert.True(t, pkgerrors.IsLockHeld(err))
	})

	t.Run("interrupt is idempotent", func(t *testing.T) {
		m.GlobalInterrupt()
		assert.True(t, m.Interrupted())
	})

	t.Run("resume restores holders with live leases", func(t *testing.T) {
		m.Resume()
		state, holder, err := m.State(branchID)
		require.NoError(t, err)
		assert.Equal(t, StateObservation, state)
		assert.Equal(t, "worker-a", holder)

		state, _, err = m.State(free)
		require.NoError(t, err)
		assert.Equal(t, StateEditable, state)
	})

	t.Run("resume drops holders whose lease lapsed while paused", func(t *testing.T) {
		m.GlobalInterrupt()
		clock.Advance(2 * ttl)
		m.Resume()

		state, holder, err := m.State(branchID)
		require.NoError(t, err)
		assert.Equal(t, StateEditable, state)
		assert.Empty(t, holder)
	})
}

func TestTryRequestLock(t *testing.T) {
	m, _, branchID := newTestManager()

	t.Run("succeeds immediately when free", func(t *testing.T) {
		err := m.TryRequestLock(context.Background(), branchID, "worker-a", 100*time.Millisecond)
		require.NoError(t, err)
		m.Release(branchID, "worker-a")
	})

	t.Run("gives up after the wait window", func(t *testing.T) {
		require.NoError(t, m.AcquireLock(branchID, "worker-a"))
		err := m.TryRequestLock(context.Background(), branchID, "worker-b", 120*time.Millisecond)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsLockHeld(err))
	})
}

func TestCanEdit(t *testing.T) {
	m, _, branchID := newTestManager()

	assert.False(t, m.CanEdit(branchID, "worker-a"), "editable branch has no holder")
	require.NoError(t, m.AcquireLock(branchID, "worker-a"))
	assert.True(t, m.CanEdit(branchID, "worker-a"))
	assert.False(t, m.CanEdit(branchID, "worker-b"))
	assert.False(t, m.CanEdit(valueobjects.NewBranchID(), "worker-a"))
}
