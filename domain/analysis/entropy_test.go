package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agora-backend/domain/config"
	pkgerrors "agora-backend/pkg/errors"
)

func recordAll(t *testing.T, tracker *EntropyTracker, values ...float64) bool {
	t.Helper()
	var stagnant bool
	for _, v := range values {
		var err error
		stagnant, err = tracker.RecordRound(v)
		require.NoError(t, err)
	}
	return stagnant
}

func TestEntropyTracker_Stagnation(t *testing.T) {
	// Defaults: epsilon 0.1, three consecutive flat rounds flag
	cfg := config.DefaultSessionConfig()

	t.Run("healthy decrease never flags", func(t *testing.T) {
		tracker := NewEntropyTracker(cfg)
		assert.False(t, recordAll(t, tracker, 3.0, 2.5, 2.0, 1.5, 1.0))
	})

	t.Run("flags after enough flat rounds", func(t *testing.T) {
		tracker := NewEntropyTracker(cfg)
		assert.False(t, recordAll(t, tracker, 2.0, 1.95))      // 1 flat round
		assert.False(t, recordAll(t, tracker, 1.94))           // 2
		assert.True(t, recordAll(t, tracker, 1.93))            // 3: stagnant
	})

	t.Run("an increase counts as stagnation", func(t *testing.T) {
		tracker := NewEntropyTracker(cfg)
		assert.True(t, recordAll(t, tracker, 2.0, 2.1, 2.2, 2.3))
	})

	t.Run("a real drop resets the counter", func(t *testing.T) {
		tracker := NewEntropyTracker(cfg)
		assert.False(t, recordAll(t, tracker, 2.0, 1.95, 1.94)) // 2 flat rounds
		assert.False(t, recordAll(t, tracker, 1.5))             // reset
		assert.False(t, recordAll(t, tracker, 1.49, 1.48))      // 2 flat rounds again
		assert.True(t, recordAll(t, tracker, 1.47))             // 3: stagnant
	})

	t.Run("a drop of exactly epsilon resets", func(t *testing.T) {
		tracker := NewEntropyTracker(cfg)
		assert.False(t, recordAll(t, tracker, 2.0, 1.99, 1.98))
		assert.False(t, recordAll(t, tracker, 1.88)) // drop == epsilon
		assert.False(t, recordAll(t, tracker, 1.87, 1.86))
	})

	t.Run("negative entropy rejected", func(t *testing.T) {
		tracker := NewEntropyTracker(cfg)
		_, err := tracker.RecordRound(-0.1)
		assert.True(t, pkgerrors.IsValidation(err))
	})
}

func TestEntropyTracker_History(t *testing.T) {
	tracker := NewEntropyTracker(config.DefaultSessionConfig())

	_, ok := tracker.Latest()
	assert.False(t, ok)

	recordAll(t, tracker, 2.0, 1.5)

	latest, ok := tracker.Latest()
	require.True(t, ok)
	assert.Equal(t, 1.5, latest)
	assert.Equal(t, []float64{2.0, 1.5}, tracker.History())

	tracker.Reset()
	assert.Empty(t, tracker.History())
}
