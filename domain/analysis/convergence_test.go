package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agora-backend/domain/config"
	pkgerrors "agora-backend/pkg/errors"
)

func TestConvergenceController_MaxRounds(t *testing.T) {
	cfg := config.DefaultSessionConfig()
	cfg.MaxDebateRounds = 3
	c := NewConvergenceController(cfg, nil)

	assert.Nil(t, c.EvaluateRound(false, false))
	assert.Nil(t, c.EvaluateRound(false, false))

	transition := c.EvaluateRound(false, false)
	require.NotNil(t, transition)
	assert.Equal(t, StateDebating, transition.From)
	assert.Equal(t, StateForcedSynthesis, transition.To)
	assert.Equal(t, TriggerMaxRounds, transition.Reason)
	assert.Equal(t, 3, transition.Round)
	assert.Equal(t, StateForcedSynthesis, c.State())
}

func TestConvergenceController_TriggerPriority(t *testing.T) {
	tests := []struct {
		name            string
		maxRounds       int
		oscillating     bool
		entropyStagnant bool
		wantReason      string
	}{
		{
			name:            "max rounds beats everything",
			maxRounds:       1,
			oscillating:     true,
			entropyStagnant: true,
			wantReason:      TriggerMaxRounds,
		},
		{
			name:            "oscillation beats entropy stagnation",
			maxRounds:       100,
			oscillating:     true,
			entropyStagnant: true,
			wantReason:      TriggerOscillation,
		},
		{
			name:            "entropy stagnation alone",
			maxRounds:       100,
			oscillating:     false,
			entropyStagnant: true,
			wantReason:      TriggerEntropyStagnation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultSessionConfig()
			cfg.MaxDebateRounds = tt.maxRounds
			c := NewConvergenceController(cfg, nil)

			transition := c.EvaluateRound(tt.oscillating, tt.entropyStagnant)
			require.NotNil(t, transition)
			assert.Equal(t, tt.wantReason, transition.Reason)
			assert.Equal(t, tt.wantReason, c.ForcedReason())
		})
	}
}

func TestConvergenceController_IdempotentOnceForced(t *testing.T) {
	cfg := config.DefaultSessionConfig()
	cfg.MaxDebateRounds = 1
	c := NewConvergenceController(cfg, nil)

	require.NotNil(t, c.EvaluateRound(false, false))
	round := c.Round()

	// Replayed and later rounds are no-ops
	assert.Nil(t, c.EvaluateRound(true, true))
	assert.Nil(t, c.EvaluateRound(false, false))
	assert.Equal(t, round, c.Round())
	assert.Equal(t, StateForcedSynthesis, c.State())
}

func TestConvergenceController_CompleteSynthesis(t *testing.T) {
	cfg := config.DefaultSessionConfig()
	cfg.MaxDebateRounds = 1
	c := NewConvergenceController(cfg, nil)

	t.Run("cannot complete while debating", func(t *testing.T) {
		_, err := c.CompleteSynthesis()
		assert.True(t, pkgerrors.IsValidation(err))
	})

	require.NotNil(t, c.EvaluateRound(false, false))

	t.Run("completes from forced synthesis", func(t *testing.T) {
		transition, err := c.CompleteSynthesis()
		require.NoError(t, err)
		require.NotNil(t, transition)
		assert.Equal(t, StateForcedSynthesis, transition.From)
		assert.Equal(t, StateCompleted, transition.To)
		assert.Equal(t, TriggerSynthesisDone, transition.Reason)
		assert.Equal(t, StateCompleted, c.State())
	})

	t.Run("repeat completion is a no-op", func(t *testing.T) {
		transition, err := c.CompleteSynthesis()
		require.NoError(t, err)
		assert.Nil(t, transition)
	})

	t.Run("rounds after completion are ignored", func(t *testing.T) {
		assert.Nil(t, c.EvaluateRound(true, true))
	})
}
