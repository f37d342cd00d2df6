package analysis

import (
	"sync"

	"agora-backend/domain/config"
	pkgerrors "agora-backend/pkg/errors"
)

// EntropyTracker watches the disagreement entropy of the debate. A
// healthy debate reduces entropy round over round; when the drop stays
// below epsilon for enough consecutive rounds, the debate has stalled.
type EntropyTracker struct {
	mu               sync.Mutex
	epsilon          float64
	stagnationRounds int

	history  []float64
	stagnant int // consecutive rounds without a meaningful decrease
}

// NewEntropyTracker creates a tracker with the session's thresholds
func NewEntropyTracker(cfg *config.SessionConfig) *EntropyTracker {
	return &EntropyTracker{
		epsilon:          cfg.EntropyEpsilon,
		stagnationRounds: cfg.EntropyStagnationRounds,
	}
}

// RecordRound appends a round's entropy and reports whether the debate
// has stagnated. A decrease of at least epsilon resets the counter; any
// smaller decrease, or an increase, extends it.
func (t *EntropyTracker) RecordRound(entropy float64) (bool, error) {
	if entropy < 0 {
		return false, pkgerrors.NewValidationError("entropy cannot be negative")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.history) > 0 {
		previous := t.history[len(t.history)-1]
		if previous-entropy >= t.epsilon {
			t.stagnant = 0
		} else {
			t.stagnant++
		}
	}
	t.history = append(t.history, entropy)

	return t.stagnant >= t.stagnationRounds, nil
}

// Latest returns the most recent entropy value
func (t *EntropyTracker) Latest() (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.history) == 0 {
		return 0, false
	}
	return t.history[len(t.history)-1], true
}

// History returns a copy of all recorded entropy values
func (t *EntropyTracker) History() []float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]float64, len(t.history))
	copy(out, t.history)
	return out
}

// Reset clears the history and counter
func (t *EntropyTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history = nil
	t.stagnant = 0
}
