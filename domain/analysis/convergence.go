package analysis

import (
	"sync"

	"go.uber.org/zap"

	"agora-backend/domain/config"
	pkgerrors "agora-backend/pkg/errors"
)

// ConvergenceState is the phase of a session's deliberation
type ConvergenceState string

const (
	StateDebating        ConvergenceState = "DEBATING"
	StateForcedSynthesis ConvergenceState = "FORCED_SYNTHESIS"
	StateCompleted       ConvergenceState = "COMPLETED"
)

// Trigger reasons, in evaluation priority order
const (
	TriggerMaxRounds         = "max_rounds"
	TriggerOscillation       = "oscillation"
	TriggerEntropyStagnation = "entropy_stagnation"
	TriggerSynthesisDone     = "synthesis_done"
)

// Transition describes one convergence state change
type Transition struct {
	From   ConvergenceState `json:"from"`
	To     ConvergenceState `json:"to"`
	Reason string           `json:"reason"`
	Round  int              `json:"round"`
}

// ConvergenceController decides when a debate must stop and synthesize.
// Several triggers can fire in the same round; the first satisfied one
// in priority order wins and the others are ignored, so a transition
// always carries exactly one reason.
type ConvergenceController struct {
	mu     sync.Mutex
	cfg    *config.SessionConfig
	logger *zap.Logger

	state      ConvergenceState
	round      int
	lastReason string
}

// NewConvergenceController creates a controller in the DEBATING state
func NewConvergenceController(cfg *config.SessionConfig, logger *zap.Logger) *ConvergenceController {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConvergenceController{
		cfg:    cfg,
		logger: logger,
		state:  StateDebating,
	}
}

// State returns the current convergence state
func (c *ConvergenceController) State() ConvergenceState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Round returns the number of rounds evaluated so far
func (c *ConvergenceController) Round() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.round
}

// ForcedReason returns the trigger that forced synthesis, empty while
// still debating
func (c *ConvergenceController) ForcedReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastReason
}

// EvaluateRound records one finished debate round and applies the
// transition rules. Returns the transition taken, or nil when the state
// is unchanged. Once in FORCED_SYNTHESIS, further rounds are no-ops.
func (c *ConvergenceController) EvaluateRound(oscillating, entropyStagnant bool) *Transition {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateDebating {
		return nil
	}
	c.round++

	reason := ""
	switch {
	case c.round >= c.cfg.MaxDebateRounds:
		reason = TriggerMaxRounds
	case oscillating:
		reason = TriggerOscillation
	case entropyStagnant:
		reason = TriggerEntropyStagnation
	default:
		return nil
	}

	transition := &Transition{
		From:   StateDebating,
		To:     StateForcedSynthesis,
		Reason: reason,
		Round:  c.round,
	}
	c.state = StateForcedSynthesis
	c.lastReason = reason
	c.logger.Info("forcing synthesis",
		zap.String("reason", reason),
		zap.Int("round", c.round))
	return transition
}

// CompleteSynthesis moves FORCED_SYNTHESIS to COMPLETED once the
// synthesis node has been produced
func (c *ConvergenceController) CompleteSynthesis() (*Transition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateCompleted {
		return nil, nil // Idempotent
	}
	if c.state != StateForcedSynthesis {
		return nil, pkgerrors.NewValidationError(
			"synthesis can only complete from FORCED_SYNTHESIS, current state is " + string(c.state))
	}

	transition := &Transition{
		From:   StateForcedSynthesis,
		To:     StateCompleted,
		Reason: TriggerSynthesisDone,
		Round:  c.round,
	}
	c.state = StateCompleted
	return transition, nil
}
