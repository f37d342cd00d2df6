package config

import "time"

// SessionConfig holds all configurable deliberation rules for one session.
// Every value is overridable per session; the defaults mirror the tuning the
// system ships with, not invariants.
type SessionConfig struct {
	// Convergence controls
	MaxDebateRounds         int
	EntropyStagnationRounds int
	EntropyEpsilon          float64
	OscillationThreshold    float64

	// Locking
	LockLeaseTTL      time.Duration
	HeartbeatInterval time.Duration
	LockAcquireWait   time.Duration

	// Analysis
	PathEnumerationCap    int
	SensitivityTrialCount int
	SensitivityNoiseSigma float64
	AcceptanceBound       float64
	SensitivitySeed       int64

	// Graph constraints
	MaxNodesPerSession int
	MaxEdgesPerSession int
	MaxLayerDepth      int

	// Event delivery
	EventBufferSize int
}

// DefaultSessionConfig returns the default session configuration
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		// Convergence controls
		MaxDebateRounds:         10,
		EntropyStagnationRounds: 3,
		EntropyEpsilon:          0.1,
		OscillationThreshold:    0.85,

		// Locking
		LockLeaseTTL:      30 * time.Second,
		HeartbeatInterval: 5 * time.Second,
		LockAcquireWait:   2 * time.Second,

		// Analysis
		PathEnumerationCap:    500,
		SensitivityTrialCount: 400,
		SensitivityNoiseSigma: 0.15,
		AcceptanceBound:       0.5,
		SensitivitySeed:       1,

		// Graph constraints
		MaxNodesPerSession: 10000,
		MaxEdgesPerSession: 50000,
		MaxLayerDepth:      20,

		// Event delivery
		EventBufferSize: 256,
	}
}

// Overrides carries optional per-session overrides; nil fields keep defaults.
type Overrides struct {
	MaxDebateRounds         *int           `json:"max_debate_rounds" yaml:"max_debate_rounds"`
	EntropyStagnationRounds *int           `json:"entropy_stagnation_rounds" yaml:"entropy_stagnation_rounds"`
	EntropyEpsilon          *float64       `json:"entropy_epsilon" yaml:"entropy_epsilon"`
	OscillationThreshold    *float64       `json:"oscillation_threshold" yaml:"oscillation_threshold"`
	LockLeaseTTL            *time.Duration `json:"lock_lease_ttl" yaml:"lock_lease_ttl"`
	HeartbeatInterval       *time.Duration `json:"heartbeat_interval" yaml:"heartbeat_interval"`
	PathEnumerationCap      *int           `json:"path_enumeration_cap" yaml:"path_enumeration_cap"`
	SensitivityTrialCount   *int           `json:"sensitivity_trial_count" yaml:"sensitivity_trial_count"`
	SensitivitySeed         *int64         `json:"sensitivity_seed" yaml:"sensitivity_seed"`
}

// Apply merges overrides onto a copy of the config and returns it
func (c *SessionConfig) Apply(o *Overrides) *SessionConfig {
	merged := *c
	if o == nil {
		return &merged
	}
	if o.MaxDebateRounds != nil {
		merged.MaxDebateRounds = *o.MaxDebateRounds
	}
	if o.EntropyStagnationRounds != nil {
		merged.EntropyStagnationRounds = *o.EntropyStagnationRounds
	}
	if o.EntropyEpsilon != nil {
		merged.EntropyEpsilon = *o.EntropyEpsilon
	}
	if o.OscillationThreshold != nil {
		merged.OscillationThreshold = *o.OscillationThreshold
	}
	if o.LockLeaseTTL != nil {
		merged.LockLeaseTTL = *o.LockLeaseTTL
	}
	if o.HeartbeatInterval != nil {
		merged.HeartbeatInterval = *o.HeartbeatInterval
	}
	if o.PathEnumerationCap != nil {
		merged.PathEnumerationCap = *o.PathEnumerationCap
	}
	if o.SensitivityTrialCount != nil {
		merged.SensitivityTrialCount = *o.SensitivityTrialCount
	}
	if o.SensitivitySeed != nil {
		merged.SensitivitySeed = *o.SensitivitySeed
	}
	return &merged
}
