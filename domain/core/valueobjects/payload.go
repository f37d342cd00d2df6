package valueobjects

import (
	"strings"

	pkgerrors "agora-backend/pkg/errors"
)

// NodeKind tags the role a node plays in the reasoning graph
type NodeKind string

const (
	KindGoal        NodeKind = "goal"
	KindClaim       NodeKind = "claim"
	KindFact        NodeKind = "fact"
	KindConstraint  NodeKind = "constraint"
	KindAtomicTopic NodeKind = "atomic_topic"
	KindPending     NodeKind = "pending"
	KindSynthesis   NodeKind = "synthesis"
)

// IsValid reports whether the kind is one of the known tags
func (k NodeKind) IsValid() bool {
	switch k {
	case KindGoal, KindClaim, KindFact, KindConstraint, KindAtomicTopic, KindPending, KindSynthesis:
		return true
	}
	return false
}

// Payload is the variant content of a node; exactly one concrete case exists
// per node kind, and consumers match exhaustively on Kind().
type Payload interface {
	Kind() NodeKind
	Text() string
}

// GoalPayload is the root objective of a session
type GoalPayload struct {
	Statement       string   `json:"statement"`
	SuccessCriteria []string `json:"success_criteria,omitempty"`
}

func (p GoalPayload) Kind() NodeKind { return KindGoal }
func (p GoalPayload) Text() string   { return p.Statement }

// ClaimPayload is a contestable assertion advanced by a worker or the user
type ClaimPayload struct {
	Statement string `json:"statement"`
	Stance    string `json:"stance,omitempty"`
}

func (p ClaimPayload) Kind() NodeKind { return KindClaim }
func (p ClaimPayload) Text() string   { return p.Statement }

// FactPayload is an externally sourced, non-contested statement
type FactPayload struct {
	Statement string `json:"statement"`
	SourceRef string `json:"source_ref,omitempty"`
}

func (p FactPayload) Kind() NodeKind { return KindFact }
func (p FactPayload) Text() string   { return p.Statement }

// ConstraintPayload bounds the admissible solution space
type ConstraintPayload struct {
	Statement string `json:"statement"`
	Hard      bool   `json:"hard"`
}

func (p ConstraintPayload) Kind() NodeKind { return KindConstraint }
func (p ConstraintPayload) Text() string   { return p.Statement }

// AtomicTopicPayload is an indivisible sub-question under deliberation
type AtomicTopicPayload struct {
	Topic string `json:"topic"`
}

func (p AtomicTopicPayload) Kind() NodeKind { return KindAtomicTopic }
func (p AtomicTopicPayload) Text() string   { return p.Topic }

// PendingPayload is a placeholder a worker has reserved but not yet filled
type PendingPayload struct {
	Prompt string `json:"prompt"`
}

func (p PendingPayload) Kind() NodeKind { return KindPending }
func (p PendingPayload) Text() string   { return p.Prompt }

// SynthesisPayload is the terminal synthesis produced when a branch converges
type SynthesisPayload struct {
	Summary       string `json:"summary"`
	TriggerReason string `json:"trigger_reason,omitempty"`
}

func (p SynthesisPayload) Kind() NodeKind { return KindSynthesis }
func (p SynthesisPayload) Text() string   { return p.Summary }

// NewPayload constructs the payload case matching kind from raw text.
// Kind-specific fields beyond the text are set by the caller afterwards.
func NewPayload(kind NodeKind, text string) (Payload, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, pkgerrors.NewValidationError("payload text cannot be empty")
	}

	switch kind {
	case KindGoal:
		return GoalPayload{Statement: text}, nil
	case KindClaim:
		return ClaimPayload{Statement: text}, nil
	case KindFact:
		return FactPayload{Statement: text}, nil
	case KindConstraint:
		return ConstraintPayload{Statement: text}, nil
	case KindAtomicTopic:
		return AtomicTopicPayload{Topic: text}, nil
	case KindPending:
		return PendingPayload{Prompt: text}, nil
	case KindSynthesis:
		return SynthesisPayload{Summary: text}, nil
	default:
		return nil, pkgerrors.NewValidationError("unknown node kind: " + string(kind))
	}
}

// EdgeKind tags the relation an edge asserts between two nodes
type EdgeKind string

const (
	EdgeSupport   EdgeKind = "support"
	EdgeAttack    EdgeKind = "attack"
	EdgeConflict  EdgeKind = "conflict"
	EdgeEntail    EdgeKind = "entail"
	EdgeDecompose EdgeKind = "decompose"
)

// IsValid reports whether the kind is one of the known tags
func (k EdgeKind) IsValid() bool {
	switch k {
	case EdgeSupport, EdgeAttack, EdgeConflict, EdgeEntail, EdgeDecompose:
		return true
	}
	return false
}

// IsVertical reports whether the edge participates in the Decompose forest.
// All other kinds are horizontal associations and may form cycles.
func (k EdgeKind) IsVertical() bool {
	return k == EdgeDecompose
}
