package entities

import (
	"time"

	"agora-backend/domain/core/valueobjects"
	"agora-backend/domain/events"
	pkgerrors "agora-backend/pkg/errors"
)

// Node is a confidence-weighted element of the reasoning graph.
// This is a rich domain model with encapsulated business logic: the version
// counter increments by exactly one per accepted mutation and is never
// writable from outside the aggregate.
type Node struct {
	// Private fields ensure encapsulation
	id         valueobjects.NodeID
	kind       valueobjects.NodeKind
	payload    valueobjects.Payload
	confidence valueobjects.Confidence
	branchID   valueobjects.BranchID
	layer      int
	version    int
	createdAt  time.Time
	updatedAt  time.Time

	// Domain events that occurred during this entity's lifetime
	events []events.DomainEvent
}

// NodePatch carries the mutable fields of an update; nil fields are left
// unchanged
type NodePatch struct {
	Confidence *valueobjects.Confidence
	Payload    valueobjects.Payload
}

// NewNode creates a new node with full business rule validation
func NewNode(
	kind valueobjects.NodeKind,
	payload valueobjects.Payload,
	confidence valueobjects.Confidence,
	branchID valueobjects.BranchID,
	layer int,
) (*Node, error) {
	if !kind.IsValid() {
		return nil, pkgerrors.NewValidationError("unknown node kind: " + string(kind))
	}
	if payload == nil {
		return nil, pkgerrors.NewValidationError("payload cannot be nil")
	}
	if payload.Kind() != kind {
		return nil, pkgerrors.NewValidationError("payload kind does not match node kind")
	}
	if branchID.IsZero() {
		return nil, pkgerrors.NewValidationError("branchID cannot be empty")
	}
	if layer < 0 {
		return nil, pkgerrors.NewValidationError("layer must be >= 0")
	}
	// Layer 0 is reserved for the Goal root
	if (kind == valueobjects.KindGoal) != (layer == 0) {
		return nil, pkgerrors.NewValidationError("goal nodes live at layer 0 and only goal nodes live there")
	}

	now := time.Now()
	node := &Node{
		id:         valueobjects.NewNodeID(),
		kind:       kind,
		payload:    payload,
		confidence: confidence,
		branchID:   branchID,
		layer:      layer,
		version:    1,
		createdAt:  now,
		updatedAt:  now,
		events:     []events.DomainEvent{},
	}

	node.addEvent(events.NewNodeUpserted(
		node.id, branchID, kind, confidence.Value(), layer, node.version, true, now,
	))

	return node, nil
}

// ReconstructNode reconstructs a node from persisted data with its version
// and timestamps preserved
func ReconstructNode(
	id valueobjects.NodeID,
	kind valueobjects.NodeKind,
	payload valueobjects.Payload,
	confidence valueobjects.Confidence,
	branchID valueobjects.BranchID,
	layer int,
	version int,
	createdAt, updatedAt time.Time,
) (*Node, error) {
	if payload == nil || payload.Kind() != kind {
		return nil, pkgerrors.NewValidationError("payload kind does not match node kind")
	}
	if version < 1 {
		return nil, pkgerrors.NewValidationError("version must be >= 1")
	}

	return &Node{
		id:         id,
		kind:       kind,
		payload:    payload,
		confidence: confidence,
		branchID:   branchID,
		layer:      layer,
		version:    version,
		createdAt:  createdAt,
		updatedAt:  updatedAt,
		events:     []events.DomainEvent{},
	}, nil
}

// ID returns the node's unique identifier
func (n *Node) ID() valueobjects.NodeID {
	return n.id
}

// Kind returns the node's type tag
func (n *Node) Kind() valueobjects.NodeKind {
	return n.kind
}

// Payload returns the node's variant content
func (n *Node) Payload() valueobjects.Payload {
	return n.payload
}

// Confidence returns the node's confidence
func (n *Node) Confidence() valueobjects.Confidence {
	return n.confidence
}

// BranchID returns the owning branch
func (n *Node) BranchID() valueobjects.BranchID {
	return n.branchID
}

// Layer returns the node's depth from the root
func (n *Node) Layer() int {
	return n.layer
}

// Version returns the node's version for optimistic concurrency control
func (n *Node) Version() int {
	return n.version
}

// CreatedAt returns when the node was created
func (n *Node) CreatedAt() time.Time {
	return n.createdAt
}

// UpdatedAt returns when the node was last updated
func (n *Node) UpdatedAt() time.Time {
	return n.updatedAt
}

// Apply applies a patch as one accepted mutation, bumping the version by
// exactly one. Version precondition checks belong to the aggregate.
func (n *Node) Apply(patch NodePatch) error {
	if patch.Payload != nil && patch.Payload.Kind() != n.kind {
		return pkgerrors.NewValidationError("patch payload kind does not match node kind")
	}

	if patch.Confidence != nil {
		n.confidence = *patch.Confidence
	}
	if patch.Payload != nil {
		n.payload = patch.Payload
	}

	n.updatedAt = time.Now()
	n.version++

	n.addEvent(events.NewNodeUpserted(
		n.id, n.branchID, n.kind, n.confidence.Value(), n.layer, n.version, false, n.updatedAt,
	))

	return nil
}

// GetUncommittedEvents returns all uncommitted domain events
func (n *Node) GetUncommittedEvents() []events.DomainEvent {
	return n.events
}

// MarkEventsAsCommitted clears the uncommitted events
func (n *Node) MarkEventsAsCommitted() {
	n.events = []events.DomainEvent{}
}

// addEvent adds a domain event to the uncommitted list
func (n *Node) addEvent(event events.DomainEvent) {
	n.events = append(n.events, event)
}
