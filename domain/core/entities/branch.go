package entities

import (
	"time"

	"agora-backend/domain/core/valueobjects"
	"agora-backend/domain/events"
	pkgerrors "agora-backend/pkg/errors"
)

// BranchStatus represents the lifecycle state of a branch
type BranchStatus string

const (
	BranchActive    BranchStatus = "active"
	BranchPaused    BranchStatus = "paused"
	BranchCompleted BranchStatus = "completed"
	BranchPruned    BranchStatus = "pruned"
)

// Branch is an independently evolving partition of the reasoning graph.
// Element membership is tracked by ID; the elements themselves live in the
// graph aggregate.
type Branch struct {
	id        valueobjects.BranchID
	status    BranchStatus
	nodeIDs   map[valueobjects.NodeID]struct{}
	edgeIDs   map[valueobjects.EdgeID]struct{}
	createdAt time.Time
	updatedAt time.Time

	events []events.DomainEvent
}

// NewBranch creates a new active branch
func NewBranch() *Branch {
	now := time.Now()
	return &Branch{
		id:        valueobjects.NewBranchID(),
		status:    BranchActive,
		nodeIDs:   make(map[valueobjects.NodeID]struct{}),
		edgeIDs:   make(map[valueobjects.EdgeID]struct{}),
		createdAt: now,
		updatedAt: now,
		events:    []events.DomainEvent{},
	}
}

// ID returns the branch's unique identifier
func (b *Branch) ID() valueobjects.BranchID {
	return b.id
}

// Status returns the branch's lifecycle state
func (b *Branch) Status() BranchStatus {
	return b.status
}

// IsWritable reports whether the branch accepts mutations
func (b *Branch) IsWritable() bool {
	return b.status == BranchActive
}

// NodeCount returns the number of member nodes
func (b *Branch) NodeCount() int {
	return len(b.nodeIDs)
}

// ContainsNode reports membership of a node
func (b *Branch) ContainsNode(id valueobjects.NodeID) bool {
	_, ok := b.nodeIDs[id]
	return ok
}

// ContainsEdge reports membership of an edge
func (b *Branch) ContainsEdge(id valueobjects.EdgeID) bool {
	_, ok := b.edgeIDs[id]
	return ok
}

// NodeIDs returns a copy of the member node IDs
func (b *Branch) NodeIDs() []valueobjects.NodeID {
	ids := make([]valueobjects.NodeID, 0, len(b.nodeIDs))
	for id := range b.nodeIDs {
		ids = append(ids, id)
	}
	return ids
}

// AttachNode records node membership
func (b *Branch) AttachNode(id valueobjects.NodeID) {
	b.nodeIDs[id] = struct{}{}
	b.updatedAt = time.Now()
}

// DetachNode removes node membership
func (b *Branch) DetachNode(id valueobjects.NodeID) {
	delete(b.nodeIDs, id)
	b.updatedAt = time.Now()
}

// AttachEdge records edge membership
func (b *Branch) AttachEdge(id valueobjects.EdgeID) {
	b.edgeIDs[id] = struct{}{}
	b.updatedAt = time.Now()
}

// DetachEdge removes edge membership
func (b *Branch) DetachEdge(id valueobjects.EdgeID) {
	delete(b.edgeIDs, id)
	b.updatedAt = time.Now()
}

// Pause suspends the branch
func (b *Branch) Pause() error {
	return b.transition(BranchPaused, map[BranchStatus]bool{BranchActive: true})
}

// Resume reactivates a paused branch
func (b *Branch) Resume() error {
	return b.transition(BranchActive, map[BranchStatus]bool{BranchPaused: true})
}

// Complete marks the branch's deliberation as finished
func (b *Branch) Complete() error {
	return b.transition(BranchCompleted, map[BranchStatus]bool{BranchActive: true, BranchPaused: true})
}

// Prune abandons the branch; its lock is reset by the coordinator
func (b *Branch) Prune() error {
	return b.transition(BranchPruned, map[BranchStatus]bool{BranchActive: true, BranchPaused: true})
}

func (b *Branch) transition(to BranchStatus, allowedFrom map[BranchStatus]bool) error {
	if b.status == to {
		return nil // Idempotent
	}
	if !allowedFrom[b.status] {
		return pkgerrors.NewValidationError(
			"invalid branch transition from " + string(b.status) + " to " + string(to))
	}

	old := b.status
	b.status = to
	b.updatedAt = time.Now()

	b.addEvent(events.NewBranchStatusChanged(b.id, string(old), string(to), b.updatedAt))
	return nil
}

// GetUncommittedEvents returns all uncommitted domain events
func (b *Branch) GetUncommittedEvents() []events.DomainEvent {
	return b.events
}

// MarkEventsAsCommitted clears the uncommitted events
func (b *Branch) MarkEventsAsCommitted() {
	b.events = []events.DomainEvent{}
}

func (b *Branch) addEvent(event events.DomainEvent) {
	b.events = append(b.events, event)
}
