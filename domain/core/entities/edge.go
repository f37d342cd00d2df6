package entities

import (
	"time"

	"agora-backend/domain/core/valueobjects"
	"agora-backend/domain/events"
	pkgerrors "agora-backend/pkg/errors"
)

// Edge is a directed, weighted relation between two nodes. Decompose edges
// form the vertical forest; the other kinds are horizontal associations
// that may introduce cycles.
type Edge struct {
	id        valueobjects.EdgeID
	kind      valueobjects.EdgeKind
	sourceID  valueobjects.NodeID
	targetID  valueobjects.NodeID
	weight    valueobjects.Weight
	version   int
	createdAt time.Time
	updatedAt time.Time

	events []events.DomainEvent
}

// NewEdge creates a new edge with validation
func NewEdge(
	kind valueobjects.EdgeKind,
	sourceID, targetID valueobjects.NodeID,
	weight valueobjects.Weight,
) (*Edge, error) {
	if !kind.IsValid() {
		return nil, pkgerrors.NewValidationError("unknown edge kind: " + string(kind))
	}
	if sourceID.IsZero() || targetID.IsZero() {
		return nil, pkgerrors.NewValidationError("edge endpoints cannot be empty")
	}
	if sourceID.Equals(targetID) {
		return nil, pkgerrors.NewValidationError("self-loops are not allowed")
	}

	now := time.Now()
	edge := &Edge{
		id:        valueobjects.NewEdgeID(),
		kind:      kind,
		sourceID:  sourceID,
		targetID:  targetID,
		weight:    weight,
		version:   1,
		createdAt: now,
		updatedAt: now,
		events:    []events.DomainEvent{},
	}

	edge.addEvent(events.NewEdgeCreated(
		edge.id, sourceID, targetID, kind, weight.Value(), now,
	))

	return edge, nil
}

// ID returns the edge's unique identifier
func (e *Edge) ID() valueobjects.EdgeID {
	return e.id
}

// Kind returns the edge's type tag
func (e *Edge) Kind() valueobjects.EdgeKind {
	return e.kind
}

// SourceID returns the source node
func (e *Edge) SourceID() valueobjects.NodeID {
	return e.sourceID
}

// TargetID returns the target node
func (e *Edge) TargetID() valueobjects.NodeID {
	return e.targetID
}

// Weight returns the edge's weight
func (e *Edge) Weight() valueobjects.Weight {
	return e.weight
}

// Version returns the edge's version for optimistic concurrency control
func (e *Edge) Version() int {
	return e.version
}

// CreatedAt returns when the edge was created
func (e *Edge) CreatedAt() time.Time {
	return e.createdAt
}

// SetWeight applies a weight change as one accepted mutation
func (e *Edge) SetWeight(weight valueobjects.Weight) {
	e.weight = weight
	e.updatedAt = time.Now()
	e.version++
}

// GetUncommittedEvents returns all uncommitted domain events
func (e *Edge) GetUncommittedEvents() []events.DomainEvent {
	return e.events
}

// MarkEventsAsCommitted clears the uncommitted events
func (e *Edge) MarkEventsAsCommitted() {
	e.events = []events.DomainEvent{}
}

func (e *Edge) addEvent(event events.DomainEvent) {
	e.events = append(e.events, event)
}
