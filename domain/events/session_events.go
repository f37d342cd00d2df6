package events

import (
	"time"

	"agora-backend/domain/core/valueobjects"
)

// Node events

// NodeUpserted is raised when a node is created or updated, carrying the
// element's new optimistic version
type NodeUpserted struct {
	BaseEvent
	NodeID     valueobjects.NodeID   `json:"node_id"`
	BranchID   valueobjects.BranchID `json:"branch_id"`
	Kind       valueobjects.NodeKind `json:"kind"`
	Confidence float64               `json:"confidence"`
	Layer      int                   `json:"layer"`
	Version    int                   `json:"version"`
	Created    bool                  `json:"created"`
}

// NewNodeUpserted creates a NodeUpserted event
func NewNodeUpserted(nodeID valueobjects.NodeID, branchID valueobjects.BranchID, kind valueobjects.NodeKind, confidence float64, layer, version int, created bool, timestamp time.Time) NodeUpserted {
	eventType := "node.updated"
	if created {
		eventType = "node.created"
	}
	return NodeUpserted{
		BaseEvent: BaseEvent{
			AggregateID: nodeID.String(),
			EventType:   eventType,
			Timestamp:   timestamp,
		},
		NodeID:     nodeID,
		BranchID:   branchID,
		Kind:       kind,
		Confidence: confidence,
		Layer:      layer,
		Version:    version,
		Created:    created,
	}
}

// NodeRemoved is raised when a node and its Decompose descendants are
// removed; RemovedNodeIDs lists the full cascade
type NodeRemoved struct {
	BaseEvent
	NodeID         valueobjects.NodeID   `json:"node_id"`
	BranchID       valueobjects.BranchID `json:"branch_id"`
	RemovedNodeIDs []string              `json:"removed_node_ids"`
	RemovedEdgeIDs []string              `json:"removed_edge_ids"`
}

// NewNodeRemoved creates a NodeRemoved event
func NewNodeRemoved(nodeID valueobjects.NodeID, branchID valueobjects.BranchID, removedNodes, removedEdges []string, timestamp time.Time) NodeRemoved {
	return NodeRemoved{
		BaseEvent: BaseEvent{
			AggregateID: nodeID.String(),
			EventType:   "node.removed",
			Timestamp:   timestamp,
		},
		NodeID:         nodeID,
		BranchID:       branchID,
		RemovedNodeIDs: removedNodes,
		RemovedEdgeIDs: removedEdges,
	}
}

// Edge events

// EdgeCreated is raised when an edge is added
type EdgeCreated struct {
	BaseEvent
	EdgeID   valueobjects.EdgeID   `json:"edge_id"`
	SourceID valueobjects.NodeID   `json:"source_id"`
	TargetID valueobjects.NodeID   `json:"target_id"`
	Kind     valueobjects.EdgeKind `json:"kind"`
	Weight   float64               `json:"weight"`
}

// NewEdgeCreated creates an EdgeCreated event
func NewEdgeCreated(edgeID valueobjects.EdgeID, sourceID, targetID valueobjects.NodeID, kind valueobjects.EdgeKind, weight float64, timestamp time.Time) EdgeCreated {
	return EdgeCreated{
		BaseEvent: BaseEvent{
			AggregateID: edgeID.String(),
			EventType:   "edge.created",
			Timestamp:   timestamp,
		},
		EdgeID:   edgeID,
		SourceID: sourceID,
		TargetID: targetID,
		Kind:     kind,
		Weight:   weight,
	}
}

// EdgeRemoved is raised when an edge is removed
type EdgeRemoved struct {
	BaseEvent
	EdgeID valueobjects.EdgeID `json:"edge_id"`
}

// NewEdgeRemoved creates an EdgeRemoved event
func NewEdgeRemoved(edgeID valueobjects.EdgeID, timestamp time.Time) EdgeRemoved {
	return EdgeRemoved{
		BaseEvent: BaseEvent{
			AggregateID: edgeID.String(),
			EventType:   "edge.removed",
			Timestamp:   timestamp,
		},
		EdgeID: edgeID,
	}
}

// Branch and lock events

// BranchStatusChanged is raised when a branch moves between lifecycle states
type BranchStatusChanged struct {
	BaseEvent
	BranchID  valueobjects.BranchID `json:"branch_id"`
	OldStatus string                `json:"old_status"`
	NewStatus string                `json:"new_status"`
}

// NewBranchStatusChanged creates a BranchStatusChanged event
func NewBranchStatusChanged(branchID valueobjects.BranchID, oldStatus, newStatus string, timestamp time.Time) BranchStatusChanged {
	return BranchStatusChanged{
		BaseEvent: BaseEvent{
			AggregateID: branchID.String(),
			EventType:   "branch.status_changed",
			Timestamp:   timestamp,
		},
		BranchID:  branchID,
		OldStatus: oldStatus,
		NewStatus: newStatus,
	}
}

// BranchLockChanged is raised on every lock state transition, with the
// holder identity and the reason for the transition
type BranchLockChanged struct {
	BaseEvent
	BranchID valueobjects.BranchID `json:"branch_id"`
	State    string                `json:"state"`
	HolderID string                `json:"holder_id,omitempty"`
	Reason   string                `json:"reason"`
}

// NewBranchLockChanged creates a BranchLockChanged event
func NewBranchLockChanged(branchID valueobjects.BranchID, state, holderID, reason string, timestamp time.Time) BranchLockChanged {
	return BranchLockChanged{
		BaseEvent: BaseEvent{
			AggregateID: branchID.String(),
			EventType:   "branch.lock_changed",
			Timestamp:   timestamp,
		},
		BranchID: branchID,
		State:    state,
		HolderID: holderID,
		Reason:   reason,
	}
}

// Analysis and convergence events

// AnalysisCompleted is raised when a path/sensitivity run finishes; the
// report payload travels with the event
type AnalysisCompleted struct {
	BaseEvent
	BranchID    valueobjects.BranchID `json:"branch_id"`
	Kind        string                `json:"kind"`
	Approximate bool                  `json:"approximate"`
	Report      interface{}           `json:"report"`
}

// NewAnalysisCompleted creates an AnalysisCompleted event
func NewAnalysisCompleted(branchID valueobjects.BranchID, kind string, approximate bool, report interface{}, timestamp time.Time) AnalysisCompleted {
	return AnalysisCompleted{
		BaseEvent: BaseEvent{
			AggregateID: branchID.String(),
			EventType:   "analysis.completed",
			Timestamp:   timestamp,
		},
		BranchID:    branchID,
		Kind:        kind,
		Approximate: approximate,
		Report:      report,
	}
}

// ConvergenceTransitioned is raised on a convergence state transition with
// the first-satisfied trigger reason
type ConvergenceTransitioned struct {
	BaseEvent
	FromState string `json:"from_state"`
	ToState   string `json:"to_state"`
	Reason    string `json:"reason"`
	Round     int    `json:"round"`
}

// NewConvergenceTransitioned creates a ConvergenceTransitioned event
func NewConvergenceTransitioned(sessionID, fromState, toState, reason string, round int, timestamp time.Time) ConvergenceTransitioned {
	return ConvergenceTransitioned{
		BaseEvent: BaseEvent{
			AggregateID: sessionID,
			EventType:   "convergence.transitioned",
			Timestamp:   timestamp,
		},
		FromState: fromState,
		ToState:   toState,
		Reason:    reason,
		Round:     round,
	}
}

// VersionConflictNotice is raised when a mutation is rejected on a stale
// expected version
type VersionConflictNotice struct {
	BaseEvent
	ElementID       string `json:"element_id"`
	ExpectedVersion int    `json:"expected_version"`
	ActualVersion   int    `json:"actual_version"`
	ActorID         string `json:"actor_id"`
}

// NewVersionConflictNotice creates a VersionConflictNotice event
func NewVersionConflictNotice(elementID string, expected, actual int, actorID string, timestamp time.Time) VersionConflictNotice {
	return VersionConflictNotice{
		BaseEvent: BaseEvent{
			AggregateID: elementID,
			EventType:   "mutation.version_conflict",
			Timestamp:   timestamp,
		},
		ElementID:       elementID,
		ExpectedVersion: expected,
		ActualVersion:   actual,
		ActorID:         actorID,
	}
}
