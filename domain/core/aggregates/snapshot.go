package aggregates

import (
	"time"

	"agora-backend/domain/core/valueobjects"
)

// SnapshotNode is a plain, immutable copy of a node at snapshot time
type SnapshotNode struct {
	ID         string                `json:"id"`
	Kind       valueobjects.NodeKind `json:"kind"`
	Text       string                `json:"text"`
	Confidence float64               `json:"confidence"`
	BranchID   string                `json:"branch_id"`
	Layer      int                   `json:"layer"`
	Version    int                   `json:"version"`
}

// SnapshotEdge is a plain, immutable copy of an edge at snapshot time
type SnapshotEdge struct {
	ID       string                `json:"id"`
	Kind     valueobjects.EdgeKind `json:"kind"`
	SourceID string                `json:"source_id"`
	TargetID string                `json:"target_id"`
	Weight   float64               `json:"weight"`
	Version  int                   `json:"version"`
}

// Snapshot is a consistent point-in-time copy of the graph. Analyzers run
// against snapshots so long computations never block mutations; results
// may be stale relative to the live graph and carry the snapshot version.
type Snapshot struct {
	SessionID string         `json:"session_id"`
	TakenAt   time.Time      `json:"taken_at"`
	GoalID    string         `json:"goal_id,omitempty"`
	Nodes     []SnapshotNode `json:"nodes"`
	Edges     []SnapshotEdge `json:"edges"`
}

// NodeByID returns the snapshot node with the given ID
func (s *Snapshot) NodeByID(id string) (SnapshotNode, bool) {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return SnapshotNode{}, false
}

// NodeIndex returns a map from node ID to snapshot node
func (s *Snapshot) NodeIndex() map[string]SnapshotNode {
	idx := make(map[string]SnapshotNode, len(s.Nodes))
	for _, n := range s.Nodes {
		idx[n.ID] = n
	}
	return idx
}

// Snapshot takes a consistent deep copy of the graph under the read lock
func (g *Graph) Snapshot() *Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	snap := &Snapshot{
		SessionID: g.sessionID,
		TakenAt:   time.Now(),
		Nodes:     make([]SnapshotNode, 0, len(g.nodes)),
		Edges:     make([]SnapshotEdge, 0, len(g.edges)),
	}
	if !g.goalID.IsZero() {
		snap.GoalID = g.goalID.String()
	}

	for _, node := range g.nodes {
		snap.Nodes = append(snap.Nodes, SnapshotNode{
			ID:         node.ID().String(),
			Kind:       node.Kind(),
			Text:       node.Payload().Text(),
			Confidence: node.Confidence().Value(),
			BranchID:   node.BranchID().String(),
			Layer:      node.Layer(),
			Version:    node.Version(),
		})
	}
	for _, edge := range g.edges {
		snap.Edges = append(snap.Edges, SnapshotEdge{
			ID:       edge.ID().String(),
			Kind:     edge.Kind(),
			SourceID: edge.SourceID().String(),
			TargetID: edge.TargetID().String(),
			Weight:   edge.Weight().Value(),
			Version:  edge.Version(),
		})
	}
	return snap
}
