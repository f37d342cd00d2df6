// Package aggregates contains the Graph aggregate root, the single
// consistency boundary for all structural mutations of a session's
// reasoning graph.
package aggregates

import (
	"sync"
	"time"

	"agora-backend/domain/config"
	"agora-backend/domain/core/entities"
	"agora-backend/domain/core/valueobjects"
	"agora-backend/domain/events"
	pkgerrors "agora-backend/pkg/errors"
)

// Graph is the aggregate root for one session's reasoning graph. All
// mutations pass through it and are applied atomically under its lock;
// a rejected mutation leaves no partial state behind.
type Graph struct {
	mu sync.RWMutex

	sessionID string
	cfg       *config.SessionConfig

	nodes    map[valueobjects.NodeID]*entities.Node
	edges    map[valueobjects.EdgeID]*entities.Edge
	branches map[valueobjects.BranchID]*entities.Branch

	goalID valueobjects.NodeID

	// Adjacency indexes, maintained on every edge mutation
	outgoing map[valueobjects.NodeID][]valueobjects.EdgeID
	incoming map[valueobjects.NodeID][]valueobjects.EdgeID

	// Decompose parent per node; the Decompose subgraph is a forest
	decomposeParent map[valueobjects.NodeID]valueobjects.NodeID

	uncommitted []events.DomainEvent
}

// NewGraph creates an empty graph for a session
func NewGraph(sessionID string, cfg *config.SessionConfig) *Graph {
	if cfg == nil {
		cfg = config.DefaultSessionConfig()
	}
	return &Graph{
		sessionID:       sessionID,
		cfg:             cfg,
		nodes:           make(map[valueobjects.NodeID]*entities.Node),
		edges:           make(map[valueobjects.EdgeID]*entities.Edge),
		branches:        make(map[valueobjects.BranchID]*entities.Branch),
		outgoing:        make(map[valueobjects.NodeID][]valueobjects.EdgeID),
		incoming:        make(map[valueobjects.NodeID][]valueobjects.EdgeID),
		decomposeParent: make(map[valueobjects.NodeID]valueobjects.NodeID),
	}
}

// SessionID returns the owning session's identifier
func (g *Graph) SessionID() string {
	return g.sessionID
}

// Config returns the session configuration the graph enforces
func (g *Graph) Config() *config.SessionConfig {
	return g.cfg
}

// CreateBranch creates and registers a new active branch
func (g *Graph) CreateBranch() *entities.Branch {
	g.mu.Lock()
	defer g.mu.Unlock()

	branch := entities.NewBranch()
	g.branches[branch.ID()] = branch
	g.collectFrom(branch)
	return branch
}

// Branch returns a branch by ID
func (g *Graph) Branch(id valueobjects.BranchID) (*entities.Branch, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	branch, ok := g.branches[id]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("branch " + id.String())
	}
	return branch, nil
}

// Branches returns all branches
func (g *Graph) Branches() []*entities.Branch {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*entities.Branch, 0, len(g.branches))
	for _, b := range g.branches {
		out = append(out, b)
	}
	return out
}

// TransitionBranch applies a branch lifecycle transition under the
// aggregate lock
func (g *Graph) TransitionBranch(id valueobjects.BranchID, to entities.BranchStatus) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	branch, ok := g.branches[id]
	if !ok {
		return pkgerrors.NewNotFoundError("branch " + id.String())
	}

	var err error
	switch to {
	case entities.BranchPaused:
		err = branch.Pause()
	case entities.BranchActive:
		err = branch.Resume()
	case entities.BranchCompleted:
		err = branch.Complete()
	case entities.BranchPruned:
		err = branch.Prune()
	default:
		err = pkgerrors.NewValidationError("unknown branch status: " + string(to))
	}
	if err != nil {
		return err
	}

	g.collectFrom(branch)
	return nil
}

// AddNode creates a node and attaches it to its branch. The Goal root is
// unique per session and is the only node admitted at layer 0.
func (g *Graph) AddNode(
	kind valueobjects.NodeKind,
	payload valueobjects.Payload,
	confidence valueobjects.Confidence,
	branchID valueobjects.BranchID,
	layer int,
) (*entities.Node, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.nodes) >= g.cfg.MaxNodesPerSession {
		return nil, pkgerrors.NewValidationError("node limit reached for session")
	}
	if layer > g.cfg.MaxLayerDepth {
		return nil, pkgerrors.NewValidationError("layer exceeds maximum depth")
	}
	branch, ok := g.branches[branchID]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("branch " + branchID.String())
	}
	if !branch.IsWritable() {
		return nil, pkgerrors.NewValidationError("branch " + branchID.String() + " is not active")
	}
	if kind == valueobjects.KindGoal && !g.goalID.IsZero() {
		return nil, pkgerrors.NewValidationError("session already has a goal root")
	}

	node, err := entities.NewNode(kind, payload, confidence, branchID, layer)
	if err != nil {
		return nil, err
	}

	g.nodes[node.ID()] = node
	branch.AttachNode(node.ID())
	if kind == valueobjects.KindGoal {
		g.goalID = node.ID()
	}

	g.collectFrom(node)
	return node, nil
}

// Node returns a node by ID
func (g *Graph) Node(id valueobjects.NodeID) (*entities.Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	node, ok := g.nodes[id]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("node " + id.String())
	}
	return node, nil
}

// GoalID returns the session's goal root, if one exists
func (g *Graph) GoalID() (valueobjects.NodeID, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.goalID, !g.goalID.IsZero()
}

// NodeCount returns the number of nodes
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EdgeCount returns the number of edges
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.edges)
}

// UpdateNode applies a patch to a node if expectedVersion matches the
// node's current version. Stale writes are rejected whole; the caller
// refetches and retries.
func (g *Graph) UpdateNode(id valueobjects.NodeID, expectedVersion int, patch entities.NodePatch) (*entities.Node, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, ok := g.nodes[id]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("node " + id.String())
	}
	if node.Version() != expectedVersion {
		return nil, pkgerrors.NewVersionConflictError(id.String(), expectedVersion, node.Version())
	}
	if err := node.Apply(patch); err != nil {
		return nil, err
	}

	g.collectFrom(node)
	return node, nil
}

// AddEdge creates an edge between two existing nodes. Decompose edges must
// keep the vertical subgraph a forest: at most one Decompose parent per
// node and no cycles.
func (g *Graph) AddEdge(
	kind valueobjects.EdgeKind,
	sourceID, targetID valueobjects.NodeID,
	weight valueobjects.Weight,
) (*entities.Edge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.edges) >= g.cfg.MaxEdgesPerSession {
		return nil, pkgerrors.NewValidationError("edge limit reached for session")
	}
	source, ok := g.nodes[sourceID]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("node " + sourceID.String())
	}
	target, ok := g.nodes[targetID]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("node " + targetID.String())
	}

	if kind.IsVertical() {
		if _, hasParent := g.decomposeParent[targetID]; hasParent {
			return nil, pkgerrors.NewValidationError(
				"node " + targetID.String() + " already has a decompose parent")
		}
		if target.Layer() != source.Layer()+1 {
			return nil, pkgerrors.NewValidationError(
				"decompose edges must step exactly one layer down")
		}
		// Walking up from the source must not reach the target
		for cur := sourceID; ; {
			parent, has := g.decomposeParent[cur]
			if !has {
				break
			}
			if parent.Equals(targetID) {
				return nil, pkgerrors.NewValidationError("decompose edge would create a cycle")
			}
			cur = parent
		}
	}

	edge, err := entities.NewEdge(kind, sourceID, targetID, weight)
	if err != nil {
		return nil, err
	}

	g.edges[edge.ID()] = edge
	g.outgoing[sourceID] = append(g.outgoing[sourceID], edge.ID())
	g.incoming[targetID] = append(g.incoming[targetID], edge.ID())
	if kind.IsVertical() {
		g.decomposeParent[targetID] = sourceID
	}
	if branch, ok := g.branches[source.BranchID()]; ok {
		branch.AttachEdge(edge.ID())
	}

	g.collectFrom(edge)
	return edge, nil
}

// Edge returns an edge by ID
func (g *Graph) Edge(id valueobjects.EdgeID) (*entities.Edge, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	edge, ok := g.edges[id]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("edge " + id.String())
	}
	return edge, nil
}

// UpdateEdgeWeight changes an edge's weight if expectedVersion matches
func (g *Graph) UpdateEdgeWeight(id valueobjects.EdgeID, expectedVersion int, weight valueobjects.Weight) (*entities.Edge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	edge, ok := g.edges[id]
	if !ok {
		return nil, pkgerrors.NewNotFoundError("edge " + id.String())
	}
	if edge.Version() != expectedVersion {
		return nil, pkgerrors.NewVersionConflictError(id.String(), expectedVersion, edge.Version())
	}

	edge.SetWeight(weight)
	g.collectFrom(edge)
	return edge, nil
}

// RemoveEdge removes a single edge
func (g *Graph) RemoveEdge(id valueobjects.EdgeID) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	edge, ok := g.edges[id]
	if !ok {
		return pkgerrors.NewNotFoundError("edge " + id.String())
	}

	g.dropEdge(edge)
	g.addEvent(events.NewEdgeRemoved(id, time.Now()))
	return nil
}

// RemoveNode removes a node, its Decompose descendants, and every edge
// incident to any removed node. The Goal root cannot be removed.
func (g *Graph) RemoveNode(id valueobjects.NodeID) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, ok := g.nodes[id]
	if !ok {
		return pkgerrors.NewNotFoundError("node " + id.String())
	}
	if id.Equals(g.goalID) {
		return pkgerrors.NewValidationError("the goal root cannot be removed")
	}

	doomed := g.decomposeSubtree(id)

	removedNodes := make([]string, 0, len(doomed))
	removedEdges := []string{}
	seenEdges := make(map[valueobjects.EdgeID]struct{})

	for _, nid := range doomed {
		for _, eid := range append(append([]valueobjects.EdgeID{}, g.outgoing[nid]...), g.incoming[nid]...) {
			if _, dup := seenEdges[eid]; dup {
				continue
			}
			seenEdges[eid] = struct{}{}
			if edge, ok := g.edges[eid]; ok {
				g.dropEdge(edge)
				removedEdges = append(removedEdges, eid.String())
			}
		}
	}

	for _, nid := range doomed {
		victim := g.nodes[nid]
		delete(g.nodes, nid)
		delete(g.decomposeParent, nid)
		delete(g.outgoing, nid)
		delete(g.incoming, nid)
		if branch, ok := g.branches[victim.BranchID()]; ok {
			branch.DetachNode(nid)
		}
		removedNodes = append(removedNodes, nid.String())
	}

	g.addEvent(events.NewNodeRemoved(id, node.BranchID(), removedNodes, removedEdges, time.Now()))
	return nil
}

// decomposeSubtree returns id plus all transitive Decompose descendants,
// parent-before-child. Caller holds the write lock.
func (g *Graph) decomposeSubtree(id valueobjects.NodeID) []valueobjects.NodeID {
	children := make(map[valueobjects.NodeID][]valueobjects.NodeID)
	for child, parent := range g.decomposeParent {
		children[parent] = append(children[parent], child)
	}

	order := []valueobjects.NodeID{id}
	for i := 0; i < len(order); i++ {
		order = append(order, children[order[i]]...)
	}
	return order
}

// dropEdge removes an edge from the store and every index. Caller holds
// the write lock.
func (g *Graph) dropEdge(edge *entities.Edge) {
	id := edge.ID()
	delete(g.edges, id)
	g.outgoing[edge.SourceID()] = removeEdgeID(g.outgoing[edge.SourceID()], id)
	g.incoming[edge.TargetID()] = removeEdgeID(g.incoming[edge.TargetID()], id)
	if edge.Kind().IsVertical() {
		if parent, ok := g.decomposeParent[edge.TargetID()]; ok && parent.Equals(edge.SourceID()) {
			delete(g.decomposeParent, edge.TargetID())
		}
	}
	for _, branch := range g.branches {
		if branch.ContainsEdge(id) {
			branch.DetachEdge(id)
		}
	}
}

func removeEdgeID(ids []valueobjects.EdgeID, id valueobjects.EdgeID) []valueobjects.EdgeID {
	for i, candidate := range ids {
		if candidate.Equals(id) {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// GetUncommittedEvents returns all events raised since the last commit
func (g *Graph) GetUncommittedEvents() []events.DomainEvent {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]events.DomainEvent, len(g.uncommitted))
	copy(out, g.uncommitted)
	return out
}

// MarkEventsAsCommitted clears the uncommitted events
func (g *Graph) MarkEventsAsCommitted() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.uncommitted = nil
}

// DrainEvents atomically returns and clears the uncommitted events
func (g *Graph) DrainEvents() []events.DomainEvent {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := g.uncommitted
	g.uncommitted = nil
	return out
}

type eventSource interface {
	GetUncommittedEvents() []events.DomainEvent
	MarkEventsAsCommitted()
}

// collectFrom moves an entity's uncommitted events into the aggregate's
// buffer. Caller holds the write lock.
func (g *Graph) collectFrom(src eventSource) {
	g.uncommitted = append(g.uncommitted, src.GetUncommittedEvents()...)
	src.MarkEventsAsCommitted()
}

func (g *Graph) addEvent(event events.DomainEvent) {
	g.uncommitted = append(g.uncommitted, event)
}
