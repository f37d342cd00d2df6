package aggregates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agora-backend/domain/config"
	"agora-backend/domain/core/entities"
	"agora-backend/domain/core/valueobjects"
	pkgerrors "agora-backend/pkg/errors"
)

func newTestGraph(t *testing.T) (*Graph, *entities.Branch, *entities.Node) {
	t.Helper()
	g := NewGraph("session-1", config.DefaultSessionConfig())
	branch := g.CreateBranch()
	goal, err := g.AddNode(
		valueobjects.KindGoal,
		valueobjects.GoalPayload{Statement: "decide the rollout plan"},
		valueobjects.MustConfidence(0.9),
		branch.ID(),
		0,
	)
	require.NoError(t, err)
	return g, branch, goal
}

func addClaim(t *testing.T, g *Graph, branch *entities.Branch, text string, layer int) *entities.Node {
	t.Helper()
	node, err := g.AddNode(
		valueobjects.KindClaim,
		valueobjects.ClaimPayload{Statement: text},
		valueobjects.MustConfidence(0.7),
		branch.ID(),
		layer,
	)
	require.NoError(t, err)
	return node
}

func TestAddNode_GoalRules(t *testing.T) {
	g, branch, goal := newTestGraph(t)

	t.Run("second goal rejected", func(t *testing.T) {
		_, err := g.AddNode(
			valueobjects.KindGoal,
			valueobjects.GoalPayload{Statement: "another goal"},
			valueobjects.MustConfidence(0.5),
			branch.ID(),
			0,
		)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsValidation(err))
	})

	t.Run("non-goal at layer zero rejected", func(t *testing.T) {
		_, err := g.AddNode(
			valueobjects.KindClaim,
			valueobjects.ClaimPayload{Statement: "claim"},
			valueobjects.MustConfidence(0.5),
			branch.ID(),
			0,
		)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsValidation(err))
	})

	t.Run("goal is registered as root", func(t *testing.T) {
		goalID, ok := g.GoalID()
		require.True(t, ok)
		assert.True(t, goalID.Equals(goal.ID()))
	})

	t.Run("version starts at one", func(t *testing.T) {
		assert.Equal(t, 1, goal.Version())
	})
}

func TestAddNode_BranchRules(t *testing.T) {
	g, branch, _ := newTestGraph(t)

	t.Run("unknown branch rejected", func(t *testing.T) {
		_, err := g.AddNode(
			valueobjects.KindClaim,
			valueobjects.ClaimPayload{Statement: "claim"},
			valueobjects.MustConfidence(0.5),
			valueobjects.NewBranchID(),
			1,
		)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsNotFound(err))
	})

	t.Run("paused branch rejects nodes", func(t *testing.T) {
		require.NoError(t, g.TransitionBranch(branch.ID(), entities.BranchPaused))
		_, err := g.AddNode(
			valueobjects.KindClaim,
			valueobjects.ClaimPayload{Statement: "claim"},
			valueobjects.MustConfidence(0.5),
			branch.ID(),
			1,
		)
		require.Error(t, err)
		assert.True(t, pkgerrors.IsValidation(err))
		require.NoError(t, g.TransitionBranch(branch.ID(), entities.BranchActive))
	})
}

func TestUpdateNode_OptimisticVersioning(t *testing.T) {
	g, branch, _ := newTestGraph(t)
	claim := addClaim(t, g, branch, "first claim", 1)

	newConfidence := valueobjects.MustConfidence(0.4)
	updated, err := g.UpdateNode(claim.ID(), 1, entities.NodePatch{Confidence: &newConfidence})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version())
	assert.Equal(t, 0.4, updated.Confidence().Value())

	t.Run("stale version rejected whole", func(t *testing.T) {
		stale := valueobjects.MustConfidence(0.99)
		_, err := g.UpdateNode(claim.ID(), 1, entities.NodePatch{Confidence: &stale})
		require.Error(t, err)
		assert.True(t, pkgerrors.IsVersionConflict(err))

		// The losing write must not change anything
		node, err := g.Node(claim.ID())
		require.NoError(t, err)
		assert.Equal(t, 2, node.Version())
		assert.Equal(t, 0.4, node.Confidence().Value())
	})

	t.Run("each accepted mutation bumps exactly once", func(t *testing.T) {
		c := valueobjects.MustConfidence(0.5)
		updated, err := g.UpdateNode(claim.ID(), 2, entities.NodePatch{Confidence: &c})
		require.NoError(t, err)
		assert.Equal(t, 3, updated.Version())
	})
}

func TestAddEdge_DecomposeForest(t *testing.T) {
	g, branch, goal := newTestGraph(t)
	a := addClaim(t, g, branch, "a", 1)
	b := addClaim(t, g, branch, "b", 1)
	c := addClaim(t, g, branch, "c", 2)

	_, err := g.AddEdge(valueobjects.EdgeDecompose, goal.ID(), a.ID(), valueobjects.MustWeight(1))
	require.NoError(t, err)
	_, err = g.AddEdge(valueobjects.EdgeDecompose, a.ID(), c.ID(), valueobjects.MustWeight(1))
	require.NoError(t, err)

	t.Run("second decompose parent rejected", func(t *testing.T) {
		_, err := g.AddEdge(valueobjects.EdgeDecompose, b.ID(), c.ID(), valueobjects.MustWeight(1))
		require.Error(t, err)
		assert.True(t, pkgerrors.IsValidation(err))
	})

	t.Run("decompose must step one layer", func(t *testing.T) {
		_, err := g.AddEdge(valueobjects.EdgeDecompose, goal.ID(), c.ID(), valueobjects.MustWeight(1))
		require.Error(t, err)
		assert.True(t, pkgerrors.IsValidation(err))
	})

	t.Run("self loop rejected", func(t *testing.T) {
		_, err := g.AddEdge(valueobjects.EdgeSupport, a.ID(), a.ID(), valueobjects.MustWeight(1))
		require.Error(t, err)
		assert.True(t, pkgerrors.IsValidation(err))
	})

	t.Run("horizontal cycles allowed", func(t *testing.T) {
		_, err := g.AddEdge(valueobjects.EdgeSupport, a.ID(), b.ID(), valueobjects.MustWeight(0.5))
		require.NoError(t, err)
		_, err = g.AddEdge(valueobjects.EdgeSupport, b.ID(), a.ID(), valueobjects.MustWeight(0.5))
		require.NoError(t, err)
	})

	t.Run("endpoints must exist", func(t *testing.T) {
		_, err := g.AddEdge(valueobjects.EdgeSupport, a.ID(), valueobjects.NewNodeID(), valueobjects.MustWeight(0.5))
		require.Error(t, err)
		assert.True(t, pkgerrors.IsNotFound(err))
	})
}

func TestRemoveNode_Cascade(t *testing.T) {
	g, branch, goal := newTestGraph(t)
	a := addClaim(t, g, branch, "a", 1)
	child := addClaim(t, g, branch, "child of a", 2)
	grandchild := addClaim(t, g, branch, "grandchild", 3)
	sibling := addClaim(t, g, branch, "sibling", 1)

	mustEdge := func(kind valueobjects.EdgeKind, from, to valueobjects.NodeID) {
		t.Helper()
		_, err := g.AddEdge(kind, from, to, valueobjects.MustWeight(1))
		require.NoError(t, err)
	}
	mustEdge(valueobjects.EdgeDecompose, goal.ID(), a.ID())
	mustEdge(valueobjects.EdgeDecompose, a.ID(), child.ID())
	mustEdge(valueobjects.EdgeDecompose, child.ID(), grandchild.ID())
	mustEdge(valueobjects.EdgeSupport, sibling.ID(), child.ID())

	require.NoError(t, g.RemoveNode(a.ID()))

	for _, id := range []valueobjects.NodeID{a.ID(), child.ID(), grandchild.ID()} {
		_, err := g.Node(id)
		assert.True(t, pkgerrors.IsNotFound(err))
	}

	// The sibling and the goal survive, and every incident edge is gone
	_, err := g.Node(sibling.ID())
	require.NoError(t, err)
	_, err = g.Node(goal.ID())
	require.NoError(t, err)
	assert.Equal(t, 0, g.EdgeCount())
}

func TestRemoveNode_GoalRootProtected(t *testing.T) {
	g, _, goal := newTestGraph(t)

	err := g.RemoveNode(goal.ID())
	require.Error(t, err)
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestSnapshot_IsolatedFromLiveGraph(t *testing.T) {
	g, branch, goal := newTestGraph(t)
	claim := addClaim(t, g, branch, "claim", 1)
	_, err := g.AddEdge(valueobjects.EdgeDecompose, goal.ID(), claim.ID(), valueobjects.MustWeight(1))
	require.NoError(t, err)

	snap := g.Snapshot()
	require.Len(t, snap.Nodes, 2)
	require.Len(t, snap.Edges, 1)

	// Mutate after snapshotting; the snapshot must not move
	c := valueobjects.MustConfidence(0.1)
	_, err = g.UpdateNode(claim.ID(), 1, entities.NodePatch{Confidence: &c})
	require.NoError(t, err)
	require.NoError(t, g.RemoveNode(claim.ID()))

	snapClaim, ok := snap.NodeByID(claim.ID().String())
	require.True(t, ok)
	assert.Equal(t, 0.7, snapClaim.Confidence)
	assert.Equal(t, 1, snapClaim.Version)
	assert.Len(t, snap.Edges, 1)
}

func TestGraph_EmitsEvents(t *testing.T) {
	g, branch, _ := newTestGraph(t)
	g.DrainEvents()

	claim := addClaim(t, g, branch, "claim", 1)
	c := valueobjects.MustConfidence(0.2)
	_, err := g.UpdateNode(claim.ID(), 1, entities.NodePatch{Confidence: &c})
	require.NoError(t, err)

	drained := g.DrainEvents()
	require.Len(t, drained, 2)
	assert.Equal(t, "node.created", drained[0].GetEventType())
	assert.Equal(t, "node.updated", drained[1].GetEventType())
	assert.Empty(t, g.DrainEvents())
}
