package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agora-backend/domain/analysis"
	"agora-backend/domain/config"
	"agora-backend/domain/core/aggregates"
	"agora-backend/domain/core/entities"
	"agora-backend/domain/core/valueobjects"
	"agora-backend/domain/events"
	pkgerrors "agora-backend/pkg/errors"
)

// --- Test doubles for the collaborator ports ---

type fakeEmbedder struct {
	vectors [][]float64
	calls   int
}

func (f *fakeEmbedder) EmbedRound(_ context.Context, _ []string) ([]float64, error) {
	v := f.vectors[f.calls%len(f.vectors)]
	f.calls++
	return v, nil
}

type fakeEstimator struct {
	values []float64
	calls  int
}

func (f *fakeEstimator) Estimate(_ context.Context, _ []string) (float64, error) {
	v := f.values[f.calls%len(f.values)]
	f.calls++
	return v, nil
}

type fakeSynthesizer struct {
	summary string
	reason  string
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, _ *aggregates.Snapshot, triggerReason string) (string, error) {
	f.reason = triggerReason
	return f.summary, nil
}

type capturePublisher struct {
	mu     sync.Mutex
	events []events.DomainEvent
}

func (p *capturePublisher) Publish(_ context.Context, _ string, event events.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) PublishBatch(_ context.Context, _ string, batch []events.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, batch...)
	return nil
}

func (p *capturePublisher) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]string, len(p.events))
	for i, e := range p.events {
		types[i] = e.GetEventType()
	}
	return types
}

// --- Helpers ---

func newTestCoordinator(t *testing.T, cfg *config.SessionConfig, deps CoordinatorDeps) (*SessionCoordinator, *entities.Branch, valueobjects.NodeID) {
	t.Helper()
	coord := NewSessionCoordinator("session-1", cfg, deps)
	branch, goal, err := coord.InitializeGoal(context.Background(), "should we ship", valueobjects.MustConfidence(0.9))
	require.NoError(t, err)
	return coord, branch, goal.ID()
}

func addClaimNode(t *testing.T, coord *SessionCoordinator, actorID string, branchID valueobjects.BranchID, text string) *entities.Node {
	t.Helper()
	node, err := coord.AddNode(
		context.Background(),
		actorID,
		valueobjects.KindClaim,
		valueobjects.ClaimPayload{Statement: text},
		valueobjects.MustConfidence(0.7),
		branchID,
		1,
	)
	require.NoError(t, err)
	return node
}

// --- Tests ---

func TestInitializeGoal(t *testing.T) {
	publisher := &capturePublisher{}
	coord := NewSessionCoordinator("session-1", nil, CoordinatorDeps{Publisher: publisher})

	branch, goal, err := coord.InitializeGoal(context.Background(), "should we ship", valueobjects.MustConfidence(0.9))
	require.NoError(t, err)
	require.NotNil(t, branch)
	require.NotNil(t, goal)

	assert.Equal(t, valueobjects.KindGoal, goal.Kind())
	assert.Equal(t, 0, goal.Layer())

	goalID, ok := coord.Graph().GoalID()
	require.True(t, ok)
	assert.Equal(t, goal.ID(), goalID)

	assert.Contains(t, publisher.eventTypes(), "node.created")
}

func TestMutation_RequiresLock(t *testing.T) {
	ctx := context.Background()
	coord, branch, _ := newTestCoordinator(t, nil, CoordinatorDeps{})

	_, err := coord.AddNode(ctx, "worker-1", valueobjects.KindClaim,
		valueobjects.ClaimPayload{Statement: "a claim"},
		valueobjects.MustConfidence(0.7), branch.ID(), 1)
	assert.True(t, pkgerrors.IsLockExpired(err))

	require.NoError(t, coord.AcquireLock(ctx, branch.ID(), "worker-1"))
	addClaimNode(t, coord, "worker-1", branch.ID(), "a claim")

	// Another worker cannot write while the lease is held
	_, err = coord.AddNode(ctx, "worker-2", valueobjects.KindClaim,
		valueobjects.ClaimPayload{Statement: "a rival claim"},
		valueobjects.MustConfidence(0.7), branch.ID(), 1)
	assert.True(t, pkgerrors.IsLockHeld(err))
}

func TestGlobalInterrupt_BlocksMutation(t *testing.T) {
	ctx := context.Background()
	coord, branch, _ := newTestCoordinator(t, nil, CoordinatorDeps{})
	require.NoError(t, coord.AcquireLock(ctx, branch.ID(), "worker-1"))

	coord.GlobalInterrupt(ctx)

	_, err := coord.AddNode(ctx, "worker-1", valueobjects.KindClaim,
		valueobjects.ClaimPayload{Statement: "a claim"},
		valueobjects.MustConfidence(0.7), branch.ID(), 1)
	assert.True(t, pkgerrors.IsLockHeld(err))

	coord.ResumeAll(ctx)
	addClaimNode(t, coord, "worker-1", branch.ID(), "a claim")
}

func TestUpdateNode_VersionConflictPublishesNotice(t *testing.T) {
	ctx := context.Background()
	publisher := &capturePublisher{}
	coord, branch, _ := newTestCoordinator(t, nil, CoordinatorDeps{Publisher: publisher})
	require.NoError(t, coord.AcquireLock(ctx, branch.ID(), "worker-1"))

	node := addClaimNode(t, coord, "worker-1", branch.ID(), "a claim")
	version := node.Version()

	newConf := valueobjects.MustConfidence(0.4)
	_, err := coord.UpdateNode(ctx, "worker-1", node.ID(), 99, entities.NodePatch{Confidence: &newConf})
	assert.True(t, pkgerrors.IsVersionConflict(err))
	assert.Contains(t, publisher.eventTypes(), "mutation.version_conflict")

	// The write at the real version lands
	updated, err := coord.UpdateNode(ctx, "worker-1", node.ID(), version, entities.NodePatch{Confidence: &newConf})
	require.NoError(t, err)
	assert.Equal(t, 0.4, updated.Confidence().Value())
	assert.Equal(t, version+1, updated.Version())
}

func TestRunAnalysis(t *testing.T) {
	ctx := context.Background()
	publisher := &capturePublisher{}
	coord, branch, goalID := newTestCoordinator(t, nil, CoordinatorDeps{Publisher: publisher})
	require.NoError(t, coord.AcquireLock(ctx, branch.ID(), "worker-1"))

	mid := addClaimNode(t, coord, "worker-1", branch.ID(), "intermediate claim")
	target := addClaimNode(t, coord, "worker-1", branch.ID(), "target claim")

	_, err := coord.AddEdge(ctx, "worker-1", valueobjects.EdgeSupport, goalID, mid.ID(), valueobjects.MustWeight(1.0))
	require.NoError(t, err)
	_, err = coord.AddEdge(ctx, "worker-1", valueobjects.EdgeSupport, mid.ID(), target.ID(), valueobjects.MustWeight(1.0))
	require.NoError(t, err)

	result, err := coord.RunAnalysis(ctx, target.ID().String())
	require.NoError(t, err)
	require.NotNil(t, result.Path)
	assert.Equal(t, 1, result.Path.TotalPaths)
	assert.Contains(t, result.Path.CriticalIDs, mid.ID().String())
	require.NotNil(t, result.Sensitivity)
	require.NotNil(t, result.Stability)

	cached, ok := coord.LatestAnalysis()
	require.True(t, ok)
	assert.Equal(t, result, cached)

	assert.Contains(t, publisher.eventTypes(), "analysis.completed")
}

func TestRunAnalysis_NeedsGoal(t *testing.T) {
	coord := NewSessionCoordinator("session-1", nil, CoordinatorDeps{})
	_, err := coord.RunAnalysis(context.Background(), "anything")
	assert.True(t, pkgerrors.IsValidation(err))
}

func debateRound(branchA, branchB valueobjects.BranchID, textA, textB string) RoundInput {
	return RoundInput{
		BranchA: branchA,
		BranchB: branchB,
		TextsA:  []string{textA},
		TextsB:  []string{textB},
	}
}

func TestRecordRound_Validation(t *testing.T) {
	ctx := context.Background()
	deps := CoordinatorDeps{
		Embedder:  &fakeEmbedder{vectors: [][]float64{{1, 0}}},
		Estimator: &fakeEstimator{values: []float64{1.0}},
	}
	coord, branch, _ := newTestCoordinator(t, nil, deps)
	other := coord.CreateBranch(ctx)

	t.Run("needs a contribution per side", func(t *testing.T) {
		input := debateRound(branch.ID(), other.ID(), "a position", "a rebuttal")
		input.TextsB = nil
		_, err := coord.RecordRound(ctx, input)
		assert.True(t, pkgerrors.IsValidation(err))
	})

	t.Run("needs two distinct branches", func(t *testing.T) {
		_, err := coord.RecordRound(ctx, debateRound(branch.ID(), branch.ID(), "a", "b"))
		assert.True(t, pkgerrors.IsValidation(err))
	})

	t.Run("both branches must exist", func(t *testing.T) {
		_, err := coord.RecordRound(ctx, debateRound(branch.ID(), valueobjects.NewBranchID(), "a", "b"))
		assert.True(t, pkgerrors.IsNotFound(err))
	})

	t.Run("needs an embedder and an estimator", func(t *testing.T) {
		bare, branchA, _ := newTestCoordinator(t, nil, CoordinatorDeps{})
		branchB := bare.CreateBranch(ctx)
		_, err := bare.RecordRound(ctx, debateRound(branchA.ID(), branchB.ID(), "a", "b"))
		require.Error(t, err)
	})
}

func TestRecordRound_ForcedSynthesisFlow(t *testing.T) {
	ctx := context.Background()
	cfg := config.DefaultSessionConfig()
	cfg.MaxDebateRounds = 2

	publisher := &capturePublisher{}
	synthesizer := &fakeSynthesizer{summary: "the panel settled on shipping"}
	deps := CoordinatorDeps{
		Embedder:    &fakeEmbedder{vectors: [][]float64{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}},
		Estimator:   &fakeEstimator{values: []float64{3.0, 2.5, 2.0}},
		Synthesizer: synthesizer,
		Publisher:   publisher,
	}
	coord, branch, _ := newTestCoordinator(t, cfg, deps)
	rival := coord.CreateBranch(ctx)

	first, err := coord.RecordRound(ctx, debateRound(branch.ID(), rival.ID(), "agent a speaks", "agent b speaks"))
	require.NoError(t, err)
	assert.Equal(t, 1, first.Round)
	assert.Nil(t, first.Transition)
	assert.Equal(t, 3.0, first.Entropy)

	second, err := coord.RecordRound(ctx, debateRound(branch.ID(), rival.ID(), "agent a again", "agent b again"))
	require.NoError(t, err)
	require.NotNil(t, second.Transition)
	assert.Equal(t, analysis.StateForcedSynthesis, second.Transition.To)
	assert.Equal(t, analysis.TriggerMaxRounds, second.Transition.Reason)
	assert.Contains(t, publisher.eventTypes(), "convergence.transitioned")

	// An empty summary asks the configured synthesizer for one
	node, err := coord.CompleteSynthesis(ctx, branch.ID(), "")
	require.NoError(t, err)
	require.NotNil(t, node)
	assert.Equal(t, valueobjects.KindSynthesis, node.Kind())
	assert.Equal(t, "the panel settled on shipping", node.Payload().Text())
	assert.Equal(t, analysis.TriggerMaxRounds, synthesizer.reason)

	status := coord.Convergence()
	assert.Equal(t, analysis.StateCompleted, status.State)
	assert.Equal(t, []float64{3.0, 2.5}, status.EntropyHistory)

	// A replayed completion is a no-op, not an error
	again, err := coord.CompleteSynthesis(ctx, branch.ID(), "anything")
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestRecordRound_SideRevertTriggersOscillation(t *testing.T) {
	ctx := context.Background()
	cfg := config.DefaultSessionConfig()
	cfg.MaxDebateRounds = 100

	// Two embeddings per round, side A first. Side A returns to its
	// opening position in round three while side B keeps moving; the
	// revert must be judged against A's own history, not the round as
	// a whole.
	deps := CoordinatorDeps{
		Embedder: &fakeEmbedder{vectors: [][]float64{
			{1, 0, 0}, {0, 0, 1}, // round 1: A, B
			{0, 1, 0}, {1, 1, 0}, // round 2
			{1, 0, 0}, {0, 1, 1}, // round 3: A reverts
		}},
		Estimator: &fakeEstimator{values: []float64{3.0, 2.5, 2.0}},
	}
	coord, branch, _ := newTestCoordinator(t, cfg, deps)
	rival := coord.CreateBranch(ctx)

	for round := 1; round <= 2; round++ {
		result, err := coord.RecordRound(ctx, debateRound(branch.ID(), rival.ID(), "a position", "a rebuttal"))
		require.NoError(t, err)
		assert.False(t, result.Oscillating)
		assert.Nil(t, result.Transition)
	}

	third, err := coord.RecordRound(ctx, debateRound(branch.ID(), rival.ID(), "the opening position again", "a new rebuttal"))
	require.NoError(t, err)
	assert.True(t, third.Oscillating)
	assert.Equal(t, []string{branch.ID().String()}, third.OscillatingBranches)
	require.NotNil(t, third.Transition)
	assert.Equal(t, analysis.TriggerOscillation, third.Transition.Reason)
}

func TestCompleteSynthesis_RequiresForcedState(t *testing.T) {
	coord, branch, _ := newTestCoordinator(t, nil, CoordinatorDeps{})
	_, err := coord.CompleteSynthesis(context.Background(), branch.ID(), "a summary")
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestTransitionBranch_PruneUnregistersLock(t *testing.T) {
	ctx := context.Background()
	coord, _, _ := newTestCoordinator(t, nil, CoordinatorDeps{})

	branch := coord.CreateBranch(ctx)
	require.NoError(t, coord.AcquireLock(ctx, branch.ID(), "worker-1"))

	require.NoError(t, coord.TransitionBranch(ctx, branch.ID(), entities.BranchPruned))

	_, _, err := coord.LockState(branch.ID())
	assert.True(t, pkgerrors.IsNotFound(err))
}
