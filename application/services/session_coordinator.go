// Package services contains the application services that sit between
// the transport layer and the domain. The SessionCoordinator is the
// write path: every mutation, lock operation, and analysis request for
// one session goes through it.
package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"agora-backend/application/ports"
	"agora-backend/domain/analysis"
	"agora-backend/domain/config"
	"agora-backend/domain/core/aggregates"
	"agora-backend/domain/core/entities"
	"agora-backend/domain/core/valueobjects"
	"agora-backend/domain/events"
	"agora-backend/domain/locking"
	pkgerrors "agora-backend/pkg/errors"
	"agora-backend/pkg/observability"
)

// AnalysisResult bundles one analysis run over a single snapshot
type AnalysisResult struct {
	TargetID    string                        `json:"target_id"`
	TakenAt     time.Time                     `json:"taken_at"`
	Path        *analysis.PathReport          `json:"path"`
	Sensitivity *analysis.SensitivityReport   `json:"sensitivity,omitempty"`
	Stability   *analysis.StabilityAssessment `json:"stability"`
}

// RoundInput carries one finished debate round between two contending
// branches: the pair plus each side's contributions
type RoundInput struct {
	BranchA valueobjects.BranchID `json:"branch_a"`
	BranchB valueobjects.BranchID `json:"branch_b"`
	TextsA  []string              `json:"texts_a"`
	TextsB  []string              `json:"texts_b"`
}

// RoundResult reports what one recorded debate round triggered
type RoundResult struct {
	Round               int                  `json:"round"`
	Entropy             float64              `json:"entropy"`
	Oscillating         bool                 `json:"oscillating"`
	OscillatingBranches []string             `json:"oscillating_branches,omitempty"`
	EntropyStagnant     bool                 `json:"entropy_stagnant"`
	Transition          *analysis.Transition `json:"transition,omitempty"`
}

// ConvergenceStatus is the queryable convergence state of a session
type ConvergenceStatus struct {
	State          analysis.ConvergenceState `json:"state"`
	Round          int                       `json:"round"`
	MaxRounds      int                       `json:"max_rounds"`
	EntropyHistory []float64                 `json:"entropy_history"`
}

// SessionCoordinator orchestrates one deliberation session: it validates
// locks and versions before handing mutations to the graph aggregate,
// publishes the resulting events, and drives analysis and convergence.
// External collaborators are only ever called while no lock validation
// is in flight.
type SessionCoordinator struct {
	sessionID string
	cfg       *config.SessionConfig

	graph       *aggregates.Graph
	locks       *locking.Manager
	oscillation *analysis.OscillationDetector
	entropy     *analysis.EntropyTracker
	convergence *analysis.ConvergenceController
	pathAnal    *analysis.PathAnalyzer
	sensAnal    *analysis.SensitivityAnalyzer

	embedder    ports.Embedder
	estimator   ports.EntropyEstimator
	synthesizer ports.Synthesizer
	store       ports.SnapshotStore
	publisher   ports.EventPublisher

	logger  *zap.Logger
	metrics *observability.Collector

	mu         sync.RWMutex
	latest     *AnalysisResult
	sweeperCtx context.CancelFunc
}

// CoordinatorDeps carries the injected collaborators. Any of them may be
// nil; the coordinator degrades the corresponding feature instead of
// failing construction.
type CoordinatorDeps struct {
	Embedder    ports.Embedder
	Estimator   ports.EntropyEstimator
	Synthesizer ports.Synthesizer
	Store       ports.SnapshotStore
	Publisher   ports.EventPublisher
	Logger      *zap.Logger
	Metrics     *observability.Collector
}

// NewSessionCoordinator creates a coordinator for one session
func NewSessionCoordinator(sessionID string, cfg *config.SessionConfig, deps CoordinatorDeps) *SessionCoordinator {
	if cfg == nil {
		cfg = config.DefaultSessionConfig()
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("session_id", sessionID))

	return &SessionCoordinator{
		sessionID:   sessionID,
		cfg:         cfg,
		graph:       aggregates.NewGraph(sessionID, cfg),
		locks:       locking.NewManager(cfg.LockLeaseTTL, logger, deps.Metrics),
		oscillation: analysis.NewOscillationDetector(cfg),
		entropy:     analysis.NewEntropyTracker(cfg),
		convergence: analysis.NewConvergenceController(cfg, logger),
		pathAnal:    analysis.NewPathAnalyzer(cfg, logger),
		sensAnal:    analysis.NewSensitivityAnalyzer(cfg, logger),
		embedder:    deps.Embedder,
		estimator:   deps.Estimator,
		synthesizer: deps.Synthesizer,
		store:       deps.Store,
		publisher:   deps.Publisher,
		logger:      logger,
		metrics:     deps.Metrics,
	}
}

// SessionID returns the session's identifier
func (s *SessionCoordinator) SessionID() string {
	return s.sessionID
}

// Config returns the session's configuration
func (s *SessionCoordinator) Config() *config.SessionConfig {
	return s.cfg
}

// Graph exposes the aggregate for read-side queries
func (s *SessionCoordinator) Graph() *aggregates.Graph {
	return s.graph
}

// Locks exposes the lock manager for read-side queries
func (s *SessionCoordinator) Locks() *locking.Manager {
	return s.locks
}

// InitializeGoal bootstraps a fresh session: the first branch plus the
// Goal root at layer 0. Runs before any worker holds a lock, so it
// bypasses lease validation.
func (s *SessionCoordinator) InitializeGoal(ctx context.Context, statement string, confidence valueobjects.Confidence) (*entities.Branch, *entities.Node, error) {
	branch := s.graph.CreateBranch()
	s.locks.RegisterBranch(branch.ID())

	node, err := s.graph.AddNode(
		valueobjects.KindGoal,
		valueobjects.GoalPayload{Statement: statement},
		confidence,
		branch.ID(),
		0,
	)
	if err != nil {
		return nil, nil, err
	}
	s.flushEvents(ctx)
	return branch, node, nil
}

// --- Branch lifecycle ---

// CreateBranch creates a branch and registers it with the lock manager
func (s *SessionCoordinator) CreateBranch(ctx context.Context) *entities.Branch {
	branch := s.graph.CreateBranch()
	s.locks.RegisterBranch(branch.ID())
	s.flushEvents(ctx)
	return branch
}

// TransitionBranch applies a branch lifecycle change. Pruning also
// unregisters the branch's lock so the lease cannot outlive it.
func (s *SessionCoordinator) TransitionBranch(ctx context.Context, branchID valueobjects.BranchID, to entities.BranchStatus) error {
	if err := s.graph.TransitionBranch(branchID, to); err != nil {
		return err
	}
	if to == entities.BranchPruned {
		s.locks.UnregisterBranch(branchID)
	}
	s.flushEvents(ctx)
	return nil
}

// --- Locking ---

// AcquireLock requests the branch lease for an actor, waiting up to the
// configured acquisition window under contention
func (s *SessionCoordinator) AcquireLock(ctx context.Context, branchID valueobjects.BranchID, actorID string) error {
	err := s.locks.TryRequestLock(ctx, branchID, actorID, s.cfg.LockAcquireWait)
	s.flushEvents(ctx)
	return err
}

// Heartbeat renews the actor's lease
func (s *SessionCoordinator) Heartbeat(ctx context.Context, branchID valueobjects.BranchID, actorID string) error {
	err := s.locks.Renew(branchID, actorID)
	s.flushEvents(ctx)
	return err
}

// ReleaseLock returns the branch lease; safe to call repeatedly
func (s *SessionCoordinator) ReleaseLock(ctx context.Context, branchID valueobjects.BranchID, actorID string) {
	s.locks.Release(branchID, actorID)
	s.flushEvents(ctx)
}

// LockState returns the branch's lock state and holder
func (s *SessionCoordinator) LockState(branchID valueobjects.BranchID) (locking.LockState, string, error) {
	return s.locks.State(branchID)
}

// GlobalInterrupt freezes every branch in the session
func (s *SessionCoordinator) GlobalInterrupt(ctx context.Context) {
	s.locks.GlobalInterrupt()
	s.flushEvents(ctx)
}

// ResumeAll lifts a global interrupt
func (s *SessionCoordinator) ResumeAll(ctx context.Context) {
	s.locks.Resume()
	s.flushEvents(ctx)
}

// --- Mutations ---

// checkEditable rejects mutations from actors that do not hold the
// branch lease. The lease check and the mutation are not one atomic
// step, but the optimistic versions on the elements make a lost race
// harmless: the stale write bounces on its version instead.
func (s *SessionCoordinator) checkEditable(branchID valueobjects.BranchID, actorID string) error {
	if s.locks.CanEdit(branchID, actorID) {
		return nil
	}
	state, holder, err := s.locks.State(branchID)
	if err != nil {
		return err
	}
	switch state {
	case locking.StatePaused:
		return pkgerrors.NewLockHeldError(branchID.String(), "global_interrupt")
	case locking.StateObservation:
		return pkgerrors.NewLockHeldError(branchID.String(), holder)
	default:
		return pkgerrors.NewLockExpiredError(branchID.String(), actorID)
	}
}

// AddNode creates a node on a branch the actor holds
func (s *SessionCoordinator) AddNode(
	ctx context.Context,
	actorID string,
	kind valueobjects.NodeKind,
	payload valueobjects.Payload,
	confidence valueobjects.Confidence,
	branchID valueobjects.BranchID,
	layer int,
) (*entities.Node, error) {
	if err := s.checkEditable(branchID, actorID); err != nil {
		s.rejected("add_node", err)
		return nil, err
	}

	node, err := s.graph.AddNode(kind, payload, confidence, branchID, layer)
	if err != nil {
		s.rejected("add_node", err)
		return nil, err
	}

	s.accepted(ctx, "add_node")
	return node, nil
}

// UpdateNode patches a node if expectedVersion still matches. A stale
// expected version is rejected whole and announced on the event stream
// so the losing actor can refetch.
func (s *SessionCoordinator) UpdateNode(
	ctx context.Context,
	actorID string,
	nodeID valueobjects.NodeID,
	expectedVersion int,
	patch entities.NodePatch,
) (*entities.Node, error) {
	node, err := s.graph.Node(nodeID)
	if err != nil {
		return nil, err
	}
	if err := s.checkEditable(node.BranchID(), actorID); err != nil {
		s.rejected("update_node", err)
		return nil, err
	}

	updated, err := s.graph.UpdateNode(nodeID, expectedVersion, patch)
	if err != nil {
		if pkgerrors.IsVersionConflict(err) {
			s.noteConflict(ctx, nodeID.String(), expectedVersion, node.Version(), actorID)
		}
		s.rejected("update_node", err)
		return nil, err
	}

	s.accepted(ctx, "update_node")
	return updated, nil
}

// RemoveNode removes a node and its decompose descendants
func (s *SessionCoordinator) RemoveNode(ctx context.Context, actorID string, nodeID valueobjects.NodeID) error {
	node, err := s.graph.Node(nodeID)
	if err != nil {
		return err
	}
	if err := s.checkEditable(node.BranchID(), actorID); err != nil {
		s.rejected("remove_node", err)
		return err
	}

	if err := s.graph.RemoveNode(nodeID); err != nil {
		s.rejected("remove_node", err)
		return err
	}

	s.accepted(ctx, "remove_node")
	return nil
}

// AddEdge creates an edge between two nodes; the actor must hold the
// source node's branch
func (s *SessionCoordinator) AddEdge(
	ctx context.Context,
	actorID string,
	kind valueobjects.EdgeKind,
	sourceID, targetID valueobjects.NodeID,
	weight valueobjects.Weight,
) (*entities.Edge, error) {
	source, err := s.graph.Node(sourceID)
	if err != nil {
		return nil, err
	}
	if err := s.checkEditable(source.BranchID(), actorID); err != nil {
		s.rejected("add_edge", err)
		return nil, err
	}

	edge, err := s.graph.AddEdge(kind, sourceID, targetID, weight)
	if err != nil {
		s.rejected("add_edge", err)
		return nil, err
	}

	s.accepted(ctx, "add_edge")
	return edge, nil
}

// UpdateEdgeWeight changes an edge's weight under its optimistic version
func (s *SessionCoordinator) UpdateEdgeWeight(
	ctx context.Context,
	actorID string,
	edgeID valueobjects.EdgeID,
	expectedVersion int,
	weight valueobjects.Weight,
) (*entities.Edge, error) {
	edge, err := s.graph.Edge(edgeID)
	if err != nil {
		return nil, err
	}
	source, err := s.graph.Node(edge.SourceID())
	if err != nil {
		return nil, err
	}
	if err := s.checkEditable(source.BranchID(), actorID); err != nil {
		s.rejected("update_edge", err)
		return nil, err
	}

	updated, err := s.graph.UpdateEdgeWeight(edgeID, expectedVersion, weight)
	if err != nil {
		if pkgerrors.IsVersionConflict(err) {
			s.noteConflict(ctx, edgeID.String(), expectedVersion, edge.Version(), actorID)
		}
		s.rejected("update_edge", err)
		return nil, err
	}

	s.accepted(ctx, "update_edge")
	return updated, nil
}

// RemoveEdge removes a single edge
func (s *SessionCoordinator) RemoveEdge(ctx context.Context, actorID string, edgeID valueobjects.EdgeID) error {
	edge, err := s.graph.Edge(edgeID)
	if err != nil {
		return err
	}
	source, err := s.graph.Node(edge.SourceID())
	if err != nil {
		return err
	}
	if err := s.checkEditable(source.BranchID(), actorID); err != nil {
		s.rejected("remove_edge", err)
		return err
	}

	if err := s.graph.RemoveEdge(edgeID); err != nil {
		s.rejected("remove_edge", err)
		return err
	}

	s.accepted(ctx, "remove_edge")
	return nil
}

// --- Analysis ---

// RunAnalysis snapshots the graph and runs path analysis from the goal
// root to targetID, then sensitivity over the enumerated paths. The
// result is cached as the session's latest analysis and published.
func (s *SessionCoordinator) RunAnalysis(ctx context.Context, targetID string) (*AnalysisResult, error) {
	goalID, ok := s.graph.GoalID()
	if !ok {
		return nil, pkgerrors.NewValidationError("session has no goal root to analyze from")
	}

	snap := s.graph.Snapshot()
	started := time.Now()

	pathReport, err := s.pathAnal.Analyze(snap, goalID.String(), targetID)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ObserveAnalysis("path", pathReport.Approximate, time.Since(started))
	}

	result := &AnalysisResult{
		TargetID: targetID,
		TakenAt:  snap.TakenAt,
		Path:     pathReport,
	}

	if len(pathReport.Paths) > 0 {
		sensStarted := time.Now()
		sensReport, err := s.sensAnal.Analyze(snap, pathReport.Paths)
		if err != nil {
			return nil, err
		}
		if s.metrics != nil {
			s.metrics.ObserveAnalysis("sensitivity", false, time.Since(sensStarted))
		}
		result.Sensitivity = sensReport
	}
	result.Stability = analysis.AssessStability(s.cfg, pathReport, result.Sensitivity)

	s.mu.Lock()
	s.latest = result
	s.mu.Unlock()

	branchID := valueobjects.BranchID{}
	if target, ok := snap.NodeByID(targetID); ok {
		if id, err := valueobjects.NewBranchIDFromString(target.BranchID); err == nil {
			branchID = id
		}
	}
	s.publish(ctx, events.NewAnalysisCompleted(branchID, "path", pathReport.Approximate, result, time.Now()))

	if s.store != nil {
		if err := s.store.SaveSnapshot(ctx, snap); err != nil {
			// Persistence is write-behind and best effort
			s.logger.Warn("snapshot persistence failed", zap.Error(err))
		}
	}
	return result, nil
}

// LatestAnalysis returns the most recent analysis result, if any
func (s *SessionCoordinator) LatestAnalysis() (*AnalysisResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.latest != nil
}

// --- Convergence ---

// RecordRound folds one finished debate round into the convergence
// machinery: each side of the contending pair is embedded separately so
// oscillation is judged against that side's own earlier positions, while
// entropy is scored over the whole round. Collaborator calls happen
// before any state is touched, so a failed call changes nothing.
func (s *SessionCoordinator) RecordRound(ctx context.Context, input RoundInput) (*RoundResult, error) {
	if len(input.TextsA) == 0 || len(input.TextsB) == 0 {
		return nil, pkgerrors.NewValidationError("a round needs at least one contribution per side")
	}
	if input.BranchA.Equals(input.BranchB) {
		return nil, pkgerrors.NewValidationError("a round needs two distinct contending branches")
	}
	if s.embedder == nil || s.estimator == nil {
		return nil, pkgerrors.NewInternalError("round recording needs an embedder and an entropy estimator")
	}
	if _, err := s.graph.Branch(input.BranchA); err != nil {
		return nil, err
	}
	if _, err := s.graph.Branch(input.BranchB); err != nil {
		return nil, err
	}

	embeddingA, err := s.embedder.EmbedRound(ctx, input.TextsA)
	if err != nil {
		return nil, err
	}
	embeddingB, err := s.embedder.EmbedRound(ctx, input.TextsB)
	if err != nil {
		return nil, err
	}
	combined := make([]string, 0, len(input.TextsA)+len(input.TextsB))
	combined = append(combined, input.TextsA...)
	combined = append(combined, input.TextsB...)
	entropyValue, err := s.estimator.Estimate(ctx, combined)
	if err != nil {
		return nil, err
	}

	oscillatingA, err := s.oscillation.RecordPosition(input.BranchA.String(), embeddingA)
	if err != nil {
		return nil, err
	}
	oscillatingB, err := s.oscillation.RecordPosition(input.BranchB.String(), embeddingB)
	if err != nil {
		return nil, err
	}
	stagnant, err := s.entropy.RecordRound(entropyValue)
	if err != nil {
		return nil, err
	}

	var oscillatingBranches []string
	if oscillatingA {
		oscillatingBranches = append(oscillatingBranches, input.BranchA.String())
	}
	if oscillatingB {
		oscillatingBranches = append(oscillatingBranches, input.BranchB.String())
	}
	oscillating := oscillatingA || oscillatingB

	transition := s.convergence.EvaluateRound(oscillating, stagnant)
	result := &RoundResult{
		Round:               s.convergence.Round(),
		Entropy:             entropyValue,
		Oscillating:         oscillating,
		OscillatingBranches: oscillatingBranches,
		EntropyStagnant:     stagnant,
		Transition:          transition,
	}
	if transition != nil {
		s.noteTransition(ctx, transition)
	}
	return result, nil
}

// CompleteSynthesis finishes a forced synthesis: a synthesis node is
// added to the branch and the session moves to COMPLETED. With an empty
// summary the configured synthesizer is asked to produce one.
func (s *SessionCoordinator) CompleteSynthesis(ctx context.Context, branchID valueobjects.BranchID, summary string) (*entities.Node, error) {
	if s.convergence.State() != analysis.StateForcedSynthesis {
		if s.convergence.State() == analysis.StateCompleted {
			return nil, nil // Idempotent
		}
		return nil, pkgerrors.NewValidationError("session is not awaiting synthesis")
	}

	if strings.TrimSpace(summary) == "" {
		if s.synthesizer == nil {
			return nil, pkgerrors.NewValidationError("synthesis summary is required")
		}
		generated, err := s.synthesizer.Synthesize(ctx, s.graph.Snapshot(), s.convergence.ForcedReason())
		if err != nil {
			return nil, err
		}
		summary = generated
	}

	node, err := s.graph.AddNode(
		valueobjects.KindSynthesis,
		valueobjects.SynthesisPayload{Summary: summary, TriggerReason: s.convergence.ForcedReason()},
		valueobjects.MustConfidence(1.0),
		branchID,
		1,
	)
	if err != nil {
		return nil, err
	}

	transition, err := s.convergence.CompleteSynthesis()
	if err != nil {
		return nil, err
	}
	if transition != nil {
		s.noteTransition(ctx, transition)
	}
	s.flushEvents(ctx)
	return node, nil
}

// Convergence returns the session's convergence status
func (s *SessionCoordinator) Convergence() ConvergenceStatus {
	return ConvergenceStatus{
		State:          s.convergence.State(),
		Round:          s.convergence.Round(),
		MaxRounds:      s.cfg.MaxDebateRounds,
		EntropyHistory: s.entropy.History(),
	}
}

// --- Background lease sweeper ---

// StartSweeper launches the lease sweeper loop. Expired leases are
// reclaimed within one heartbeat interval of lapsing.
func (s *SessionCoordinator) StartSweeper(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.sweeperCtx = cancel
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(s.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				reclaimed := s.locks.SweepExpired()
				if len(reclaimed) > 0 {
					s.logger.Info("reclaimed expired leases", zap.Int("count", len(reclaimed)))
				}
				s.flushEvents(ctx)
			}
		}
	}()
}

// Close stops background work for the session
func (s *SessionCoordinator) Close() {
	s.mu.Lock()
	cancel := s.sweeperCtx
	s.sweeperCtx = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// --- Internals ---

func (s *SessionCoordinator) accepted(ctx context.Context, operation string) {
	if s.metrics != nil {
		s.metrics.MutationsAccepted.WithLabelValues(operation).Inc()
	}
	s.flushEvents(ctx)
}

func (s *SessionCoordinator) rejected(operation string, err error) {
	if s.metrics == nil {
		return
	}
	reason := "internal"
	if appErr := pkgerrors.GetAppError(err); appErr != nil {
		reason = strings.ToLower(string(appErr.Type))
	}
	s.metrics.MutationsRejected.WithLabelValues(operation, reason).Inc()
}

func (s *SessionCoordinator) noteConflict(ctx context.Context, elementID string, expected, actual int, actorID string) {
	if s.metrics != nil {
		s.metrics.VersionConflicts.Inc()
	}
	s.publish(ctx, events.NewVersionConflictNotice(elementID, expected, actual, actorID, time.Now()))
}

func (s *SessionCoordinator) noteTransition(ctx context.Context, t *analysis.Transition) {
	if s.metrics != nil {
		s.metrics.ConvergenceTransitions.WithLabelValues(string(t.To), t.Reason).Inc()
	}
	s.publish(ctx, events.NewConvergenceTransitioned(s.sessionID, string(t.From), string(t.To), t.Reason, t.Round, time.Now()))
}

// flushEvents drains pending domain events from the aggregate and the
// lock manager onto the session stream
func (s *SessionCoordinator) flushEvents(ctx context.Context) {
	if s.publisher == nil {
		s.graph.MarkEventsAsCommitted()
		s.locks.DrainEvents()
		return
	}

	batch := append(s.graph.DrainEvents(), s.locks.DrainEvents()...)
	if len(batch) == 0 {
		return
	}
	if err := s.publisher.PublishBatch(ctx, s.sessionID, batch); err != nil {
		s.logger.Warn("event publish failed", zap.Error(err), zap.Int("events", len(batch)))
	}
}

func (s *SessionCoordinator) publish(ctx context.Context, event events.DomainEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, s.sessionID, event); err != nil {
		s.logger.Warn("event publish failed", zap.Error(err))
	}
}
