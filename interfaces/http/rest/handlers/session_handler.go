package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"agora-backend/application/services"
	"agora-backend/domain/config"
	"agora-backend/domain/core/valueobjects"
	"agora-backend/pkg/common"
	pkgerrors "agora-backend/pkg/errors"
)

// SessionHandler serves session lifecycle, convergence, and analysis
// endpoints
type SessionHandler struct {
	registry *services.SessionRegistry
	validate *validator.Validate
	logger   *zap.Logger
}

// NewSessionHandler creates a session handler
func NewSessionHandler(registry *services.SessionRegistry, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		registry: registry,
		validate: validator.New(),
		logger:   logger,
	}
}

type createSessionRequest struct {
	Goal           string            `json:"goal" validate:"required"`
	GoalConfidence *float64          `json:"goal_confidence" validate:"omitempty,gte=0,lte=1"`
	Overrides      *config.Overrides `json:"overrides"`
}

type sessionView struct {
	ID          string                     `json:"id"`
	GoalNodeID  string                     `json:"goal_node_id,omitempty"`
	BranchID    string                     `json:"branch_id,omitempty"`
	NodeCount   int                        `json:"node_count"`
	EdgeCount   int                        `json:"edge_count"`
	Convergence services.ConvergenceStatus `json:"convergence"`
}

// CreateSession creates a session with its first branch and Goal root
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondAppError(w, pkgerrors.NewValidationError("invalid request body"))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		common.RespondAppError(w, pkgerrors.NewValidationError(err.Error()))
		return
	}

	confidence := 1.0
	if req.GoalConfidence != nil {
		confidence = *req.GoalConfidence
	}
	goalConfidence, err := valueobjects.NewConfidence(confidence)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	coordinator := h.registry.CreateSession(r.Context(), req.Overrides)
	branch, goal, err := coordinator.InitializeGoal(r.Context(), req.Goal, goalConfidence)
	if err != nil {
		_ = h.registry.DeleteSession(r.Context(), coordinator.SessionID())
		common.RespondAppError(w, err)
		return
	}

	common.RespondJSON(w, http.StatusCreated, sessionView{
		ID:          coordinator.SessionID(),
		GoalNodeID:  goal.ID().String(),
		BranchID:    branch.ID().String(),
		NodeCount:   coordinator.Graph().NodeCount(),
		EdgeCount:   coordinator.Graph().EdgeCount(),
		Convergence: coordinator.Convergence(),
	})
}

// GetSession returns a session summary
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	coordinator, err := h.coordinator(r)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	view := sessionView{
		ID:          coordinator.SessionID(),
		NodeCount:   coordinator.Graph().NodeCount(),
		EdgeCount:   coordinator.Graph().EdgeCount(),
		Convergence: coordinator.Convergence(),
	}
	if goalID, ok := coordinator.Graph().GoalID(); ok {
		view.GoalNodeID = goalID.String()
	}
	common.RespondJSON(w, http.StatusOK, view)
}

// ListSessions returns the IDs of all live sessions
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": h.registry.List(),
	})
}

// DeleteSession stops and removes a session
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.registry.DeleteSession(r.Context(), sessionID); err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]string{"deleted": sessionID})
}

// ListPersistedSessions returns the session IDs with a stored snapshot,
// including sessions that died with the previous process
func (h *SessionHandler) ListPersistedSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := h.registry.PersistedSessions(r.Context())
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": ids,
	})
}

// GetSnapshot returns the last persisted snapshot for a session. Unlike
// the other session endpoints this does not require the session to be
// live; it is the recovery view after a restart.
func (h *SessionHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.registry.PersistedSnapshot(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, snap)
}

// Interrupt engages the session's global interrupt
func (h *SessionHandler) Interrupt(w http.ResponseWriter, r *http.Request) {
	coordinator, err := h.coordinator(r)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	coordinator.GlobalInterrupt(r.Context())
	common.RespondJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

// ResumeFromInterrupt lifts the session's global interrupt
func (h *SessionHandler) ResumeFromInterrupt(w http.ResponseWriter, r *http.Request) {
	coordinator, err := h.coordinator(r)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	coordinator.ResumeAll(r.Context())
	common.RespondJSON(w, http.StatusOK, map[string]string{"status": "resumed"})
}

type recordRoundRequest struct {
	BranchA string   `json:"branch_a" validate:"required"`
	BranchB string   `json:"branch_b" validate:"required"`
	TextsA  []string `json:"texts_a" validate:"required,min=1,dive,required"`
	TextsB  []string `json:"texts_b" validate:"required,min=1,dive,required"`
}

// RecordRound folds one debate round between a contending branch pair
// into convergence tracking
func (h *SessionHandler) RecordRound(w http.ResponseWriter, r *http.Request) {
	coordinator, err := h.coordinator(r)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	var req recordRoundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondAppError(w, pkgerrors.NewValidationError("invalid request body"))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		common.RespondAppError(w, pkgerrors.NewValidationError(err.Error()))
		return
	}
	branchA, err := valueobjects.NewBranchIDFromString(req.BranchA)
	if err != nil {
		common.RespondAppError(w, pkgerrors.NewValidationError(err.Error()))
		return
	}
	branchB, err := valueobjects.NewBranchIDFromString(req.BranchB)
	if err != nil {
		common.RespondAppError(w, pkgerrors.NewValidationError(err.Error()))
		return
	}

	result, err := coordinator.RecordRound(r.Context(), services.RoundInput{
		BranchA: branchA,
		BranchB: branchB,
		TextsA:  req.TextsA,
		TextsB:  req.TextsB,
	})
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}

// Convergence returns the session's convergence status
func (h *SessionHandler) Convergence(w http.ResponseWriter, r *http.Request) {
	coordinator, err := h.coordinator(r)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, coordinator.Convergence())
}

type completeSynthesisRequest struct {
	BranchID string `json:"branch_id" validate:"required"`
	Summary  string `json:"summary"`
}

// CompleteSynthesis finishes a forced synthesis
func (h *SessionHandler) CompleteSynthesis(w http.ResponseWriter, r *http.Request) {
	coordinator, err := h.coordinator(r)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	var req completeSynthesisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondAppError(w, pkgerrors.NewValidationError("invalid request body"))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		common.RespondAppError(w, pkgerrors.NewValidationError(err.Error()))
		return
	}
	branchID, err := valueobjects.NewBranchIDFromString(req.BranchID)
	if err != nil {
		common.RespondAppError(w, pkgerrors.NewValidationError(err.Error()))
		return
	}

	node, err := coordinator.CompleteSynthesis(r.Context(), branchID, req.Summary)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	if node == nil {
		common.RespondJSON(w, http.StatusOK, map[string]string{"status": "already_completed"})
		return
	}
	common.RespondJSON(w, http.StatusCreated, newNodeView(node))
}

type runAnalysisRequest struct {
	TargetID string `json:"target_id" validate:"required"`
}

// RunAnalysis runs path and sensitivity analysis against a fresh
// snapshot
func (h *SessionHandler) RunAnalysis(w http.ResponseWriter, r *http.Request) {
	coordinator, err := h.coordinator(r)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	var req runAnalysisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondAppError(w, pkgerrors.NewValidationError("invalid request body"))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		common.RespondAppError(w, pkgerrors.NewValidationError(err.Error()))
		return
	}

	result, err := coordinator.RunAnalysis(r.Context(), req.TargetID)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}

// LatestAnalysis returns the most recent analysis result
func (h *SessionHandler) LatestAnalysis(w http.ResponseWriter, r *http.Request) {
	coordinator, err := h.coordinator(r)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	result, ok := coordinator.LatestAnalysis()
	if !ok {
		common.RespondAppError(w, pkgerrors.NewNotFoundError("analysis for session "+coordinator.SessionID()))
		return
	}
	common.RespondJSON(w, http.StatusOK, result)
}

func (h *SessionHandler) coordinator(r *http.Request) (*services.SessionCoordinator, error) {
	return h.registry.Get(chi.URLParam(r, "sessionID"))
}
