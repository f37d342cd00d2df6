package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"agora-backend/application/services"
	"agora-backend/domain/core/entities"
	"agora-backend/domain/core/valueobjects"
	"agora-backend/pkg/common"
	pkgerrors "agora-backend/pkg/errors"
)

// BranchHandler serves branch lifecycle and lock endpoints
type BranchHandler struct {
	registry *services.SessionRegistry
	validate *validator.Validate
	logger   *zap.Logger
}

// NewBranchHandler creates a branch handler
func NewBranchHandler(registry *services.SessionRegistry, logger *zap.Logger) *BranchHandler {
	return &BranchHandler{
		registry: registry,
		validate: validator.New(),
		logger:   logger,
	}
}

// CreateBranch creates a new active branch in the session
func (h *BranchHandler) CreateBranch(w http.ResponseWriter, r *http.Request) {
	coordinator, err := h.coordinator(r)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	branch := coordinator.CreateBranch(r.Context())
	common.RespondJSON(w, http.StatusCreated, newBranchView(branch))
}

// ListBranches returns all branches in the session
func (h *BranchHandler) ListBranches(w http.ResponseWriter, r *http.Request) {
	coordinator, err := h.coordinator(r)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	branches := coordinator.Graph().Branches()
	views := make([]branchView, 0, len(branches))
	for _, branch := range branches {
		views = append(views, newBranchView(branch))
	}
	common.RespondJSON(w, http.StatusOK, map[string]interface{}{"branches": views})
}

type transitionBranchRequest struct {
	Status string `json:"status" validate:"required,oneof=active paused completed pruned"`
}

// TransitionBranch applies a branch lifecycle change
func (h *BranchHandler) TransitionBranch(w http.ResponseWriter, r *http.Request) {
	coordinator, err := h.coordinator(r)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	branchID, err := h.branchID(r)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	var req transitionBranchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondAppError(w, pkgerrors.NewValidationError("invalid request body"))
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		common.RespondAppError(w, pkgerrors.NewValidationError(err.Error()))
		return
	}

	if err := coordinator.TransitionBranch(r.Context(), branchID, entities.BranchStatus(req.Status)); err != nil {
		common.RespondAppError(w, err)
		return
	}

	branch, err := coordinator.Graph().Branch(branchID)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, newBranchView(branch))
}

type lockView struct {
	BranchID string `json:"branch_id"`
	State    string `json:"state"`
	HolderID string `json:"holder_id,omitempty"`
}

// AcquireLock requests the branch lease for the acting worker
func (h *BranchHandler) AcquireLock(w http.ResponseWriter, r *http.Request) {
	coordinator, branchID, actor, err := h.lockContext(r)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	if err := coordinator.AcquireLock(r.Context(), branchID, actor); err != nil {
		common.RespondAppError(w, err)
		return
	}
	h.respondLockState(w, coordinator, branchID)
}

// ReleaseLock returns the branch lease
func (h *BranchHandler) ReleaseLock(w http.ResponseWriter, r *http.Request) {
	coordinator, branchID, actor, err := h.lockContext(r)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	coordinator.ReleaseLock(r.Context(), branchID, actor)
	h.respondLockState(w, coordinator, branchID)
}

// Heartbeat renews the acting worker's lease
func (h *BranchHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	coordinator, branchID, actor, err := h.lockContext(r)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	if err := coordinator.Heartbeat(r.Context(), branchID, actor); err != nil {
		common.RespondAppError(w, err)
		return
	}
	h.respondLockState(w, coordinator, branchID)
}

// LockState returns the branch's current lock state
func (h *BranchHandler) LockState(w http.ResponseWriter, r *http.Request) {
	coordinator, err := h.coordinator(r)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	branchID, err := h.branchID(r)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	h.respondLockState(w, coordinator, branchID)
}

func (h *BranchHandler) respondLockState(w http.ResponseWriter, coordinator *services.SessionCoordinator, branchID valueobjects.BranchID) {
	state, holder, err := coordinator.LockState(branchID)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, lockView{
		BranchID: branchID.String(),
		State:    string(state),
		HolderID: holder,
	})
}

func (h *BranchHandler) lockContext(r *http.Request) (*services.SessionCoordinator, valueobjects.BranchID, string, error) {
	coordinator, err := h.coordinator(r)
	if err != nil {
		return nil, valueobjects.BranchID{}, "", err
	}
	branchID, err := h.branchID(r)
	if err != nil {
		return nil, valueobjects.BranchID{}, "", err
	}
	actor, err := actorID(r)
	if err != nil {
		return nil, valueobjects.BranchID{}, "", err
	}
	return coordinator, branchID, actor, nil
}

func (h *BranchHandler) branchID(r *http.Request) (valueobjects.BranchID, error) {
	branchID, err := valueobjects.NewBranchIDFromString(chi.URLParam(r, "branchID"))
	if err != nil {
		return valueobjects.BranchID{}, pkgerrors.NewValidationError(err.Error())
	}
	return branchID, nil
}

func (h *BranchHandler) coordinator(r *http.Request) (*services.SessionCoordinator, error) {
	return h.registry.Get(chi.URLParam(r, "sessionID"))
}
