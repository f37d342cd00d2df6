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

// GraphHandler serves node and edge mutation endpoints
type GraphHandler struct {
	registry *services.SessionRegistry
	validate *validator.Validate
	logger   *zap.Logger
}

// NewGraphHandler creates a graph handler
func NewGraphHandler(registry *services.SessionRegistry, logger *zap.Logger) *GraphHandler {
	return &GraphHandler{
		registry: registry,
		validate: validator.New(),
		logger:   logger,
	}
}

type createNodeRequest struct {
	Kind       string  `json:"kind" validate:"required"`
	Text       string  `json:"text" validate:"required"`
	Confidence float64 `json:"confidence" validate:"gte=0,lte=1"`
	BranchID   string  `json:"branch_id" validate:"required"`
	Layer      int     `json:"layer" validate:"gte=0"`
}

// CreateNode adds a node to a branch the actor holds
func (h *GraphHandler) CreateNode(w http.ResponseWriter, r *http.Request) {
	coordinator, actor, req, ok := decode[createNodeRequest](h, w, r)
	if !ok {
		return
	}

	kind := valueobjects.NodeKind(req.Kind)
	payload, err := valueobjects.NewPayload(kind, req.Text)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	confidence, err := valueobjects.NewConfidence(req.Confidence)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	branchID, err := valueobjects.NewBranchIDFromString(req.BranchID)
	if err != nil {
		common.RespondAppError(w, pkgerrors.NewValidationError(err.Error()))
		return
	}

	node, err := coordinator.AddNode(r.Context(), actor, kind, payload, confidence, branchID, req.Layer)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusCreated, newNodeView(node))
}

// GetNode returns one node
func (h *GraphHandler) GetNode(w http.ResponseWriter, r *http.Request) {
	coordinator, err := h.coordinator(r)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	nodeID, err := valueobjects.NewNodeIDFromString(chi.URLParam(r, "nodeID"))
	if err != nil {
		common.RespondAppError(w, pkgerrors.NewValidationError(err.Error()))
		return
	}

	node, err := coordinator.Graph().Node(nodeID)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, newNodeView(node))
}

type updateNodeRequest struct {
	ExpectedVersion int      `json:"expected_version" validate:"gte=1"`
	Confidence      *float64 `json:"confidence" validate:"omitempty,gte=0,lte=1"`
	Text            *string  `json:"text" validate:"omitempty,min=1"`
}

// UpdateNode patches a node under its optimistic version
func (h *GraphHandler) UpdateNode(w http.ResponseWriter, r *http.Request) {
	coordinator, actor, req, ok := decode[updateNodeRequest](h, w, r)
	if !ok {
		return
	}
	nodeID, err := valueobjects.NewNodeIDFromString(chi.URLParam(r, "nodeID"))
	if err != nil {
		common.RespondAppError(w, pkgerrors.NewValidationError(err.Error()))
		return
	}

	var patch entities.NodePatch
	if req.Confidence != nil {
		confidence, err := valueobjects.NewConfidence(*req.Confidence)
		if err != nil {
			common.RespondAppError(w, err)
			return
		}
		patch.Confidence = &confidence
	}
	if req.Text != nil {
		node, err := coordinator.Graph().Node(nodeID)
		if err != nil {
			common.RespondAppError(w, err)
			return
		}
		payload, err := valueobjects.NewPayload(node.Kind(), *req.Text)
		if err != nil {
			common.RespondAppError(w, err)
			return
		}
		patch.Payload = payload
	}

	updated, err := coordinator.UpdateNode(r.Context(), actor, nodeID, req.ExpectedVersion, patch)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, newNodeView(updated))
}

// DeleteNode removes a node and its decompose descendants
func (h *GraphHandler) DeleteNode(w http.ResponseWriter, r *http.Request) {
	coordinator, err := h.coordinator(r)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	actor, err := actorID(r)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	nodeID, err := valueobjects.NewNodeIDFromString(chi.URLParam(r, "nodeID"))
	if err != nil {
		common.RespondAppError(w, pkgerrors.NewValidationError(err.Error()))
		return
	}

	if err := coordinator.RemoveNode(r.Context(), actor, nodeID); err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]string{"deleted": nodeID.String()})
}

type createEdgeRequest struct {
	Kind     string  `json:"kind" validate:"required"`
	SourceID string  `json:"source_id" validate:"required"`
	TargetID string  `json:"target_id" validate:"required"`
	Weight   float64 `json:"weight" validate:"gte=0,lte=1"`
}

// CreateEdge adds an edge between two nodes
func (h *GraphHandler) CreateEdge(w http.ResponseWriter, r *http.Request) {
	coordinator, actor, req, ok := decode[createEdgeRequest](h, w, r)
	if !ok {
		return
	}

	sourceID, err := valueobjects.NewNodeIDFromString(req.SourceID)
	if err != nil {
		common.RespondAppError(w, pkgerrors.NewValidationError(err.Error()))
		return
	}
	targetID, err := valueobjects.NewNodeIDFromString(req.TargetID)
	if err != nil {
		common.RespondAppError(w, pkgerrors.NewValidationError(err.Error()))
		return
	}
	weight, err := valueobjects.NewWeight(req.Weight)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	edge, err := coordinator.AddEdge(r.Context(), actor, valueobjects.EdgeKind(req.Kind), sourceID, targetID, weight)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusCreated, newEdgeView(edge))
}

type updateEdgeRequest struct {
	ExpectedVersion int     `json:"expected_version" validate:"gte=1"`
	Weight          float64 `json:"weight" validate:"gte=0,lte=1"`
}

// UpdateEdge changes an edge's weight under its optimistic version
func (h *GraphHandler) UpdateEdge(w http.ResponseWriter, r *http.Request) {
	coordinator, actor, req, ok := decode[updateEdgeRequest](h, w, r)
	if !ok {
		return
	}
	edgeID, err := valueobjects.NewEdgeIDFromString(chi.URLParam(r, "edgeID"))
	if err != nil {
		common.RespondAppError(w, pkgerrors.NewValidationError(err.Error()))
		return
	}
	weight, err := valueobjects.NewWeight(req.Weight)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}

	edge, err := coordinator.UpdateEdgeWeight(r.Context(), actor, edgeID, req.ExpectedVersion, weight)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, newEdgeView(edge))
}

// DeleteEdge removes an edge
func (h *GraphHandler) DeleteEdge(w http.ResponseWriter, r *http.Request) {
	coordinator, err := h.coordinator(r)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	actor, err := actorID(r)
	if err != nil {
		common.RespondAppError(w, err)
		return
	}
	edgeID, err := valueobjects.NewEdgeIDFromString(chi.URLParam(r, "edgeID"))
	if err != nil {
		common.RespondAppError(w, pkgerrors.NewValidationError(err.Error()))
		return
	}

	if err := coordinator.RemoveEdge(r.Context(), actor, edgeID); err != nil {
		common.RespondAppError(w, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, map[string]string{"deleted": edgeID.String()})
}

func (h *GraphHandler) coordinator(r *http.Request) (*services.SessionCoordinator, error) {
	return h.registry.Get(chi.URLParam(r, "sessionID"))
}

// decode resolves the session, actor, and validated request body shared
// by every mutation endpoint
func decode[T any](h *GraphHandler, w http.ResponseWriter, r *http.Request) (*services.SessionCoordinator, string, T, bool) {
	var req T
	coordinator, err := h.coordinator(r)
	if err != nil {
		common.RespondAppError(w, err)
		return nil, "", req, false
	}
	actor, err := actorID(r)
	if err != nil {
		common.RespondAppError(w, err)
		return nil, "", req, false
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondAppError(w, pkgerrors.NewValidationError("invalid request body"))
		return nil, "", req, false
	}
	if err := h.validate.Struct(&req); err != nil {
		common.RespondAppError(w, pkgerrors.NewValidationError(err.Error()))
		return nil, "", req, false
	}
	return coordinator, actor, req, true
}
