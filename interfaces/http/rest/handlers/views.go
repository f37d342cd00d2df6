// Package handlers implements the REST endpoints. Each handler owns one
// resource; routing lives in the rest package.
package handlers

import (
	"net/http"
	"time"

	"agora-backend/domain/core/entities"
	pkgerrors "agora-backend/pkg/errors"
)

// nodeView is the wire shape of a node
type nodeView struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	BranchID   string    `json:"branch_id"`
	Layer      int       `json:"layer"`
	Version    int       `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func newNodeView(n *entities.Node) nodeView {
	return nodeView{
		ID:         n.ID().String(),
		Kind:       string(n.Kind()),
		Text:       n.Payload().Text(),
		Confidence: n.Confidence().Value(),
		BranchID:   n.BranchID().String(),
		Layer:      n.Layer(),
		Version:    n.Version(),
		CreatedAt:  n.CreatedAt(),
		UpdatedAt:  n.UpdatedAt(),
	}
}

// edgeView is the wire shape of an edge
type edgeView struct {
	ID       string  `json:"id"`
	Kind     string  `json:"kind"`
	SourceID string  `json:"source_id"`
	TargetID string  `json:"target_id"`
	Weight   float64 `json:"weight"`
	Version  int     `json:"version"`
}

func newEdgeView(e *entities.Edge) edgeView {
	return edgeView{
		ID:       e.ID().String(),
		Kind:     string(e.Kind()),
		SourceID: e.SourceID().String(),
		TargetID: e.TargetID().String(),
		Weight:   e.Weight().Value(),
		Version:  e.Version(),
	}
}

// branchView is the wire shape of a branch
type branchView struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	NodeCount int    `json:"node_count"`
}

func newBranchView(b *entities.Branch) branchView {
	return branchView{
		ID:        b.ID().String(),
		Status:    string(b.Status()),
		NodeCount: b.NodeCount(),
	}
}

// actorID extracts the acting worker's identity from the request
func actorID(r *http.Request) (string, error) {
	id := r.Header.Get("X-Actor-ID")
	if id == "" {
		return "", pkgerrors.NewValidationError("X-Actor-ID header is required")
	}
	return id, nil
}
