package httpapi

import (
	"net/http"

	"github.com/emezins/carevault/internal/server/models"
)

type accessEntry struct {
	CounterpartyID string `json:"counterpartyId"`
	PropertyName   string `json:"propertyName"`
}

type accessListResponse struct {
	Direction string        `json:"direction"`
	Edges     []accessEntry `json:"edges"`
}

func (h *Handler) HandleAccessList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	entityID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	direction := models.EdgeDirection(r.URL.Query().Get("direction"))
	var (
		edges []models.AccessEdge
		err   error
	)
	switch direction {
	case models.EdgeOutgoing:
		edges, err = h.registry.ListOutgoing(r.Context(), entityID)
	case models.EdgeIncoming:
		edges, err = h.registry.ListIncoming(r.Context(), entityID)
	default:
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	resp := accessListResponse{Direction: string(direction), Edges: make([]accessEntry, 0, len(edges))}
	for _, edge := range edges {
		resp.Edges = append(resp.Edges, accessEntry{CounterpartyID: edge.CounterpartyID, PropertyName: edge.PropertyName})
	}
	h.sendResponse(w, resp)
}

type revokeRequest struct {
	CounterpartyID string `json:"counterpartyId"`
	PropertyName   string `json:"propertyName"`
	Direction      string `json:"direction"`
}

type revokeResponse struct {
	Removed bool `json:"removed"`
}

func (h *Handler) HandleAccessRevoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	entityID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req revokeRequest
	if !h.decode(w, r, &req) {
		return
	}

	direction := models.EdgeDirection(req.Direction)
	if direction != models.EdgeOutgoing && direction != models.EdgeIncoming {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	removed, err := h.registry.Revoke(r.Context(), entityID, req.CounterpartyID, req.PropertyName, direction)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendResponse(w, revokeResponse{Removed: removed})
}
