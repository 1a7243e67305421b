package httpapi

import (
	"net/http"

	"github.com/emezins/carevault/internal/envelope"
	"github.com/emezins/carevault/internal/server/models"
)

type appendRequest struct {
	Payload envelope.Envelope `json:"payload"`
	Hints   []string          `json:"hints,omitempty"`
}

type replayResponse struct {
	Events []models.EncryptedEvent `json:"events"`
}

// HandleEvents appends to the caller's own log on POST and replays a log
// in full on GET. GET defaults to the caller's own log; ?entityId= replays
// another entity's log when the caller holds an incoming disclosure from
// it.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	entityID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req appendRequest
		if !h.decode(w, r, &req) {
			return
		}
		event, err := h.vault.Append(r.Context(), entityID, req.Payload, req.Hints)
		if err != nil {
			h.sendError(w, r, err)
			return
		}
		h.sendResponse(w, event)

	case http.MethodGet:
		source := r.URL.Query().Get("entityId")
		if source == "" {
			source = entityID
		}
		events, err := h.vault.ReplayShared(r.Context(), entityID, source)
		if err != nil {
			h.sendError(w, r, err)
			return
		}
		if events == nil {
			events = []models.EncryptedEvent{}
		}
		h.sendResponse(w, replayResponse{Events: events})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}
