package httpapi

import (
	"net/http"
	"time"
)

type transferRequest struct {
	TargetEntityID     string            `json:"targetEntityId"`
	Properties         []string          `json:"properties"`
	Payloads           map[string][]byte `json:"payloads"`
	SealedKeyForSource []byte            `json:"sealedKeyForSource,omitempty"`
	Salt               []byte            `json:"salt,omitempty"`
}

type transferResponse struct {
	Transferred []string `json:"transferred"`
	ShareCode   string   `json:"shareCode,omitempty"`
}

func (h *Handler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	entityID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req transferRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.transfer.Transfer(r.Context(), entityID, req.TargetEntityID, req.Properties, req.Payloads, req.SealedKeyForSource, req.Salt)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	resp := transferResponse{Transferred: result.Transferred, ShareCode: result.ShareCode}
	if resp.Transferred == nil {
		resp.Transferred = []string{}
	}
	h.sendResponse(w, resp)
}

type ledgerEntry struct {
	ID               string    `json:"id"`
	RecordKey        string    `json:"recordKey"`
	FromEntityID     string    `json:"fromEntityId"`
	ToEntityID       string    `json:"toEntityId"`
	TransferredAt    time.Time `json:"transferredAt"`
	AutoShareGranted bool      `json:"autoShareGranted"`
}

type ledgerResponse struct {
	Transfers []ledgerEntry `json:"transfers"`
}

func (h *Handler) HandleTransferLedger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	entityID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	records, err := h.transfer.Ledger(r.Context(), entityID)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	resp := ledgerResponse{Transfers: make([]ledgerEntry, 0, len(records))}
	for _, record := range records {
		resp.Transfers = append(resp.Transfers, ledgerEntry{
			ID:               record.ID,
			RecordKey:        record.RecordKey,
			FromEntityID:     record.FromEntityID,
			ToEntityID:       record.ToEntityID,
			TransferredAt:    record.TransferredAt,
			AutoShareGranted: record.AutoShareGranted,
		})
	}
	h.sendResponse(w, resp)
}
