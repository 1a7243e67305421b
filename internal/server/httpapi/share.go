package httpapi

import (
	"net/http"
	"time"
)

type issueShareRequest struct {
	Code         string        `json:"code"`
	PropertyName string        `json:"propertyName"`
	SealedKey    []byte        `json:"sealedKey"`
	Salt         []byte        `json:"salt"`
	TTL          time.Duration `json:"ttl,omitempty"`
}

type issueShareResponse struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (h *Handler) HandleShare(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	entityID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req issueShareRequest
	if !h.decode(w, r, &req) {
		return
	}

	grant, err := h.share.Issue(r.Context(), entityID, req.Code, req.PropertyName, req.SealedKey, req.Salt, req.TTL)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendResponse(w, issueShareResponse{Code: grant.Code, ExpiresAt: grant.ExpiresAt})
}

type redeemRequest struct {
	Code string `json:"code"`
}

type redeemShareResponse struct {
	SourceEntityID string `json:"sourceEntityId"`
	PropertyName   string `json:"propertyName"`
	SealedKey      []byte `json:"sealedKey"`
	Salt           []byte `json:"salt"`
}

func (h *Handler) HandleShareRedeem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	entityID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req redeemRequest
	if !h.decode(w, r, &req) {
		return
	}

	grant, err := h.share.Redeem(r.Context(), entityID, req.Code)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendResponse(w, redeemShareResponse{
		SourceEntityID: grant.SourceEntityID,
		PropertyName:   grant.PropertyName,
		SealedKey:      grant.SealedKey,
		Salt:           grant.Salt,
	})
}

type issueInviteRequest struct {
	Code      string        `json:"code"`
	SealedKey []byte        `json:"sealedKey"`
	Salt      []byte        `json:"salt"`
	TTL       time.Duration `json:"ttl,omitempty"`
}

func (h *Handler) HandleInvite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	entityID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req issueInviteRequest
	if !h.decode(w, r, &req) {
		return
	}

	grant, err := h.share.IssueInvite(r.Context(), entityID, req.Code, req.SealedKey, req.Salt, req.TTL)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendResponse(w, issueShareResponse{Code: grant.Code, ExpiresAt: grant.ExpiresAt})
}

type redeemInviteResponse struct {
	EntityID  string `json:"entityId"`
	SealedKey []byte `json:"sealedKey"`
	Salt      []byte `json:"salt"`
}

// HandleInviteRedeem is deliberately unauthenticated: the redeeming
// device has no session yet. Possession of the code is the credential.
func (h *Handler) HandleInviteRedeem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req redeemRequest
	if !h.decode(w, r, &req) {
		return
	}

	grant, err := h.share.RedeemInvite(r.Context(), req.Code)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendResponse(w, redeemInviteResponse{
		EntityID:  grant.SourceEntityID,
		SealedKey: grant.SealedKey,
		Salt:      grant.Salt,
	})
}
