package httpapi

import (
	"net/http"

	"github.com/emezins/carevault/internal/server/models"
)

type registerRequest struct {
	CredentialID string `json:"credentialId"`
	Salt         []byte `json:"salt"`
	Verifier     []byte `json:"verifier"`
	Role         string `json:"role"`
}

type registerResponse struct {
	EntityID string `json:"entityId"`
	Role     string `json:"role"`
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req registerRequest
	if !h.decode(w, r, &req) {
		return
	}

	entity, err := h.identity.Register(r.Context(), req.CredentialID, req.Salt, req.Verifier, models.Role(req.Role))
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendResponse(w, registerResponse{EntityID: entity.ID, Role: string(entity.Role)})
}

type saltResponse struct {
	Salt []byte `json:"salt"`
}

func (h *Handler) HandleSalt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	credentialID := r.URL.Query().Get("credentialId")
	if credentialID == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	salt, err := h.identity.GetSalt(r.Context(), credentialID)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendResponse(w, saltResponse{Salt: salt})
}

type loginRequest struct {
	CredentialID string `json:"credentialId"`
	Verifier     []byte `json:"verifier"`
}

type loginResponse struct {
	Token string `json:"token"`
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}

	token, err := h.identity.Login(r.Context(), req.CredentialID, req.Verifier)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendResponse(w, loginResponse{Token: token})
}

type entityResponse struct {
	EntityID  string `json:"entityId"`
	Role      string `json:"role"`
	PublicKey string `json:"publicKey,omitempty"`
}

func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	entityID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	entity, err := h.identity.GetEntity(r.Context(), entityID)
	if err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendResponse(w, entityResponse{EntityID: entity.ID, Role: string(entity.Role), PublicKey: entity.PublicKey})
}

type setPublicKeyRequest struct {
	PublicKey string `json:"publicKey"`
}

// HandlePublicKey registers the caller's transfer key on POST and, on
// GET, looks up any entity's key so a discloser can seal for it.
func (h *Handler) HandlePublicKey(w http.ResponseWriter, r *http.Request) {
	entityID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req setPublicKeyRequest
		if !h.decode(w, r, &req) {
			return
		}
		if err := h.identity.SetPublicKey(r.Context(), entityID, req.PublicKey); err != nil {
			h.sendError(w, r, err)
			return
		}
		h.sendResponse(w, entityResponse{EntityID: entityID, PublicKey: req.PublicKey})

	case http.MethodGet:
		targetID := r.URL.Query().Get("entityId")
		if targetID == "" {
			targetID = entityID
		}
		entity, err := h.identity.GetEntity(r.Context(), targetID)
		if err != nil {
			h.sendError(w, r, err)
			return
		}
		h.sendResponse(w, entityResponse{EntityID: entity.ID, Role: string(entity.Role), PublicKey: entity.PublicKey})

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type rebindRequest struct {
	CredentialID string `json:"credentialId"`
	NewEntityID  string `json:"newEntityId"`
}

type successResponse struct {
	Success bool `json:"success"`
}

func (h *Handler) HandleRebind(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	entityID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req rebindRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.identity.RebindCredential(r.Context(), entityID, req.CredentialID, req.NewEntityID); err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendResponse(w, successResponse{Success: true})
}

func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	entityID, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	if err := h.identity.Reset(r.Context(), entityID); err != nil {
		h.sendError(w, r, err)
		return
	}

	h.sendResponse(w, successResponse{Success: true})
}
