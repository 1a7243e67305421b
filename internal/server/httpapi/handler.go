// Package httpapi exposes the vault protocol over REST plus one
// websocket endpoint. Request and response bodies are JSON; byte fields
// (salts, verifiers, sealed keys, ciphertexts) travel base64-encoded the
// way encoding/json renders []byte.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/emezins/carevault/internal/common"
	"github.com/emezins/carevault/internal/logging"
	"github.com/emezins/carevault/internal/server/auth"
	"github.com/emezins/carevault/internal/server/services"
)

type Handler struct {
	identity  *services.IdentityService
	vault     *services.VaultService
	share     *services.ShareService
	registry  *services.RegistryService
	transfer  *services.TransferService
	blob      *services.BlobService
	secretKey []byte
	logger    logging.Logger
}

func NewHandler(
	identity *services.IdentityService,
	vault *services.VaultService,
	share *services.ShareService,
	registry *services.RegistryService,
	transfer *services.TransferService,
	blob *services.BlobService,
	secretKey []byte,
	logger logging.Logger,
) *Handler {
	return &Handler{
		identity:  identity,
		vault:     vault,
		share:     share,
		registry:  registry,
		transfer:  transfer,
		blob:      blob,
		secretKey: secretKey,
		logger:    logger.With("module", "httpapi"),
	}
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.HandleHealth)

	mux.HandleFunc("/api/register", h.HandleRegister)
	mux.HandleFunc("/api/salt", h.HandleSalt)
	mux.HandleFunc("/api/login", h.HandleLogin)
	mux.HandleFunc("/api/me", h.HandleMe)
	mux.HandleFunc("/api/pubkey", h.HandlePublicKey)
	mux.HandleFunc("/api/rebind", h.HandleRebind)
	mux.HandleFunc("/api/reset", h.HandleReset)

	mux.HandleFunc("/api/events", h.HandleEvents)

	mux.HandleFunc("/api/share", h.HandleShare)
	mux.HandleFunc("/api/share/redeem", h.HandleShareRedeem)
	mux.HandleFunc("/api/invite", h.HandleInvite)
	mux.HandleFunc("/api/invite/redeem", h.HandleInviteRedeem)

	mux.HandleFunc("/api/transfer", h.HandleTransfer)
	mux.HandleFunc("/api/transfers", h.HandleTransferLedger)

	mux.HandleFunc("/api/access", h.HandleAccessList)
	mux.HandleFunc("/api/access/revoke", h.HandleAccessRevoke)

	mux.HandleFunc("/api/blob/upload-url", h.HandleBlobUploadURL)
	mux.HandleFunc("/api/blob/download-url", h.HandleBlobDownloadURL)
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) sendResponse(w http.ResponseWriter, resp any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}

func (h *Handler) tokenFromAuthHeader(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) {
		return ""
	}
	return strings.TrimPrefix(authHeader, prefix)
}

// authenticate resolves the bearer token to an entity id, writing the 401
// itself on failure.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (string, bool) {
	entityID, err := auth.GetEntityIDFromToken(h.tokenFromAuthHeader(r), h.secretKey)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return "", false
	}
	return entityID, true
}

// sendError maps the service sentinels onto HTTP statuses. Messages stay
// generic so the API leaks nothing about what exists.
func (h *Handler) sendError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, common.ErrorNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, common.ErrorAlreadyExists), errors.Is(err, common.ErrorConflict):
		http.Error(w, "conflict", http.StatusConflict)
	case errors.Is(err, common.ErrorExpired):
		http.Error(w, "expired", http.StatusGone)
	case errors.Is(err, common.ErrorForbidden), errors.Is(err, common.ErrorInvalidRole), errors.Is(err, common.ErrorNoPublicKey):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, common.ErrorUnauthorized), errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrTokenExpired):
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	case errors.Is(err, common.ErrorMissingPayload), errors.Is(err, common.ErrorInvalidEnvelope):
		http.Error(w, "bad request", http.StatusBadRequest)
	default:
		h.logger.Error(r.Context(), "internal error", "path", r.URL.Path, "error", err.Error())
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}
