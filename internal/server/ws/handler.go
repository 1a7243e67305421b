package ws

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/emezins/carevault/internal/logging"
	"github.com/emezins/carevault/internal/server/auth"
)

// Subprotocol accepted by the endpoint. Browsers cannot set an
// Authorization header on a websocket upgrade, so the session token rides
// as the second requested subprotocol.
const Subprotocol = "carevault-v1"

type Handler struct {
	hub       *Hub
	secretKey []byte
	logger    logging.Logger
}

func NewHandler(hub *Hub, secretKey []byte, logger logging.Logger) *Handler {
	return &Handler{
		hub:       hub,
		secretKey: secretKey,
		logger:    logger.With("module", "ws_handler"),
	}
}

func (h *Handler) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin:  func(r *http.Request) bool { return true },
		Subprotocols: []string{Subprotocol},
	}
}

// ServeWS upgrades the connection and joins the caller's entity room.
func (h *Handler) ServeWS(shutdownCtx context.Context) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		protocols := strings.Split(r.Header.Get("Sec-WebSocket-Protocol"), ",")
		if len(protocols) != 2 {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		token := strings.TrimSpace(protocols[1])

		entityID, authErr := auth.GetEntityIDFromToken(token, h.secretKey)

		upgrader := h.upgrader()
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn(r.Context(), "websocket upgrade failed", "error", err.Error())
			return
		}

		// The connection must be upgraded before a close reason can be
		// delivered to the peer.
		if authErr != nil {
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthenticated"),
			)
			conn.Close()
			return
		}

		client := NewClient(h.hub, conn, entityID, h.logger)
		h.hub.OpenCh <- client

		go client.ReadPump()
		go client.WritePump(shutdownCtx)
	}
}
