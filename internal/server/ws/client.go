package ws

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/emezins/carevault/internal/logging"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. The protocol is push-only,
	// so inbound traffic is tiny.
	maxMessageSize = 512

	messagesPerSecond = 5
	burstLimit        = 10
)

// Client is a middleman between one websocket connection and the hub.
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	entityID string
	logger   logging.Logger
	limiter  *rate.Limiter

	// Send is the buffered channel of outbound pushes. Closed by the hub.
	Send chan []byte
}

func NewClient(hub *Hub, conn *websocket.Conn, entityID string, logger logging.Logger) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		entityID: entityID,
		logger:   logger,
		Send:     make(chan []byte, 128),
		limiter:  rate.NewLimiter(rate.Limit(messagesPerSecond), burstLimit),
	}
}

// ReadPump drains the connection to keep pong handling alive. Clients
// have nothing substantive to say on this channel; a peer that floods it
// is disconnected.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.CloseCh <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn(context.Background(), "websocket closed", "entity", c.entityID, "error", err.Error())
			}
			return
		}

		if !c.limiter.Allow() {
			c.logger.Warn(context.Background(), "message rate limit exceeded", "entity", c.entityID)
			return
		}
	}
}

// WritePump forwards pushes from the hub and keeps the connection alive
// with pings until the hub closes Send or the server shuts down.
func (c *Client) WritePump(shutdownCtx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-shutdownCtx.Done():
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			)
			return
		}
	}
}
