// Package ws pushes live event notifications to connected clients. Every
// authenticated connection joins the room of its own entity; the hub
// bridges rooms to the pub/sub broker so fan-out works across server
// instances.
package ws

import (
	"context"

	"github.com/emezins/carevault/internal/logging"
	"github.com/emezins/carevault/internal/server/pubsub"
	"github.com/emezins/carevault/internal/server/services"
)

const maxConnectionsPerEntity = 5

type delivery struct {
	entityID string
	message  []byte
}

// Hub maintains the set of active clients grouped by entity. All state is
// owned by the Run goroutine; the channels are the only way in.
type Hub struct {
	broker pubsub.Broker
	logger logging.Logger

	OpenCh    chan *Client
	CloseCh   chan *Client
	deliverCh chan delivery

	entityToClients map[string]map[*Client]struct{}
	entityToCancel  map[string]context.CancelFunc
}

func NewHub(broker pubsub.Broker, logger logging.Logger) *Hub {
	return &Hub{
		broker:          broker,
		logger:          logger.With("module", "ws_hub"),
		OpenCh:          make(chan *Client, 256),
		CloseCh:         make(chan *Client, 256),
		deliverCh:       make(chan delivery, 1024),
		entityToClients: make(map[string]map[*Client]struct{}),
		entityToCancel:  make(map[string]context.CancelFunc),
	}
}

// Run processes registrations and deliveries until ctx ends. The first
// client of an entity creates the broker subscription for that entity's
// topic; the last one leaving cancels it.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case client := <-h.OpenCh:
			h.open(ctx, client)

		case client := <-h.CloseCh:
			h.close(client)

		case d := <-h.deliverCh:
			h.deliver(d)

		case <-ctx.Done():
			for entityID, cancel := range h.entityToCancel {
				cancel()
				delete(h.entityToCancel, entityID)
			}
			for _, clients := range h.entityToClients {
				for client := range clients {
					close(client.Send)
				}
			}
			h.drain()
			return
		}
	}
}

// drain empties the registration channels after shutdown. Pumps may
// still be reporting connects and disconnects; a client that never made
// it into a room gets its Send closed here so its WritePump exits.
func (h *Hub) drain() {
	for {
		select {
		case client := <-h.OpenCh:
			close(client.Send)
		case <-h.CloseCh:
		default:
			return
		}
	}
}

func (h *Hub) open(ctx context.Context, client *Client) {
	entityID := client.entityID

	if len(h.entityToClients[entityID]) >= maxConnectionsPerEntity {
		h.logger.Warn(ctx, "connection limit reached", "entity", entityID)
		close(client.Send)
		return
	}

	if h.entityToClients[entityID] == nil {
		subCtx, cancel := context.WithCancel(ctx)

		// The handler runs on the broker's goroutine; it only forwards
		// into the hub loop, dropping when the loop is saturated.
		err := h.broker.Subscribe(subCtx, services.EntityTopic(entityID), func(message []byte) {
			select {
			case h.deliverCh <- delivery{entityID: entityID, message: message}:
			default:
			}
		})
		if err != nil {
			h.logger.Error(ctx, "room subscription failed", "entity", entityID, "error", err.Error())
			cancel()
			close(client.Send)
			return
		}

		h.entityToClients[entityID] = make(map[*Client]struct{})
		h.entityToCancel[entityID] = cancel
	}

	h.entityToClients[entityID][client] = struct{}{}
}

func (h *Hub) close(client *Client) {
	entityID := client.entityID
	clients, ok := h.entityToClients[entityID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}

	delete(clients, client)
	close(client.Send)
	if len(clients) == 0 {
		if cancel, ok := h.entityToCancel[entityID]; ok {
			cancel()
			delete(h.entityToCancel, entityID)
		}
		delete(h.entityToClients, entityID)
	}
}

// deliver pushes best-effort: a client whose send buffer is full misses
// the message and recovers via full replay on reconnect.
func (h *Hub) deliver(d delivery) {
	for client := range h.entityToClients[d.entityID] {
		select {
		case client.Send <- d.message:
		default:
		}
	}
}
