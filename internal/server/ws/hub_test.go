package ws

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/emezins/carevault/internal/logging"
	"github.com/emezins/carevault/internal/server/pubsub"
	"github.com/emezins/carevault/internal/server/services"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func startHub(t *testing.T) (*Hub, pubsub.Broker) {
	t.Helper()
	broker := pubsub.NewInProcessBroker()
	hub := NewHub(broker, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub, broker
}

func newTestClient(entityID string) *Client {
	return &Client{entityID: entityID, Send: make(chan []byte, 128)}
}

// awaitPush keeps publishing until the client sees a message, since the
// room subscription is established asynchronously after OpenCh.
func awaitPush(t *testing.T, broker pubsub.Broker, client *Client, topic string, message []byte) []byte {
	t.Helper()
	deadline := time.After(2 * time.Second)
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case got, ok := <-client.Send:
			if !ok {
				t.Fatal("send channel closed while waiting for a push")
			}
			return got
		case <-tick.C:
			if err := broker.Publish(context.Background(), topic, message); err != nil {
				t.Fatalf("Publish error: %v", err)
			}
		case <-deadline:
			t.Fatal("no push received")
		}
	}
}

func TestHubDeliversToRoom(t *testing.T) {
	hub, broker := startHub(t)

	client := newTestClient("ent-1")
	hub.OpenCh <- client

	got := awaitPush(t, broker, client, services.EntityTopic("ent-1"), []byte(`{"type":"event"}`))
	if string(got) != `{"type":"event"}` {
		t.Errorf("push = %s", got)
	}
}

func TestHubRoomIsolation(t *testing.T) {
	hub, broker := startHub(t)

	one := newTestClient("ent-1")
	other := newTestClient("ent-2")
	hub.OpenCh <- one
	hub.OpenCh <- other

	awaitPush(t, broker, one, services.EntityTopic("ent-1"), []byte("a"))

	select {
	case got := <-other.Send:
		t.Errorf("cross-room push: %s", got)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHubClosesSendOnLeave(t *testing.T) {
	hub, broker := startHub(t)

	client := newTestClient("ent-1")
	hub.OpenCh <- client
	awaitPush(t, broker, client, services.EntityTopic("ent-1"), []byte("a"))

	hub.CloseCh <- client

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-client.Send:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("send channel not closed after leave")
		}
	}
}

func TestHubConnectionLimit(t *testing.T) {
	hub, broker := startHub(t)

	for i := 0; i < maxConnectionsPerEntity; i++ {
		c := newTestClient("ent-1")
		hub.OpenCh <- c
		awaitPush(t, broker, c, services.EntityTopic("ent-1"), []byte("a"))
	}

	extra := newTestClient("ent-1")
	hub.OpenCh <- extra

	select {
	case _, ok := <-extra.Send:
		if ok {
			// Drain pushes caused by earlier awaitPush publishes until the
			// channel closes or times out.
			deadline := time.After(2 * time.Second)
			for {
				select {
				case _, ok := <-extra.Send:
					if !ok {
						return
					}
				case <-deadline:
					t.Fatal("send channel not closed for over-limit client")
				}
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("send channel not closed for over-limit client")
	}
}

func TestRunShutdown_ClosesEveryPendingClient(t *testing.T) {
	broker := pubsub.NewInProcessBroker()
	hub := NewHub(broker, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Connects and disconnects still queued when the hub stops. Whether
	// the loop registers them first or drains them on exit, every Send
	// channel must end up closed so the write pumps terminate.
	pending := []*Client{
		newTestClient("ent-1"),
		newTestClient("ent-1"),
		newTestClient("ent-2"),
	}
	for _, client := range pending {
		hub.OpenCh <- client
	}
	hub.CloseCh <- newTestClient("ent-3")

	hub.Run(ctx)

	for i, client := range pending {
		select {
		case _, ok := <-client.Send:
			if ok {
				t.Fatalf("client %d received a message instead of close", i)
			}
		default:
			t.Fatalf("client %d send channel left open after shutdown", i)
		}
	}
}
