package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/emezins/carevault/internal/client/api"
)

// Watch streams live vault activity until the user presses Enter. Own
// appends and forwarded shared events are decrypted as they arrive;
// anything this device holds no key for is reported as unreadable.
func (a *App) Watch(ctx context.Context) error {
	endpoint := strings.Replace(a.config.ServerEndpointAddr, "http", "ws", 1) + "/ws"

	dialer := websocket.Dialer{
		Subprotocols: []string{"carevault-v1", a.api.Token()},
	}
	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		log.Printf("error: %v", err)
		return err
	}
	defer conn.Close()

	// Rebuild the keyring first so pushes for existing properties are
	// readable.
	if _, err := a.refreshState(ctx); err != nil {
		log.Printf("error: %v", err)
		return err
	}

	fmt.Println("Watching for live updates, press Enter to stop")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var push api.Push
			if err := json.Unmarshal(data, &push); err != nil {
				log.Printf("push decode: %v", err)
				continue
			}
			a.printPush(push)
		}
	}()

	stopped := make(chan struct{})
	go func() {
		_, _ = a.reader.ReadString('\n')
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-done:
	case <-ctx.Done():
	}
	conn.Close()
	<-done
	return nil
}

func (a *App) printPush(push api.Push) {
	switch push.Type {
	case "shared_event":
		ev, err := a.session.OpenSharedEvent(push.SourceEntityID, push.PropertyName, push.Event.Payload)
		if err != nil {
			fmt.Printf("[%s] %s changed (not readable here)\n", push.SourceEntityID, push.PropertyName)
			return
		}
		fmt.Printf("[%s] %s: %s = %s\n", push.SourceEntityID, ev.Type, ev.Key, ev.Value)
	default:
		ev, ok := a.session.OpenOwnEvent(push.Event.Payload)
		if !ok {
			fmt.Println("[own] entry not readable on this device")
			return
		}
		fmt.Printf("[own] %s: %s = %s\n", ev.Type, ev.Key, ev.Value)
	}
}
