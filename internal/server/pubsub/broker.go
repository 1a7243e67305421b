// Package pubsub abstracts the fan-out transport between the vault
// services and the websocket hub. The in-process broker is the default;
// the Redis broker lets multiple server instances share fan-out.
package pubsub

import "context"

// Broker delivers messages published on a topic to every live
// subscriber of that topic. Delivery is best-effort: subscribers that
// appear after a publish, or that cannot keep up, simply miss messages
// and recover via a full-log replay.
type Broker interface {
	Publish(ctx context.Context, topic string, message []byte) error

	// Subscribe registers handler for topic until ctx is canceled.
	// The handler must not block: it is invoked from the broker's
	// delivery goroutine.
	Subscribe(ctx context.Context, topic string, handler func(message []byte)) error
}
