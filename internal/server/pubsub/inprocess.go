package pubsub

import (
	"context"
	"sync"
)

// InProcessBroker is the single-instance Broker: a topic map guarded by a
// mutex, with subscriptions removed when their context ends.
type InProcessBroker struct {
	mu     sync.RWMutex
	nextID int
	topics map[string]map[int]func(message []byte)
}

func NewInProcessBroker() *InProcessBroker {
	return &InProcessBroker{topics: make(map[string]map[int]func(message []byte))}
}

func (b *InProcessBroker) Publish(ctx context.Context, topic string, message []byte) error {
	b.mu.RLock()
	handlers := make([]func([]byte), 0, len(b.topics[topic]))
	for _, h := range b.topics[topic] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(message)
	}
	return nil
}

func (b *InProcessBroker) Subscribe(ctx context.Context, topic string, handler func(message []byte)) error {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[int]func(message []byte))
	}
	b.topics[topic][id] = handler
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.topics[topic], id)
		if len(b.topics[topic]) == 0 {
			delete(b.topics, topic)
		}
		b.mu.Unlock()
	}()

	return nil
}
