package pubsub

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisBroker bridges fan-out over Redis pub/sub so several server
// instances feed the same rooms.
type RedisBroker struct {
	client redis.UniversalClient
}

func NewRedisBroker(ctx context.Context, addr string) (*RedisBroker, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisBroker{client: client}, nil
}

func (b *RedisBroker) Publish(ctx context.Context, topic string, message []byte) error {
	return b.client.Publish(ctx, topic, message).Err()
}

func (b *RedisBroker) Subscribe(ctx context.Context, topic string, handler func(message []byte)) error {
	sub := b.client.Subscribe(ctx, topic)
	// Make sure the subscription is established before returning.
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return err
	}

	ch := sub.Channel()

	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			}
		}
	}()

	return nil
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}
