package realtime

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisTransport delivers changes over Redis pub/sub.
type RedisTransport struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedis builds a pub/sub transport on an existing client.
func NewRedis(client *redis.Client, channel string, logger *zap.Logger) *RedisTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisTransport{client: client, channel: channel, logger: logger}
}

// Name implements Transport.
func (t *RedisTransport) Name() string { return "redis" }

// Subscribe joins the channel and waits for the subscription confirmation.
func (t *RedisTransport) Subscribe(ctx context.Context, handler Handler) (Subscription, error) {
	pubsub := t.client.Subscribe(ctx, t.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", t.channel, err)
	}

	messages := pubsub.Channel()
	sub := newSubscription(pubsub.Close)
	sub.run(func(done <-chan struct{}) {
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				dispatch(ctx, t.logger, handler, []byte(msg.Payload))
			}
		}
	})
	return sub, nil
}

// Publish broadcasts a change to every subscriber.
func (t *RedisTransport) Publish(ctx context.Context, change Change) error {
	payload, err := Encode(change)
	if err != nil {
		return err
	}
	if err := t.client.Publish(ctx, t.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", t.channel, err)
	}
	return nil
}

// Close implements Transport. The client is owned by the caller.
func (t *RedisTransport) Close() error { return nil }
