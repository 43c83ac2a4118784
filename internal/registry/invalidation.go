package registry

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/Priya8975/hookrelay/internal/store"
)

// RedisNotifier publishes change notices and invalidates the local
// registry when another process publishes one.
type RedisNotifier struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisNotifier(client *redis.Client, logger *slog.Logger) *RedisNotifier {
	return &RedisNotifier{client: client, logger: logger}
}

func (n *RedisNotifier) NotifyChanged(ctx context.Context) error {
	return n.client.Publish(ctx, store.RedisInvalidationChannel, "changed").Err()
}

// Listen invalidates reg on every change notice until ctx is cancelled.
// The ready channel, when non-nil, is closed once the subscription is
// active.
func (n *RedisNotifier) Listen(ctx context.Context, reg *Registry, ready chan<- struct{}) error {
	pubsub := n.client.Subscribe(ctx, store.RedisInvalidationChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	if ready != nil {
		close(ready)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-ch:
			if !ok {
				return nil
			}
			n.logger.Debug("subscription change notice received")
			reg.Invalidate()
		}
	}
}
