package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const channelPrefix = "musclecat:changes:"

type redisNotifier struct {
	client *redis.Client
	log    *zap.Logger
}

// NewRedisNotifier shares change signals between API instances over Redis Pub/Sub.
func NewRedisNotifier(client *redis.Client, logger *zap.Logger) Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &redisNotifier{client: client, log: logger}
}

func (n *redisNotifier) Publish(ctx context.Context, topic string) error {
	if err := n.client.Publish(ctx, channelPrefix+topic, "1").Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", topic, err)
	}
	return nil
}

func (n *redisNotifier) Subscribe(ctx context.Context, topic string) (<-chan struct{}, func(), error) {
	ps := n.client.Subscribe(ctx, channelPrefix+topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("redis subscribe %s: %w", topic, err)
	}

	out := make(chan struct{}, 1)
	var once sync.Once
	cancel := func() {
		once.Do(func() { _ = ps.Close() })
	}
	go func() {
		defer close(out)
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				cancel()
				return
			case _, ok := <-msgs:
				if !ok {
					return
				}
				signal(out)
			}
		}
	}()
	n.log.Debug("redis subscription opened", zap.String("topic", topic))
	return out, cancel, nil
}

func (n *redisNotifier) Close() error {
	return nil
}
