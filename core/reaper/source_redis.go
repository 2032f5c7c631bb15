package reaper

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/shrekd/shrekd/core/infra/logging"
	"github.com/shrekd/shrekd/core/infra/redisutil"
)

// RedisSource subscribes to the expired and del keyevent channels of one
// Redis database.
type RedisSource struct {
	pubsub *redis.PubSub
	events chan Event
	done   chan struct{}
	once   sync.Once
}

// NewRedisSource subscribes and waits for both subscriptions to be confirmed.
// With configure set it first asks the server to emit keyevents; a refusal is
// logged and the subscription proceeds, relying on server-side configuration.
func NewRedisSource(ctx context.Context, client redis.UniversalClient, db int, configure bool) (*RedisSource, error) {
	if configure {
		if err := redisutil.EnableKeyspaceEvents(ctx, client); err != nil {
			logging.Warn("reaper", "could not enable keyspace events; expecting server config", "error", err)
		}
	}
	channels := []string{
		redisutil.KeyeventChannel(db, redisutil.EventExpired),
		redisutil.KeyeventChannel(db, redisutil.EventDel),
	}
	pubsub := client.Subscribe(ctx, channels...)
	for confirmed := 0; confirmed < len(channels); {
		msg, err := pubsub.Receive(ctx)
		if err != nil {
			_ = pubsub.Close()
			return nil, fmt.Errorf("subscribe keyevents: %w", err)
		}
		if _, ok := msg.(*redis.Subscription); ok {
			confirmed++
		}
	}

	s := &RedisSource{pubsub: pubsub, events: make(chan Event, 64), done: make(chan struct{})}
	go s.forward(pubsub.Channel())
	logging.Info("reaper", "subscribed to keyevents", "channels", strings.Join(channels, ","))
	return s, nil
}

func (s *RedisSource) forward(ch <-chan *redis.Message) {
	defer close(s.events)
	for msg := range ch {
		select {
		case s.events <- Event{Kind: eventKind(msg.Channel), Key: msg.Payload}:
		case <-s.done:
			return
		}
	}
}

func (s *RedisSource) Events() <-chan Event { return s.events }

func (s *RedisSource) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}

// eventKind extracts "expired" from "__keyevent@0__:expired".
func eventKind(channel string) string {
	if i := strings.LastIndexByte(channel, ':'); i >= 0 {
		return channel[i+1:]
	}
	return channel
}
