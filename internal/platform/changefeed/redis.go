package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultChannelPrefix namespaces the per-table pub/sub channels.
const DefaultChannelPrefix = "healthplix:changes:"

// RedisBus shares changes between server instances. Publish sends each
// change to the channel "<prefix><table>"; Relay feeds every such channel
// into a local publisher, normally the WebSocket hub.
type RedisBus struct {
	client *redis.Client
	prefix string
	logger zerolog.Logger
}

func NewRedisBus(client *redis.Client, prefix string, logger zerolog.Logger) *RedisBus {
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &RedisBus{client: client, prefix: prefix, logger: logger}
}

// NewRedisClient parses a redis:// URL and checks the server is reachable.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (b *RedisBus) Channel(table string) string {
	return b.prefix + table
}

func (b *RedisBus) Publish(ctx context.Context, change Change) error {
	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("encode change: %w", err)
	}
	if err := b.client.Publish(ctx, b.Channel(change.Table), payload).Err(); err != nil {
		return fmt.Errorf("publish %s change to redis: %w", change.Table, err)
	}
	return nil
}

// Relay subscribes to every table channel and hands each change to sink
// until ctx is cancelled. ready, if not nil, is closed once the
// subscription is active.
func (b *RedisBus) Relay(ctx context.Context, sink Publisher, ready chan<- struct{}) error {
	pubsub := b.client.PSubscribe(ctx, b.prefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s*: %w", b.prefix, err)
	}
	if ready != nil {
		close(ready)
	}
	b.logger.Info().Str("pattern", b.prefix+"*").Msg("relaying changes from redis")

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var change Change
			if err := json.Unmarshal([]byte(msg.Payload), &change); err != nil {
				b.logger.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping malformed change")
				continue
			}
			if change.Table == "" {
				change.Table = strings.TrimPrefix(msg.Channel, b.prefix)
			}
			if err := sink.Publish(ctx, change); err != nil {
				b.logger.Error().Err(err).Str("table", change.Table).Msg("relay change")
			}
		}
	}
}
