package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Redis fans events out over a Redis pub/sub channel.
type Redis struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedis(client *redis.Client, logger *slog.Logger) *Redis {
	return &Redis{client: client, logger: logger}
}

func (b *Redis) Publish(ctx context.Context, msg Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal broadcast message: %w", err)
	}
	if err := b.client.Publish(ctx, Channel, raw).Err(); err != nil {
		return fmt.Errorf("publish broadcast message: %w", err)
	}
	return nil
}

// Subscribe decodes messages from the shared channel until the context is
// cancelled. Undecodable payloads are logged and skipped.
func (b *Redis) Subscribe(ctx context.Context) (<-chan Message, error) {
	sub := b.client.Subscribe(ctx, Channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", Channel, err)
	}

	out := make(chan Message, 64)
	go func() {
		defer close(out)
		defer sub.Close()
		in := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-in:
				if !ok {
					return
				}
				var msg Message
				if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
					b.logger.Error("decode broadcast message", "error", err)
					continue
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
