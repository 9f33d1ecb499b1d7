package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Notifier fans accepted settings writes out to every running instance
// over a Redis channel. The payload is always the full row; receivers
// overwrite their mirror wholesale.
type Notifier struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

func NewNotifier(client *redis.Client, channel string, logger *slog.Logger) *Notifier {
	return &Notifier{client: client, channel: channel, logger: logger}
}

// Publish broadcasts the accepted row.
func (n *Notifier) Publish(ctx context.Context, row *Settings) error {
	payload, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encode settings notification: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish settings notification: %w", err)
	}
	return nil
}

// Listen applies pushed rows to the mirror until the context ends.
// Undecodable payloads are logged and skipped; the next push repairs the
// mirror since every payload carries the whole row.
func (n *Notifier) Listen(ctx context.Context, mirror *Mirror) {
	sub := n.client.Subscribe(ctx, n.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var row Settings
			if err := json.Unmarshal([]byte(msg.Payload), &row); err != nil {
				n.logger.ErrorContext(ctx, "undecodable settings notification",
					"error", err, "channel", n.channel)
				continue
			}
			mirror.Apply(&row)
		}
	}
}
