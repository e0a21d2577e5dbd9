package events

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultStream is the Redis stream events are journaled to.
const DefaultStream = "events:storefront"

// RedisJournal appends events to a capped Redis stream.
type RedisJournal struct {
	Client *redis.Client
	Stream string
	// MaxLen caps the stream approximately; zero keeps everything.
	MaxLen int64
}

// Append adds the event as one stream entry.
func (j RedisJournal) Append(ctx context.Context, ev Event) error {
	stream := j.Stream
	if stream == "" {
		stream = DefaultStream
	}
	args := &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{
			"id":           ev.ID.String(),
			"topic":        ev.Topic,
			"aggregate_id": ev.AggregateID.String(),
			"payload":      string(ev.Payload),
			"occurred_at":  ev.OccurredAt.UnixMilli(),
		},
	}
	if j.MaxLen > 0 {
		args.MaxLen = j.MaxLen
		args.Approx = true
	}
	if err := j.Client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", stream, err)
	}
	return nil
}
