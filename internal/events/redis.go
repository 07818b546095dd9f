package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultStream is the Redis stream events are appended to when none is configured.
const DefaultStream = "feed-registry:events"

// streamAdder is the subset of the Redis client used by RedisSink.
type streamAdder interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisSink appends events to a Redis stream so indexers can tail them.
type RedisSink struct {
	client streamAdder
	stream string
	maxLen int64
}

var _ Sink = (*RedisSink)(nil)

// NewRedisSink creates a sink writing to stream. A maxLen above zero caps the
// stream length approximately.
func NewRedisSink(client redis.UniversalClient, stream string, maxLen int64) *RedisSink {
	if stream == "" {
		stream = DefaultStream
	}
	return &RedisSink{client: client, stream: stream, maxLen: maxLen}
}

// Emit appends e to the stream as a JSON payload.
func (s *RedisSink) Emit(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]any{
			"id":    e.ID.String(),
			"type":  string(e.Type),
			"event": payload,
		},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to append event to stream %s: %w", s.stream, err)
	}
	return nil
}
