// Package streambus wraps Redis Streams consumer-group semantics:
// publish, idempotent group/stream creation, blocking batch read, and
// acknowledge. Grounded on
// original_source/shared/src/gym_shared/events/publisher.py, with the
// client lifecycle shaped after the teacher's pkg/miface.Sender
// interface (MiFaceDEV/miface).
package streambus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Stream and consumer group names, named directly by spec.md §6.
const (
	GroupExercise = "exercise-workers"

	StreamRepCounted = "rep_counted"
	StreamFormAlerts = "form_alerts"
)

// PerceptionsStream returns the input stream name for a camera.
func PerceptionsStream(cameraID string) string {
	return fmt.Sprintf("perceptions:%s", cameraID)
}

// defaultMaxLen bounds output stream growth; see spec.md §5 back-pressure.
const defaultMaxLen = 1000

// Message is one entry read from a consumer group, with its Redis
// message ID retained for Ack.
type Message struct {
	ID   string
	Data []byte
}

// Bus publishes and consumes JSON-wrapped events over Redis Streams.
// Every message carries its payload under a single string field "data",
// matching the wire shape in spec.md §6.
type Bus struct {
	client *redis.Client
}

// New creates a Bus from a redis:// connection URL.
func New(url string) (*Bus, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	return &Bus{client: redis.NewClient(opts)}, nil
}

// Close releases the underlying connection pool.
func (b *Bus) Close() error {
	return b.client.Close()
}

// Publish JSON-encodes event and XADDs it to stream under the "data"
// field, trimming the stream to approximately maxlen entries. maxlen <=
// 0 uses defaultMaxLen.
func (b *Bus) Publish(ctx context.Context, stream string, event any, maxlen int64) (string, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("encoding event: %w", err)
	}
	if maxlen <= 0 {
		maxlen = defaultMaxLen
	}
	id, err := b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: maxlen,
		Approx: true,
		Values: map[string]any{"data": payload},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("publishing to %s: %w", stream, err)
	}
	return id, nil
}

// EnsureConsumerGroup creates group on stream (and the stream itself)
// if it does not already exist. A "group already exists" response from
// Redis is not an error.
func (b *Bus) EnsureConsumerGroup(ctx context.Context, stream, group string) error {
	err := b.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("creating consumer group %s on %s: %w", group, stream, err)
	}
	return nil
}

// ReadGroup reads up to count new (never delivered) messages for
// stream/group/consumer, blocking for blockMs milliseconds if none are
// immediately available.
func (b *Bus) ReadGroup(ctx context.Context, stream, group, consumer string, count, blockMs int64) ([]Message, error) {
	res, err := b.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    count,
		Block:    msToDuration(blockMs),
	}).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("reading group %s on %s: %w", group, stream, err)
	}

	var out []Message
	for _, streamRes := range res {
		for _, entry := range streamRes.Messages {
			raw, ok := entry.Values["data"]
			if !ok {
				log.Warn().Str("stream", stream).Str("msg_id", entry.ID).Msg("perception_message_missing_data_field")
				continue
			}
			s, ok := raw.(string)
			if !ok {
				continue
			}
			out = append(out, Message{ID: entry.ID, Data: []byte(s)})
		}
	}
	return out, nil
}

// Ack acknowledges msgIDs on stream/group.
func (b *Bus) Ack(ctx context.Context, stream, group string, msgIDs ...string) error {
	if len(msgIDs) == 0 {
		return nil
	}
	if err := b.client.XAck(ctx, stream, group, msgIDs...).Err(); err != nil {
		return fmt.Errorf("acking %d messages on %s: %w", len(msgIDs), stream, err)
	}
	return nil
}

func msToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
