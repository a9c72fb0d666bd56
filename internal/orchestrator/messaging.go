package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultEventStream is the Redis stream task events are appended to.
const DefaultEventStream = "droid:tasks"

// MessageBus publishes task lifecycle events to a Redis Stream.
type MessageBus struct {
	rdb    *redis.Client
	stream string
	maxLen int64
	logger *zap.Logger
}

// NewMessageBus connects to Redis and verifies the connection. An empty
// stream selects DefaultEventStream.
func NewMessageBus(redisURL, stream string, logger *zap.Logger) (*MessageBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewMessageBusFromClient(rdb, stream, logger), nil
}

// NewMessageBusFromClient wraps an existing client.
func NewMessageBusFromClient(rdb *redis.Client, stream string, logger *zap.Logger) *MessageBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	if stream == "" {
		stream = DefaultEventStream
	}
	return &MessageBus{
		rdb:    rdb,
		stream: stream,
		maxLen: 10000,
		logger: logger.With(zap.String("component", "message_bus")),
	}
}

// Stream returns the stream name events are written to.
func (mb *MessageBus) Stream() string { return mb.stream }

// Publish appends a task event to the stream.
func (mb *MessageBus) Publish(ctx context.Context, ev *TaskEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	_, err = mb.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: mb.stream,
		MaxLen: mb.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", mb.stream, err)
	}

	mb.logger.Debug("published task event",
		zap.String("task", ev.Name),
		zap.String("id", ev.TaskID),
		zap.String("status", string(ev.Status)))
	return nil
}

// Subscribe reads events after fromID ("$" for only new ones). The channel is
// closed when ctx is cancelled.
func (mb *MessageBus) Subscribe(ctx context.Context, fromID string) <-chan *TaskEvent {
	ch := make(chan *TaskEvent, 16)
	if fromID == "" {
		fromID = "$"
	}

	go func() {
		defer close(ch)
		lastID := fromID

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			results, err := mb.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{mb.stream, lastID},
				Count:   10,
				Block:   2 * time.Second,
			}).Result()
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				if !errors.Is(err, redis.Nil) {
					mb.logger.Warn("read task events failed", zap.Error(err))
					select {
					case <-ctx.Done():
						return
					case <-time.After(time.Second):
					}
				}
				continue
			}

			for _, r := range results {
				for _, msg := range r.Messages {
					lastID = msg.ID
					data, ok := msg.Values["data"].(string)
					if !ok {
						continue
					}
					var ev TaskEvent
					if json.Unmarshal([]byte(data), &ev) != nil {
						continue
					}
					select {
					case ch <- &ev:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return ch
}

// Close shuts down the Redis connection.
func (mb *MessageBus) Close() error {
	return mb.rdb.Close()
}
