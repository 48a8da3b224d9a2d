package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/raaihank/voice-sentinel/internal/pipeline"
)

// EventQueue is a Redis-list backed queue of upload events. Producers
// (bucket notifications, backfill tools) LPUSH events; the pipeline worker
// consumes them with a blocking pop.
type EventQueue struct {
	client *redis.Client
	key    string
	logger *zap.Logger
}

// NewEventQueue creates an event queue on an existing cache connection
// configuration.
func NewEventQueue(config *Config, logger *zap.Logger) (*EventQueue, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opts.PoolSize = config.MaxConnections

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Event queue initialized",
		zap.String("redis_url", maskRedisURL(config.RedisURL)),
		zap.String("queue_key", config.EventQueueKey))

	return &EventQueue{
		client: client,
		key:    config.EventQueueKey,
		logger: logger,
	}, nil
}

// Publish enqueues an upload event.
func (q *EventQueue) Publish(ctx context.Context, event pipeline.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue event: %w", err)
	}

	q.logger.Debug("Event published",
		zap.String("object_key", event.ObjectKey),
		zap.String("queue_key", q.key))
	return nil
}

// Next blocks until an event is available or the context is done.
func (q *EventQueue) Next(ctx context.Context) (pipeline.Event, error) {
	for {
		// A short block timeout keeps the loop responsive to ctx.
		res, err := q.client.BRPop(ctx, 2*time.Second, q.key).Result()
		if err == redis.Nil {
			select {
			case <-ctx.Done():
				return pipeline.Event{}, ctx.Err()
			default:
				continue
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return pipeline.Event{}, ctx.Err()
			}
			return pipeline.Event{}, fmt.Errorf("failed to pop event: %w", err)
		}
		if len(res) != 2 {
			continue
		}

		var event pipeline.Event
		if err := json.Unmarshal([]byte(res[1]), &event); err != nil {
			q.logger.Error("Dropping malformed event payload", zap.Error(err))
			continue
		}
		return event, nil
	}
}

// Depth returns the number of pending events.
func (q *EventQueue) Depth(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.key).Result()
}

// Close closes the Redis connection.
func (q *EventQueue) Close() error {
	if q.client != nil {
		return q.client.Close()
	}
	return nil
}

// Compile-time interface check.
var _ pipeline.EventSource = (*EventQueue)(nil)
