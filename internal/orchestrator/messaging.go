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

// EventType classifies progress events.
type EventType string

const (
	EventRunStarted    EventType = "run_started"
	EventStageStarted  EventType = "stage_started"
	EventStageSkipped  EventType = "stage_skipped"
	EventStepCompleted EventType = "step_completed"
	EventRunCompleted  EventType = "run_completed"
	EventRunFailed     EventType = "run_failed"
)

// Terminal reports whether the event ends a run's stream.
func (t EventType) Terminal() bool {
	return t == EventRunCompleted || t == EventRunFailed
}

// Event is one progress notification for a run.
type Event struct {
	ID        string    `json:"id,omitempty"`
	RunID     string    `json:"run_id"`
	Type      EventType `json:"type"`
	Stage     string    `json:"stage,omitempty"`
	WorkerID  string    `json:"worker_id,omitempty"`
	Fallback  bool      `json:"fallback,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ProgressBus publishes run progress to Redis Streams, one stream per run.
type ProgressBus struct {
	rdb    *redis.Client
	maxLen int64
	ttl    time.Duration
	logger *zap.Logger
}

// NewProgressBus creates a Redis-backed progress bus.
func NewProgressBus(ctx context.Context, redisURL string, logger *zap.Logger) (*ProgressBus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &ProgressBus{rdb: rdb, maxLen: 1000, ttl: 24 * time.Hour, logger: logger}, nil
}

const streamPrefix = "studio:run:"

// Publish appends an event to its run's stream.
func (pb *ProgressBus) Publish(ctx context.Context, ev *Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	stream := streamPrefix + ev.RunID
	_, err = pb.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: pb.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data": string(data),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", stream, err)
	}
	if ev.Type.Terminal() {
		pb.rdb.Expire(ctx, stream, pb.ttl)
	}

	pb.logger.Debug("published event",
		zap.String("run", ev.RunID),
		zap.String("type", string(ev.Type)),
		zap.String("stage", ev.Stage))
	return nil
}

// Subscribe replays a run's stream from the beginning and follows it until
// a terminal event or ctx is done. The channel is closed on return.
func (pb *ProgressBus) Subscribe(ctx context.Context, runID string) <-chan *Event {
	ch := make(chan *Event, 16)
	stream := streamPrefix + runID

	go func() {
		defer close(ch)
		lastID := "0"

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			results, err := pb.rdb.XRead(ctx, &redis.XReadArgs{
				Streams: []string{stream, lastID},
				Count:   10,
				Block:   time.Second * 2,
			}).Result()

			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return
				}
				if errors.Is(err, redis.Nil) {
					continue
				}
				pb.logger.Debug("xread failed", zap.String("run", runID), zap.Error(err))
				select {
				case <-ctx.Done():
					return
				case <-time.After(500 * time.Millisecond):
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
					var ev Event
					if json.Unmarshal([]byte(data), &ev) != nil {
						continue
					}
					ev.ID = msg.ID
					select {
					case ch <- &ev:
					case <-ctx.Done():
						return
					}
					if ev.Type.Terminal() {
						return
					}
				}
			}
		}
	}()

	return ch
}

// Close shuts down the Redis connection.
func (pb *ProgressBus) Close() error {
	return pb.rdb.Close()
}
