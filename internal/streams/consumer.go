package streams

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// CompletionConsumer consumes remote tracker completions from Redis Streams
type CompletionConsumer struct {
	rdb          *redis.Client
	groupName    string
	consumerName string
}

// NewCompletionConsumer creates a new CompletionConsumer instance
func NewCompletionConsumer(redisURL, consumerName string) (*CompletionConsumer, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	// Read timeout must exceed the XReadGroup Block duration (5s)
	// to avoid spurious i/o timeout errors on idle streams.
	opts.ReadTimeout = 10 * time.Second

	client := redis.NewClient(opts)

	// Start ID "0" means read from beginning if group is new
	err = client.XGroupCreateMkStream(context.Background(), StreamTrackerCompletions, GroupPlannerWorkers, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}
	// Ignore BUSYGROUP error - group already exists

	return &CompletionConsumer{
		rdb:          client,
		groupName:    GroupPlannerWorkers,
		consumerName: consumerName,
	}, nil
}

// decodeMessage extracts the completion carried by a stream message.
func decodeMessage(values map[string]interface{}) (TrackerCompletion, error) {
	var c TrackerCompletion
	payloadStr, ok := values["payload"].(string)
	if !ok {
		return c, errors.New("message has no payload")
	}
	if v, ok := values["schema_version"].(string); ok && v != SchemaVersionV1 {
		return c, fmt.Errorf("unsupported schema version %q", v)
	}
	if err := json.Unmarshal([]byte(payloadStr), &c); err != nil {
		return c, fmt.Errorf("failed to unmarshal completion: %w", err)
	}
	if c.UserID == 0 {
		return c, errors.New("completion has no user_id")
	}
	return c, nil
}

// Pending entries idle longer than ReclaimIdle are claimed back by this
// consumer every ReclaimInterval and handled again.
const (
	ReclaimIdle     = time.Minute
	ReclaimInterval = 30 * time.Second
)

// Consume runs a blocking loop feeding completions to handler. Messages the
// handler fails on stay pending and are retried by the reclaim pass.
func (c *CompletionConsumer) Consume(ctx context.Context, handler func(context.Context, TrackerCompletion) error) error {
	var lastReclaim time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if now := time.Now(); now.Sub(lastReclaim) >= ReclaimInterval {
			lastReclaim = now
			c.reclaim(ctx, handler)
		}

		// Read from stream with consumer group
		streams, err := c.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.groupName,
			Consumer: c.consumerName,
			Streams:  []string{StreamTrackerCompletions, ">"},
			Count:    10,
			Block:    5000, // 5 seconds
		}).Result()

		if err == redis.Nil {
			// No messages available, continue loop
			continue
		}

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// Blocking reads return a timeout when no messages arrive
			// within the Block duration. Keep polling.
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			slog.Error("Failed to read from stream", "error", err)
			continue
		}

		for _, stream := range streams {
			processMessages(ctx, stream.Messages, handler, c.ack)
		}
	}
}

// reclaim takes over pending messages left idle by failed handlers or dead
// consumers and processes them again.
func (c *CompletionConsumer) reclaim(ctx context.Context, handler func(context.Context, TrackerCompletion) error) {
	start := "0-0"
	for {
		messages, next, err := c.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   StreamTrackerCompletions,
			Group:    c.groupName,
			Consumer: c.consumerName,
			MinIdle:  ReclaimIdle,
			Start:    start,
			Count:    10,
		}).Result()
		if err != nil {
			if ctx.Err() == nil {
				slog.Error("Failed to reclaim pending messages", "error", err)
			}
			return
		}
		if len(messages) > 0 {
			slog.Info("Reclaimed pending tracker messages", "count", len(messages))
			processMessages(ctx, messages, handler, c.ack)
		}
		if next == "0-0" || next == "" {
			return
		}
		start = next
	}
}

// processMessages hands each message to handler. Undecodable messages and
// handled ones are acked; handler failures are left pending.
func processMessages(ctx context.Context, messages []redis.XMessage, handler func(context.Context, TrackerCompletion) error, ack func(context.Context, string)) {
	for _, message := range messages {
		completion, err := decodeMessage(message.Values)
		if err != nil {
			// Undecodable messages are acked so they do not block the group.
			slog.Error("Dropping invalid tracker message", "error", err, "message_id", message.ID)
			ack(ctx, message.ID)
			continue
		}

		if err := handler(ctx, completion); err != nil {
			slog.Error("Handler failed", "error", err, "external_id", completion.ExternalID, "message_id", message.ID)
			continue
		}

		ack(ctx, message.ID)
	}
}

func (c *CompletionConsumer) ack(ctx context.Context, id string) {
	if err := c.rdb.XAck(ctx, StreamTrackerCompletions, c.groupName, id).Err(); err != nil {
		slog.Error("Failed to ACK message", "error", err, "message_id", id)
	}
}

// Close closes the Redis client connection
func (c *CompletionConsumer) Close() error {
	return c.rdb.Close()
}

// StartCompletionConsumer starts the completion consumer in a background
// goroutine and returns a stop function
func StartCompletionConsumer(redisURL, consumerName string, applier Applier) (stop func(), err error) {
	consumer, err := NewCompletionConsumer(redisURL, consumerName)
	if err != nil {
		return nil, fmt.Errorf("failed to create completion consumer: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		if err := consumer.Consume(ctx, HandleTrackerCompletion(applier)); err != nil {
			if !errors.Is(err, context.Canceled) {
				slog.Error("Completion consumer stopped with error", "error", err)
			}
		}
	}()

	slog.Info("Tracker completion consumer started", "consumer", consumerName)

	return func() {
		cancel()
		consumer.Close()
	}, nil
}
