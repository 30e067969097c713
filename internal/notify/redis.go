package notify

import (
	"context"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"

	"psurops/internal/config"
)

// RedisStreamObserver appends each event to a Redis stream so other
// processes can tail changes with XREAD.
type RedisStreamObserver struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewRedisClient builds a client from configuration.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// NewRedisStreamObserver publishes to stream, trimming it to roughly maxLen
// entries when maxLen is positive.
func NewRedisStreamObserver(client *redis.Client, stream string, maxLen int64) *RedisStreamObserver {
	return &RedisStreamObserver{client: client, stream: stream, maxLen: maxLen}
}

// Ping checks the connection.
func (o *RedisStreamObserver) Ping(ctx context.Context) error {
	return o.client.Ping(ctx).Err()
}

// Deliver implements Observer.
func (o *RedisStreamObserver) Deliver(ctx context.Context, e Event) error {
	payload, err := e.JSON()
	if err != nil {
		return err
	}
	args := &redis.XAddArgs{
		Stream: o.stream,
		Values: map[string]interface{}{
			"id":         e.ID,
			"seq":        strconv.FormatUint(e.Seq, 10),
			"event_kind": string(e.Kind),
			"data":       string(payload),
			"timestamp":  strconv.FormatInt(e.Timestamp.Unix(), 10),
		},
	}
	if o.maxLen > 0 {
		args.MaxLen = o.maxLen
		args.Approx = true
	}
	if err := o.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", o.stream, err)
	}
	return nil
}

// Close closes the client.
func (o *RedisStreamObserver) Close() error {
	return o.client.Close()
}
