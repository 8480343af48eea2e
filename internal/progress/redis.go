package progress

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"bookture/internal/logging"
)

// RedisOptions configures the Redis pub/sub backend.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	Buffer   int
}

// Redis broadcasts events over Redis PUBLISH/SUBSCRIBE on <prefix>job:<id>.
type Redis struct {
	client *redis.Client
	prefix string
	buffer int
	logger *slog.Logger
}

// NewRedis connects and verifies the server with PING.
func NewRedis(ctx context.Context, opts RedisOptions, logger *slog.Logger) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return newRedisWithClient(client, opts, logger), nil
}

func newRedisWithClient(client *redis.Client, opts RedisOptions, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = logging.NewNop()
	}
	prefix := opts.Prefix
	if strings.TrimSpace(prefix) == "" {
		prefix = "bookture:"
	}
	return &Redis{
		client: client,
		prefix: prefix,
		buffer: opts.Buffer,
		logger: logger,
	}
}

func (r *Redis) channel(jobID string) string {
	return r.prefix + "job:" + jobID
}

// Publish sends evt to the job's channel.
func (r *Redis) Publish(ctx context.Context, evt Event) error {
	data, err := encodeEvent(evt)
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel(evt.JobID), data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe joins the job's channel. The subscription is confirmed before
// returning so no event published afterwards is missed.
func (r *Redis) Subscribe(ctx context.Context, jobID string) (*Subscription, error) {
	pubsub := r.client.Subscribe(ctx, r.channel(jobID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	sub := newSubscription(jobID, r.buffer, r.logger)
	sub.stop = func() { _ = pubsub.Close() }
	messages := pubsub.Channel()
	go func() {
		for msg := range messages {
			evt, err := decodeEvent([]byte(msg.Payload))
			if err != nil {
				r.logger.Debug("discarding malformed progress event",
					logging.String(logging.FieldJobID, jobID),
					logging.Error(err),
				)
				continue
			}
			sub.deliver(evt)
		}
	}()
	return sub, nil
}

// Close releases the client connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}
