package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// PollTimeout bounds each BLPOP so cancellation is noticed promptly.
const PollTimeout = time.Second

type redisProducer struct {
	client *redis.Client
	key    string
}

// NewRedisProducer pushes grading messages onto the list at key.
func NewRedisProducer(client *redis.Client, key string) (Producer, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if key == "" {
		return nil, errors.New("redis queue key is required")
	}
	return &redisProducer{client: client, key: key}, nil
}

func (p *redisProducer) Backend() string {
	return BackendRedis
}

func (p *redisProducer) Enqueue(ctx context.Context, message Message) error {
	payload, err := message.Encode()
	if err != nil {
		return err
	}
	if err := p.client.RPush(ctx, p.key, payload).Err(); err != nil {
		return fmt.Errorf("push grading message: %w", err)
	}
	return nil
}

type redisConsumer struct {
	client *redis.Client
	key    string
	logger zerolog.Logger
}

// NewRedisConsumer drains the list at key. Messages that exhaust their
// attempts are moved to DeadLetterKey(key).
func NewRedisConsumer(client *redis.Client, key string, logger zerolog.Logger) Consumer {
	return &redisConsumer{
		client: client,
		key:    key,
		logger: logger.With().Str("component", "redis_grading_consumer").Logger(),
	}
}

// DeadLetterKey names the list holding messages that could not be processed.
func DeadLetterKey(key string) string {
	return key + ":dead"
}

func (c *redisConsumer) Consume(ctx context.Context, handler Handler) error {
	if c.client == nil {
		return errors.New("redis client is required")
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		item, err := c.client.BLPop(ctx, PollTimeout, c.key).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				c.logger.Error().Err(err).Msg("BLPOP failed")
				time.Sleep(PollTimeout)
			}
			continue
		}
		if len(item) < 2 {
			continue
		}

		message, err := Decode([]byte(item[1]))
		if err != nil {
			c.logger.Warn().Err(err).Msg("dropping invalid grading message")
			continue
		}
		message.Attempts++

		if err := handler(ctx, message); err != nil {
			c.retry(ctx, message, err)
		}
	}
}

func (c *redisConsumer) retry(ctx context.Context, message Message, cause error) {
	logger := c.logger.With().Uint("grading_job_id", message.GradingJobID).Int("attempts", message.Attempts).Logger()

	payload, err := message.Encode()
	if err != nil {
		logger.Error().Err(err).Msg("failed to encode grading message for retry")
		return
	}

	// Use a fresh context so a shutdown does not lose the message.
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	target := c.key
	if message.Attempts >= MaxAttempts {
		target = DeadLetterKey(c.key)
	}
	if err := c.client.RPush(pushCtx, target, payload).Err(); err != nil {
		logger.Error().Err(err).Msg("failed to requeue grading message")
		return
	}

	if target != c.key {
		logger.Error().Err(cause).Msg("grading message moved to dead letter list")
		return
	}
	logger.Warn().Err(cause).Msg("grading message requeued")
}
