package queue

import (
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Options selects and configures a queue backend.
type Options struct {
	Backend  string
	Subject  string
	RedisKey string
}

// NewProducer builds the producer named by opts.Backend.
func NewProducer(opts Options, conn *nats.Conn, client *redis.Client, logger zerolog.Logger) (Producer, error) {
	switch strings.ToLower(opts.Backend) {
	case BackendNATS:
		return NewNATSProducer(conn, opts.Subject)
	case BackendRedis:
		return NewRedisProducer(client, opts.RedisKey)
	case BackendLog, "":
		return NewLogProducer(logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}

// NewConsumer builds the consumer named by opts.Backend. The log backend has
// no consumer.
func NewConsumer(opts Options, conn *nats.Conn, client *redis.Client, logger zerolog.Logger) (Consumer, error) {
	switch strings.ToLower(opts.Backend) {
	case BackendNATS:
		if conn == nil {
			return nil, fmt.Errorf("nats backend requires a connection")
		}
		return NewNATSConsumer(conn, opts.Subject, logger), nil
	case BackendRedis:
		if client == nil {
			return nil, fmt.Errorf("redis backend requires a client")
		}
		return NewRedisConsumer(client, opts.RedisKey, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}
