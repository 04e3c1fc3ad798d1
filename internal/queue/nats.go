package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// QueueGroup is the NATS queue group shared by grader processes.
const QueueGroup = "gema-graders"

type natsProducer struct {
	conn    *nats.Conn
	subject string
}

// NewNATSProducer publishes grading messages on subject.
func NewNATSProducer(conn *nats.Conn, subject string) (Producer, error) {
	if conn == nil {
		return nil, errors.New("nats connection is required")
	}
	if subject == "" {
		return nil, errors.New("nats subject is required")
	}
	return &natsProducer{conn: conn, subject: subject}, nil
}

func (p *natsProducer) Backend() string {
	return BackendNATS
}

func (p *natsProducer) Enqueue(ctx context.Context, message Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := message.Encode()
	if err != nil {
		return err
	}
	if err := p.conn.Publish(p.subject, payload); err != nil {
		return fmt.Errorf("publish grading message: %w", err)
	}
	return nil
}

type natsConsumer struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

// NewNATSConsumer subscribes to subject as a member of QueueGroup.
func NewNATSConsumer(conn *nats.Conn, subject string, logger zerolog.Logger) Consumer {
	return &natsConsumer{
		conn:    conn,
		subject: subject,
		logger:  logger.With().Str("component", "nats_grading_consumer").Logger(),
	}
}

func (c *natsConsumer) Consume(ctx context.Context, handler Handler) error {
	if c.conn == nil {
		return errors.New("nats connection is required")
	}

	sub, err := c.conn.QueueSubscribe(c.subject, QueueGroup, func(msg *nats.Msg) {
		message, err := Decode(msg.Data)
		if err != nil {
			c.logger.Warn().Err(err).Msg("dropping invalid grading message")
			return
		}
		message.Attempts++
		if err := handler(ctx, message); err != nil {
			c.retry(message, err)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe to %s: %w", c.subject, err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		c.logger.Warn().Err(err).Msg("failed to drain grading subscription")
	}
	return nil
}

// retry republishes a failed message. Core NATS has no redelivery, so the
// attempt counter travels in the payload.
func (c *natsConsumer) retry(message Message, cause error) {
	logger := c.logger.With().Uint("grading_job_id", message.GradingJobID).Int("attempts", message.Attempts).Logger()
	if message.Attempts >= MaxAttempts {
		logger.Error().Err(cause).Msg("grading message exhausted retries")
		return
	}
	payload, err := message.Encode()
	if err != nil {
		logger.Error().Err(err).Msg("failed to encode grading message for retry")
		return
	}
	if err := c.conn.Publish(c.subject, payload); err != nil {
		logger.Error().Err(err).Msg("failed to republish grading message")
		return
	}
	logger.Warn().Err(cause).Msg("grading message requeued")
}
