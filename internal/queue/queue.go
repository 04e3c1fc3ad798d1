package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/noah-isme/gema-variant-engine/internal/models"
)

const (
	// BackendNATS publishes to a NATS subject consumed by a queue group.
	BackendNATS = "nats"
	// BackendRedis pushes onto a Redis list drained with BLPOP.
	BackendRedis = "redis"
	// BackendLog only logs messages. Useful when no grader fleet is running.
	BackendLog = "log"

	// MaxAttempts bounds how many times a message is handed to a handler.
	MaxAttempts = 3
)

// ErrUnknownBackend is returned for an unsupported QUEUE_BACKEND value.
var ErrUnknownBackend = errors.New("unknown queue backend")

// Message is the request sent to external graders. It carries a snapshot of
// everything a grader needs so that it does not have to read the database.
type Message struct {
	GradingJobID uint              `json:"grading_job_id"`
	QuestionType string            `json:"question_type"`
	Submission   models.Submission `json:"submission"`
	Variant      models.Variant    `json:"variant"`
	Question     models.Question   `json:"question"`
	Course       models.Course     `json:"course"`
	EnqueuedAt   time.Time         `json:"enqueued_at"`
	Attempts     int               `json:"attempts"`
}

// Encode serialises the message for the wire.
func (m Message) Encode() ([]byte, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode grading message: %w", err)
	}
	return payload, nil
}

// Decode parses a message from the wire.
func Decode(payload []byte) (Message, error) {
	var message Message
	if err := json.Unmarshal(payload, &message); err != nil {
		return Message{}, fmt.Errorf("decode grading message: %w", err)
	}
	if message.GradingJobID == 0 {
		return Message{}, errors.New("decode grading message: grading_job_id is required")
	}
	return message, nil
}

// Producer sends grading requests to external graders.
type Producer interface {
	Enqueue(ctx context.Context, message Message) error
	Backend() string
}

// Handler processes one grading request. A returned error asks the consumer
// to retry the message while attempts remain.
type Handler func(ctx context.Context, message Message) error

// Consumer delivers grading requests to a handler until ctx is cancelled.
type Consumer interface {
	Consume(ctx context.Context, handler Handler) error
}
