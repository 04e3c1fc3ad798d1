package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-variant-engine/internal/queue"
	"github.com/noah-isme/gema-variant-engine/internal/service"
)

// ExternalGradingWorker consumes grading requests and writes results back
// onto their jobs. Results are applied idempotently, so redelivery is safe.
type ExternalGradingWorker struct {
	consumer queue.Consumer
	graders  Graders
	results  service.ExternalGradingService
	logger   zerolog.Logger
}

// NewExternalGradingWorker constructs the worker.
func NewExternalGradingWorker(consumer queue.Consumer, graders Graders, results service.ExternalGradingService, logger zerolog.Logger) *ExternalGradingWorker {
	return &ExternalGradingWorker{
		consumer: consumer,
		graders:  graders,
		results:  results,
		logger:   logger.With().Str("component", "external_grading_worker").Logger(),
	}
}

// Run blocks until ctx is cancelled.
func (w *ExternalGradingWorker) Run(ctx context.Context) error {
	w.logger.Info().Msg("external grading worker started")
	defer w.logger.Info().Msg("external grading worker stopped")
	return w.consumer.Consume(ctx, w.Handle)
}

// Handle grades a single message.
func (w *ExternalGradingWorker) Handle(ctx context.Context, message queue.Message) error {
	logger := w.logger.With().
		Uint("grading_job_id", message.GradingJobID).
		Str("question_type", message.QuestionType).
		Int("attempts", message.Attempts).
		Logger()

	var result service.ExternalResult
	if !message.Submission.Gradable {
		result = service.ExternalResult{
			Gradable:     false,
			FormatErrors: message.Submission.FormatErrors,
			Feedback:     map[string]interface{}{"error": "submission is not gradable"},
		}
	} else {
		grader, ok := w.graders.lookup(message.QuestionType)
		if !ok {
			logger.Warn().Msg("no grader for question type, leaving job pending")
			return nil
		}

		start := time.Now()
		graded, err := grader.Grade(ctx, message)
		if err != nil {
			logger.Error().Err(err).Msg("grader failed")
			return err
		}
		result = graded
		logger = logger.With().Dur("grading_duration", time.Since(start)).Logger()
	}

	applied, err := w.results.Complete(ctx, message.GradingJobID, result)
	if err != nil {
		if errors.Is(err, service.ErrGradingJobNotFound) || errors.Is(err, service.ErrGradingJobNotExternal) {
			logger.Warn().Err(err).Msg("discarding grading message")
			return nil
		}
		return fmt.Errorf("complete grading job %d: %w", message.GradingJobID, err)
	}
	if !applied {
		logger.Debug().Msg("job already completed")
		return nil
	}

	logger.Info().Bool("gradable", result.Gradable).Bool("failed", result.Failed).Msg("grading job completed")
	return nil
}

// Redispatcher periodically re-sends external jobs whose message may have
// been lost.
type Redispatcher struct {
	grading  service.GradingService
	interval time.Duration
	after    time.Duration
	logger   zerolog.Logger
}

// NewRedispatcher constructs a redispatch loop.
func NewRedispatcher(grading service.GradingService, interval, after time.Duration, logger zerolog.Logger) *Redispatcher {
	if interval <= 0 {
		interval = time.Minute
	}
	if after <= 0 {
		after = 5 * time.Minute
	}
	return &Redispatcher{
		grading:  grading,
		interval: interval,
		after:    after,
		logger:   logger.With().Str("component", "grading_redispatcher").Logger(),
	}
}

// Run blocks until ctx is cancelled.
func (r *Redispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.grading.RedispatchPending(ctx, r.after); err != nil && ctx.Err() == nil {
				r.logger.Error().Err(err).Msg("redispatch failed")
			}
		}
	}
}
