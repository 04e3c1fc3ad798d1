package service

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/gema-variant-engine/internal/models"
	"github.com/noah-isme/gema-variant-engine/internal/questions"
	"github.com/noah-isme/gema-variant-engine/internal/repository"
)

// SaveSubmissionRequest carries an answer and the entities it is judged against.
// Submission.SubmittedAnswer holds the caller's answer verbatim.
type SaveSubmissionRequest struct {
	Submission models.Submission
	Variant    models.Variant
	Question   models.Question
	Course     models.Course
}

// SubmissionService persists answers against variants.
type SubmissionService interface {
	SaveSubmission(ctx context.Context, req SaveSubmissionRequest) (uint, error)
}

type submissionService struct {
	store    repository.Store
	pipeline *pipeline
	logger   zerolog.Logger
}

// NewSubmissionService constructs a SubmissionService instance.
func NewSubmissionService(store repository.Store, registry *questions.Registry, invoker *questions.Invoker, sink *ErrorSink, logger zerolog.Logger) SubmissionService {
	return &submissionService{
		store:    store,
		pipeline: newPipeline(registry, invoker, sink),
		logger:   logger.With().Str("component", "submission_service").Logger(),
	}
}

func (s *submissionService) SaveSubmission(ctx context.Context, req SaveSubmissionRequest) (uint, error) {
	tracer := otel.Tracer("github.com/noah-isme/gema-variant-engine/internal/service/submission")
	ctx, span := tracer.Start(ctx, "submission.save")
	span.SetAttributes(
		attribute.Int64("submission.variant_id", int64(req.Variant.ID)),
		attribute.String("submission.question_type", req.Question.Type),
	)
	defer span.End()

	module, err := s.pipeline.registry.Resolve(req.Question.Type)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown_question_type")
		return 0, err
	}

	var saved models.Submission
	var counts tally
	err = s.store.Transaction(ctx, func(repos repository.Repositories) error {
		submission, err := s.pipeline.saveSubmission(ctx, repos, &counts, module, req)
		if err != nil {
			return err
		}
		saved = submission
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "submission_save_failed")
		s.logger.Error().Err(err).Uint("variant_id", req.Variant.ID).Msg("failed to save submission")
		return 0, err
	}

	counts.flush()
	span.SetAttributes(
		attribute.Int64("submission.id", int64(saved.ID)),
		attribute.Bool("submission.gradable", saved.Gradable),
	)
	return saved.ID, nil
}
