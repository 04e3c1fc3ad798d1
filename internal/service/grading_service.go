package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-variant-engine/internal/models"
	"github.com/noah-isme/gema-variant-engine/internal/observability"
	"github.com/noah-isme/gema-variant-engine/internal/queue"
	"github.com/noah-isme/gema-variant-engine/internal/questions"
	"github.com/noah-isme/gema-variant-engine/internal/repository"
)

const redispatchBatchSize = 100

// GradeVariantRequest selects the variant to grade. When CheckSubmissionID is
// set, grading only proceeds if it names the latest submission.
type GradeVariantRequest struct {
	Variant           models.Variant
	Question          models.Question
	Course            models.Course
	AuthnUserID       uint
	CheckSubmissionID *uint
}

// SaveAndGradeResult reports the saved submission and the job created for it.
// GradingJob is nil when a newer submission won the race.
type SaveAndGradeResult struct {
	SubmissionID uint
	GradingJob   *models.GradingJob
}

// GradingService grades submissions and dispatches external grading.
type GradingService interface {
	// GradeVariant grades the latest submission of a variant. A nil job with a
	// nil error means there was nothing to grade.
	GradeVariant(ctx context.Context, req GradeVariantRequest) (*models.GradingJob, error)
	SaveAndGradeSubmission(ctx context.Context, req SaveSubmissionRequest) (SaveAndGradeResult, error)
	// RedispatchPending re-sends external jobs that have been pending, and not
	// re-sent, for longer than olderThan and returns how many were sent.
	RedispatchPending(ctx context.Context, olderThan time.Duration) (int, error)
}

type gradingService struct {
	store    repository.Store
	pipeline *pipeline
	producer queue.Producer
	logger   zerolog.Logger
	now      func() time.Time
}

// NewGradingService constructs the grading orchestrator.
func NewGradingService(store repository.Store, registry *questions.Registry, invoker *questions.Invoker, sink *ErrorSink, producer queue.Producer, logger zerolog.Logger) GradingService {
	return &gradingService{
		store:    store,
		pipeline: newPipeline(registry, invoker, sink),
		producer: producer,
		logger:   logger.With().Str("component", "grading_service").Logger(),
		now:      time.Now,
	}
}

func (s *gradingService) GradeVariant(ctx context.Context, req GradeVariantRequest) (*models.GradingJob, error) {
	tracer := otel.Tracer("github.com/noah-isme/gema-variant-engine/internal/service/grading")
	ctx, span := tracer.Start(ctx, "grading.grade_variant")
	span.SetAttributes(
		attribute.Int64("grading.variant_id", int64(req.Variant.ID)),
		attribute.String("grading.method", req.Question.GradingMethod),
	)
	defer span.End()

	module, err := s.pipeline.registry.Resolve(req.Question.Type)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown_question_type")
		return nil, err
	}

	var job *models.GradingJob
	var counts tally
	err = s.store.Transaction(ctx, func(repos repository.Repositories) error {
		graded, err := s.pipeline.gradeVariant(ctx, repos, &counts, module, gradeVariantInput{
			Variant:           req.Variant,
			Question:          req.Question,
			Course:            req.Course,
			AuthnUserID:       req.AuthnUserID,
			CheckSubmissionID: req.CheckSubmissionID,
		})
		if err != nil {
			return err
		}
		job = graded
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "grading_failed")
		s.logger.Error().Err(err).Uint("variant_id", req.Variant.ID).Msg("failed to grade variant")
		return nil, err
	}
	counts.flush()

	if job == nil {
		span.SetAttributes(attribute.Bool("grading.noop", true))
		return nil, nil
	}

	span.SetAttributes(attribute.Int64("grading.job_id", int64(job.ID)))
	s.dispatch(ctx, job, req.Variant, req.Question, req.Course)
	return job, nil
}

func (s *gradingService) SaveAndGradeSubmission(ctx context.Context, req SaveSubmissionRequest) (SaveAndGradeResult, error) {
	tracer := otel.Tracer("github.com/noah-isme/gema-variant-engine/internal/service/grading")
	ctx, span := tracer.Start(ctx, "grading.save_and_grade")
	span.SetAttributes(
		attribute.Int64("grading.variant_id", int64(req.Variant.ID)),
		attribute.String("grading.method", req.Question.GradingMethod),
	)
	defer span.End()

	module, err := s.pipeline.registry.Resolve(req.Question.Type)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown_question_type")
		return SaveAndGradeResult{}, err
	}

	var result SaveAndGradeResult
	var counts tally
	err = s.store.Transaction(ctx, func(repos repository.Repositories) error {
		submission, err := s.pipeline.saveSubmission(ctx, repos, &counts, module, req)
		if err != nil {
			return err
		}

		checkID := submission.ID
		job, err := s.pipeline.gradeVariant(ctx, repos, &counts, module, gradeVariantInput{
			Variant:           req.Variant,
			Question:          req.Question,
			Course:            req.Course,
			AuthnUserID:       submission.AuthnUserID,
			CheckSubmissionID: &checkID,
		})
		if err != nil {
			return err
		}

		result = SaveAndGradeResult{SubmissionID: submission.ID, GradingJob: job}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "save_and_grade_failed")
		s.logger.Error().Err(err).Uint("variant_id", req.Variant.ID).Msg("failed to save and grade submission")
		return SaveAndGradeResult{}, err
	}
	counts.flush()

	span.SetAttributes(attribute.Int64("grading.submission_id", int64(result.SubmissionID)))
	if result.GradingJob != nil {
		s.dispatch(ctx, result.GradingJob, req.Variant, req.Question, req.Course)
	}
	return result, nil
}

func (s *gradingService) RedispatchPending(ctx context.Context, olderThan time.Duration) (int, error) {
	repos := s.store.Repositories()
	jobs, err := repos.GradingJobs.ListPendingExternal(ctx, s.now().Add(-olderThan), redispatchBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list pending external jobs: %w", err)
	}

	sent := 0
	for i := range jobs {
		job := &jobs[i]
		// Stamped before sending so jobs no grader picks up rotate to the back.
		if err := repos.GradingJobs.MarkDispatched(ctx, job.ID, s.now()); err != nil {
			return sent, fmt.Errorf("mark job dispatched: %w", err)
		}

		variant, err := repos.Variants.GetByID(ctx, job.Submission.VariantID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				s.logger.Warn().Uint("grading_job_id", job.ID).Msg("pending job references a missing variant")
				continue
			}
			return sent, fmt.Errorf("load variant: %w", err)
		}
		question, err := repos.Questions.GetByID(ctx, variant.QuestionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				s.logger.Warn().Uint("grading_job_id", job.ID).Msg("pending job references a missing question")
				continue
			}
			return sent, fmt.Errorf("load question: %w", err)
		}

		if s.enqueue(ctx, job, variant, question, question.Course) {
			sent++
		}
	}

	if sent > 0 {
		s.logger.Info().Int("count", sent).Msg("redispatched pending external grading jobs")
	}
	return sent, nil
}

// dispatch signals external graders after commit. The job row is the durable
// record, so a failed send is logged and left for RedispatchPending.
func (s *gradingService) dispatch(ctx context.Context, job *models.GradingJob, variant models.Variant, question models.Question, course models.Course) {
	if !question.IsExternallyGraded() {
		return
	}
	s.enqueue(ctx, job, variant, question, course)
}

func (s *gradingService) enqueue(ctx context.Context, job *models.GradingJob, variant models.Variant, question models.Question, course models.Course) bool {
	if s.producer == nil {
		s.logger.Warn().Uint("grading_job_id", job.ID).Msg("no grading queue configured")
		return false
	}

	message := queue.Message{
		GradingJobID: job.ID,
		QuestionType: question.Type,
		Submission:   job.Submission,
		Variant:      variant,
		Question:     question,
		Course:       course,
		EnqueuedAt:   s.now().UTC(),
	}
	if err := s.producer.Enqueue(ctx, message); err != nil {
		observability.QueueEnqueueFailures().WithLabelValues(s.producer.Backend()).Inc()
		s.logger.Warn().Err(err).
			Uint("grading_job_id", job.ID).
			Str("backend", s.producer.Backend()).
			Msg("failed to enqueue external grading request")
		return false
	}
	return true
}
