package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-variant-engine/internal/models"
	"github.com/noah-isme/gema-variant-engine/internal/repository"
)

// ManualGrade is a staff-assigned score in [0, 1].
type ManualGrade struct {
	Score    float64 `validate:"gte=0,lte=1"`
	Feedback string  `validate:"max=4000"`
}

// ManualGradingService completes Manual grading jobs on behalf of staff.
type ManualGradingService interface {
	Grade(ctx context.Context, jobID uint, grade ManualGrade, actorID uint) (models.GradingJob, error)
}

type manualGradingService struct {
	store     repository.Store
	validator *validator.Validate
	logger    zerolog.Logger
	now       func() time.Time
}

// NewManualGradingService constructs the manual grading service.
func NewManualGradingService(store repository.Store, validator *validator.Validate, logger zerolog.Logger) ManualGradingService {
	return &manualGradingService{
		store:     store,
		validator: validator,
		logger:    logger.With().Str("component", "manual_grading_service").Logger(),
		now:       time.Now,
	}
}

func (s *manualGradingService) Grade(ctx context.Context, jobID uint, grade ManualGrade, actorID uint) (models.GradingJob, error) {
	tracer := otel.Tracer("github.com/noah-isme/gema-variant-engine/internal/service/manual_grading")
	ctx, span := tracer.Start(ctx, "grading.manual")
	span.SetAttributes(
		attribute.Int64("grading.job_id", int64(jobID)),
		attribute.Int64("grading.actor_id", int64(actorID)),
	)
	defer span.End()

	if err := s.validator.Struct(grade); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation_failed")
		return models.GradingJob{}, err
	}

	repos := s.store.Repositories()
	job, err := repos.GradingJobs.GetByID(ctx, jobID)
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			span.SetStatus(codes.Error, "grading_job_not_found")
			return models.GradingJob{}, ErrGradingJobNotFound
		}
		span.SetStatus(codes.Error, "grading_job_lookup_failed")
		return models.GradingJob{}, err
	}
	if job.GradingMethod != models.GradingMethodManual {
		span.SetStatus(codes.Error, "grading_job_not_manual")
		return models.GradingJob{}, ErrGradingJobNotManual
	}

	feedback := strings.TrimSpace(grade.Feedback)
	if !job.IsPending() {
		if sameManualResult(job, grade.Score, feedback) {
			span.SetAttributes(attribute.Bool("grading.idempotent", true))
			return job, nil
		}
		span.SetStatus(codes.Error, "grading_job_completed")
		return models.GradingJob{}, ErrGradingJobCompleted
	}

	score := grade.Score
	result := repository.GradingJobResult{
		Status:   models.GradingJobStatusGraded,
		Gradable: true,
		Score:    &score,
		Feedback: jsonMap(map[string]interface{}{
			"comment":   feedback,
			"graded_by": actorID,
		}),
		GradedAt: s.now(),
	}
	applied, err := repos.GradingJobs.CompletePending(ctx, jobID, result)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "grading_job_update_failed")
		return models.GradingJob{}, err
	}

	updated, err := repos.GradingJobs.GetByID(ctx, jobID)
	if err != nil {
		return models.GradingJob{}, err
	}
	if !applied && !sameManualResult(updated, grade.Score, feedback) {
		return models.GradingJob{}, ErrGradingJobCompleted
	}

	span.SetAttributes(attribute.Float64("grading.score", grade.Score))
	s.logger.Info().
		Uint("grading_job_id", jobID).
		Uint("actor_id", actorID).
		Float64("score", grade.Score).
		Msg("manual grade applied")
	return updated, nil
}

func sameManualResult(job models.GradingJob, score float64, feedback string) bool {
	if job.Score == nil || math.Abs(*job.Score-score) >= 1e-6 {
		return false
	}
	comment, _ := job.Feedback["comment"].(string)
	return strings.TrimSpace(comment) == feedback
}
