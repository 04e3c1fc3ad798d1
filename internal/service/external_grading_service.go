package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-variant-engine/internal/models"
	"github.com/noah-isme/gema-variant-engine/internal/observability"
	"github.com/noah-isme/gema-variant-engine/internal/repository"
)

// ExternalResult is the outcome reported by an external grader.
type ExternalResult struct {
	Score         *float64
	Gradable      bool
	PartialScores map[string]interface{}
	Feedback      map[string]interface{}
	FormatErrors  map[string]interface{}
	// Failed marks a job the grader could not evaluate at all.
	Failed bool
}

// ExternalGradingService applies results produced outside the request path.
type ExternalGradingService interface {
	// Complete writes result onto a pending external job. It reports false
	// without error when the job was already completed, so redelivered
	// messages are harmless.
	Complete(ctx context.Context, jobID uint, result ExternalResult) (bool, error)
}

type externalGradingService struct {
	store  repository.Store
	logger zerolog.Logger
	now    func() time.Time
}

// NewExternalGradingService constructs the result writer used by graders.
func NewExternalGradingService(store repository.Store, logger zerolog.Logger) ExternalGradingService {
	return &externalGradingService{
		store:  store,
		logger: logger.With().Str("component", "external_grading_service").Logger(),
		now:    time.Now,
	}
}

func (s *externalGradingService) Complete(ctx context.Context, jobID uint, result ExternalResult) (bool, error) {
	repos := s.store.Repositories()

	job, err := repos.GradingJobs.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrGradingJobNotFound
		}
		return false, err
	}
	if job.GradingMethod != models.GradingMethodExternal {
		return false, ErrGradingJobNotExternal
	}
	if !job.IsPending() {
		s.logger.Debug().Uint("grading_job_id", jobID).Str("status", job.Status).Msg("ignoring result for completed job")
		return false, nil
	}

	status := models.GradingJobStatusGraded
	gradable := result.Gradable && !result.Failed
	if result.Failed {
		status = models.GradingJobStatusFailed
	}

	var score *float64
	if gradable && result.Score != nil {
		value := *result.Score
		score = &value
	}

	applied, err := repos.GradingJobs.CompletePending(ctx, jobID, repository.GradingJobResult{
		Status:        status,
		Gradable:      gradable,
		Score:         score,
		PartialScores: jsonMap(result.PartialScores),
		Feedback:      jsonMap(result.Feedback),
		FormatErrors:  jsonMap(result.FormatErrors),
		GradedAt:      s.now(),
	})
	if err != nil {
		return false, err
	}
	if !applied {
		return false, nil
	}

	observability.ExternalResults().WithLabelValues(status).Inc()
	s.logger.Info().
		Uint("grading_job_id", jobID).
		Str("status", status).
		Bool("gradable", gradable).
		Msg("external grading result applied")
	return true, nil
}
