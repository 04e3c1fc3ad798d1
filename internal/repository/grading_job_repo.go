package repository

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-variant-engine/internal/models"
)

// GradingJobResult is the outcome written onto a pending job.
type GradingJobResult struct {
	Status        string
	Gradable      bool
	Score         *float64
	PartialScores datatypes.JSONMap
	Feedback      datatypes.JSONMap
	FormatErrors  datatypes.JSONMap
	GradedAt      time.Time
}

// GradingJobRepository persists grading jobs.
type GradingJobRepository interface {
	Create(ctx context.Context, job *models.GradingJob) error
	GetByID(ctx context.Context, id uint) (models.GradingJob, error)
	ListBySubmission(ctx context.Context, submissionID uint) ([]models.GradingJob, error)
	// CompletePending applies result to the job if it is still pending and
	// reports whether a row changed.
	CompletePending(ctx context.Context, id uint, result GradingJobResult) (bool, error)
	// ListPendingExternal returns external jobs still pending that were
	// requested and last redispatched before the cutoff, least recently
	// dispatched first.
	ListPendingExternal(ctx context.Context, cutoff time.Time, limit int) ([]models.GradingJob, error)
	// MarkDispatched stamps the time a pending job was last sent to graders.
	MarkDispatched(ctx context.Context, id uint, at time.Time) error
}

// NewGradingJobRepository constructs a grading job repository.
func NewGradingJobRepository(db *gorm.DB) GradingJobRepository {
	return &gradingJobRepository{db: db}
}

type gradingJobRepository struct {
	db *gorm.DB
}

func (r *gradingJobRepository) Create(ctx context.Context, job *models.GradingJob) error {
	return r.db.WithContext(ctx).Omit("Submission").Create(job).Error
}

func (r *gradingJobRepository) GetByID(ctx context.Context, id uint) (models.GradingJob, error) {
	var job models.GradingJob
	if err := r.db.WithContext(ctx).Preload("Submission").First(&job, id).Error; err != nil {
		return models.GradingJob{}, err
	}
	return job, nil
}

func (r *gradingJobRepository) ListBySubmission(ctx context.Context, submissionID uint) ([]models.GradingJob, error) {
	var jobs []models.GradingJob
	if err := r.db.WithContext(ctx).
		Where("submission_id = ?", submissionID).
		Order("id ASC").
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *gradingJobRepository) CompletePending(ctx context.Context, id uint, result GradingJobResult) (bool, error) {
	gradedAt := result.GradedAt
	outcome := r.db.WithContext(ctx).
		Model(&models.GradingJob{}).
		Where("id = ? AND status = ?", id, models.GradingJobStatusPending).
		Updates(map[string]interface{}{
			"status":         result.Status,
			"gradable":       result.Gradable,
			"score":          result.Score,
			"partial_scores": result.PartialScores,
			"feedback":       result.Feedback,
			"format_errors":  result.FormatErrors,
			"graded_at":      &gradedAt,
		})
	if outcome.Error != nil {
		return false, outcome.Error
	}
	return outcome.RowsAffected > 0, nil
}

func (r *gradingJobRepository) ListPendingExternal(ctx context.Context, cutoff time.Time, limit int) ([]models.GradingJob, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	var jobs []models.GradingJob
	if err := r.db.WithContext(ctx).
		Preload("Submission").
		Where("status = ? AND grading_method = ?", models.GradingJobStatusPending, models.GradingMethodExternal).
		Where("grading_requested_at < ?", cutoff).
		Where("(last_dispatched_at IS NULL OR last_dispatched_at < ?)", cutoff).
		Order("COALESCE(last_dispatched_at, grading_requested_at) ASC, id ASC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *gradingJobRepository) MarkDispatched(ctx context.Context, id uint, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.GradingJob{}).
		Where("id = ? AND status = ?", id, models.GradingJobStatusPending).
		Update("last_dispatched_at", at).Error
}
