package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-variant-engine/internal/models"
)

// SubmissionRepository persists submissions. Submissions are insert-only.
type SubmissionRepository interface {
	Create(ctx context.Context, submission *models.Submission) error
	GetByID(ctx context.Context, id uint) (models.Submission, error)
	ListByVariant(ctx context.Context, variantID uint) ([]models.Submission, error)
	// SelectForGrading returns the most recent submission of the variant. When
	// checkSubmissionID is set and names a different submission it reports
	// gorm.ErrRecordNotFound.
	SelectForGrading(ctx context.Context, variantID uint, checkSubmissionID *uint) (models.Submission, error)
}

// NewSubmissionRepository constructs a submission repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

type submissionRepository struct {
	db *gorm.DB
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

func (r *submissionRepository) GetByID(ctx context.Context, id uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).First(&submission, id).Error; err != nil {
		return models.Submission{}, err
	}
	return submission, nil
}

func (r *submissionRepository) ListByVariant(ctx context.Context, variantID uint) ([]models.Submission, error) {
	var submissions []models.Submission
	if err := r.db.WithContext(ctx).
		Where("variant_id = ?", variantID).
		Order("created_at ASC, id ASC").
		Find(&submissions).Error; err != nil {
		return nil, err
	}
	return submissions, nil
}

func (r *submissionRepository) SelectForGrading(ctx context.Context, variantID uint, checkSubmissionID *uint) (models.Submission, error) {
	var submission models.Submission
	if err := r.db.WithContext(ctx).
		Where("variant_id = ?", variantID).
		Order("created_at DESC, id DESC").
		Take(&submission).Error; err != nil {
		return models.Submission{}, err
	}

	if checkSubmissionID != nil && submission.ID != *checkSubmissionID {
		return models.Submission{}, gorm.ErrRecordNotFound
	}
	return submission, nil
}
