package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-variant-engine/internal/models"
)

// CourseErrorRepository persists errors raised by question code.
type CourseErrorRepository interface {
	Create(ctx context.Context, courseError *models.CourseError) error
	ListByVariant(ctx context.Context, variantID uint) ([]models.CourseError, error)
}

// NewCourseErrorRepository constructs a course error repository.
func NewCourseErrorRepository(db *gorm.DB) CourseErrorRepository {
	return &courseErrorRepository{db: db}
}

type courseErrorRepository struct {
	db *gorm.DB
}

func (r *courseErrorRepository) Create(ctx context.Context, courseError *models.CourseError) error {
	return r.db.WithContext(ctx).Create(courseError).Error
}

func (r *courseErrorRepository) ListByVariant(ctx context.Context, variantID uint) ([]models.CourseError, error) {
	var courseErrors []models.CourseError
	if err := r.db.WithContext(ctx).
		Where("variant_id = ?", variantID).
		Order("id ASC").
		Find(&courseErrors).Error; err != nil {
		return nil, err
	}
	return courseErrors, nil
}
