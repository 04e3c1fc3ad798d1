package service

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-variant-engine/internal/models"
	"github.com/noah-isme/gema-variant-engine/internal/repository"
)

// VariantContext bundles a variant with the question and course it belongs to.
type VariantContext struct {
	Variant  models.Variant
	Question models.Question
	Course   models.Course
}

// LookupService provides read access for callers that assemble requests.
type LookupService interface {
	VariantContext(ctx context.Context, variantID uint) (VariantContext, error)
	GradingJob(ctx context.Context, id uint) (models.GradingJob, error)
	CourseErrors(ctx context.Context, variantID uint) ([]models.CourseError, error)
}

type lookupService struct {
	store repository.Store
}

// NewLookupService constructs a lookup service.
func NewLookupService(store repository.Store) LookupService {
	return &lookupService{store: store}
}

func (s *lookupService) VariantContext(ctx context.Context, variantID uint) (VariantContext, error) {
	repos := s.store.Repositories()

	variant, err := repos.Variants.GetByID(ctx, variantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return VariantContext{}, ErrVariantNotFound
		}
		return VariantContext{}, err
	}

	question, err := repos.Questions.GetByID(ctx, variant.QuestionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return VariantContext{}, ErrQuestionNotFound
		}
		return VariantContext{}, err
	}

	course := question.Course
	if variant.CourseID != 0 && variant.CourseID != course.ID {
		course, err = repos.Questions.GetCourse(ctx, variant.CourseID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return VariantContext{}, ErrCourseNotFound
			}
			return VariantContext{}, err
		}
	}

	return VariantContext{Variant: variant, Question: question, Course: course}, nil
}

func (s *lookupService) GradingJob(ctx context.Context, id uint) (models.GradingJob, error) {
	job, err := s.store.Repositories().GradingJobs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.GradingJob{}, ErrGradingJobNotFound
		}
		return models.GradingJob{}, err
	}
	return job, nil
}

func (s *lookupService) CourseErrors(ctx context.Context, variantID uint) ([]models.CourseError, error) {
	return s.store.Repositories().CourseErrors.ListByVariant(ctx, variantID)
}
