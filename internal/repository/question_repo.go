package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-variant-engine/internal/models"
)

// QuestionRepository reads question descriptors owned by content management.
type QuestionRepository interface {
	GetByID(ctx context.Context, id uint) (models.Question, error)
	GetInstanceQuestion(ctx context.Context, id uint) (models.InstanceQuestion, error)
	GetCourse(ctx context.Context, id uint) (models.Course, error)
}

// NewQuestionRepository constructs a question repository.
func NewQuestionRepository(db *gorm.DB) QuestionRepository {
	return &questionRepository{db: db}
}

type questionRepository struct {
	db *gorm.DB
}

func (r *questionRepository) GetByID(ctx context.Context, id uint) (models.Question, error) {
	var question models.Question
	if err := r.db.WithContext(ctx).Preload("Course").First(&question, id).Error; err != nil {
		return models.Question{}, err
	}
	return question, nil
}

func (r *questionRepository) GetInstanceQuestion(ctx context.Context, id uint) (models.InstanceQuestion, error) {
	var instanceQuestion models.InstanceQuestion
	err := r.db.WithContext(ctx).
		Preload("Question").
		Preload("Question.Course").
		First(&instanceQuestion, id).Error
	if err != nil {
		return models.InstanceQuestion{}, err
	}
	return instanceQuestion, nil
}

func (r *questionRepository) GetCourse(ctx context.Context, id uint) (models.Course, error) {
	var course models.Course
	if err := r.db.WithContext(ctx).First(&course, id).Error; err != nil {
		return models.Course{}, err
	}
	return course, nil
}
