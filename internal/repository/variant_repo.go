package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-variant-engine/internal/models"
)

// VariantRepository persists question variants.
type VariantRepository interface {
	Create(ctx context.Context, variant *models.Variant) error
	GetByID(ctx context.Context, id uint) (models.Variant, error)
	// FindForInstanceQuestion returns the newest non-broken variant bound to
	// the slot, restricted to open variants when requireOpen is set.
	FindForInstanceQuestion(ctx context.Context, instanceQuestionID uint, requireOpen bool) (models.Variant, error)
}

// NewVariantRepository constructs a variant repository.
func NewVariantRepository(db *gorm.DB) VariantRepository {
	return &variantRepository{db: db}
}

type variantRepository struct {
	db *gorm.DB
}

func (r *variantRepository) Create(ctx context.Context, variant *models.Variant) error {
	return r.db.WithContext(ctx).Create(variant).Error
}

func (r *variantRepository) GetByID(ctx context.Context, id uint) (models.Variant, error) {
	var variant models.Variant
	if err := r.db.WithContext(ctx).First(&variant, id).Error; err != nil {
		return models.Variant{}, err
	}
	return variant, nil
}

func (r *variantRepository) FindForInstanceQuestion(ctx context.Context, instanceQuestionID uint, requireOpen bool) (models.Variant, error) {
	query := r.db.WithContext(ctx).
		Where("instance_question_id = ?", instanceQuestionID).
		Where("broken = ?", false)
	if requireOpen {
		query = query.Where("open = ?", true)
	}

	var variant models.Variant
	if err := query.Order("id DESC").Take(&variant).Error; err != nil {
		return models.Variant{}, err
	}
	return variant, nil
}
