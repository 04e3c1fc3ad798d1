package models

import (
	"time"

	"gorm.io/datatypes"
)

// MaxVariantSeedLength bounds the variant_seed column.
const MaxVariantSeedLength = 64

// Variant is a randomized instance of a question. Rows are never updated after insert.
type Variant struct {
	ID                 uint              `gorm:"primaryKey" json:"id"`
	QuestionID         uint              `gorm:"not null;index" json:"question_id"`
	CourseID           uint              `gorm:"not null" json:"course_id"`
	InstanceQuestionID *uint             `gorm:"index" json:"instance_question_id,omitempty"`
	UserID             *uint             `json:"user_id,omitempty"`
	AuthnUserID        uint              `gorm:"not null" json:"authn_user_id"`
	Seed               string            `gorm:"column:variant_seed;size:64;not null" json:"variant_seed"`
	Params             datatypes.JSONMap `json:"params"`
	TrueAnswer         datatypes.JSONMap `json:"true_answer"`
	Options            datatypes.JSONMap `json:"options"`
	Broken             bool              `gorm:"not null" json:"broken"`
	Open               bool              `gorm:"not null" json:"open"`
	CreatedAt          time.Time         `json:"created_at"`
}

// IsFloating reports whether the variant is unattached to any assessment slot.
func (v Variant) IsFloating() bool {
	return v.InstanceQuestionID == nil
}

// Answerable reports whether a student may submit against the variant.
func (v Variant) Answerable() bool {
	return !v.Broken && v.Open
}
