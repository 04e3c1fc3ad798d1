package models

import (
	"time"

	"gorm.io/datatypes"
)

// Submission is one answer attempt against a variant. Rows are never updated after insert.
type Submission struct {
	ID                 uint              `gorm:"primaryKey" json:"id"`
	VariantID          uint              `gorm:"not null;index" json:"variant_id"`
	AuthnUserID        uint              `gorm:"not null" json:"authn_user_id"`
	RawSubmittedAnswer datatypes.JSONMap `json:"raw_submitted_answer"`
	SubmittedAnswer    datatypes.JSONMap `json:"submitted_answer"`
	FormatErrors       datatypes.JSONMap `json:"format_errors"`
	Gradable           bool              `gorm:"not null" json:"gradable"`
	Credit             *int              `json:"credit,omitempty"`
	Mode               string            `gorm:"size:32" json:"mode,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
}
