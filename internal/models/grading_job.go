package models

import (
	"time"

	"gorm.io/datatypes"
)

// Grading job states.
const (
	GradingJobStatusPending = "pending"
	GradingJobStatusGraded  = "graded"
	GradingJobStatusFailed  = "failed"
)

// GradingJob records one grading attempt for a submission.
type GradingJob struct {
	ID                 uint              `gorm:"primaryKey" json:"id"`
	SubmissionID       uint              `gorm:"not null;index" json:"submission_id"`
	AuthnUserID        uint              `gorm:"not null" json:"authn_user_id"`
	GradingMethod      string            `gorm:"size:16;not null" json:"grading_method"`
	Status             string            `gorm:"size:16;not null;index" json:"status"`
	Gradable           bool              `gorm:"not null" json:"gradable"`
	Score              *float64          `json:"score"`
	PartialScores      datatypes.JSONMap `json:"partial_scores"`
	Feedback           datatypes.JSONMap `json:"feedback"`
	FormatErrors       datatypes.JSONMap `json:"format_errors"`
	GradingRequestedAt time.Time         `gorm:"not null" json:"grading_requested_at"`
	LastDispatchedAt   *time.Time        `gorm:"index" json:"last_dispatched_at,omitempty"`
	GradedAt           *time.Time        `json:"graded_at"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
	Submission         Submission        `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// IsPending reports whether the job still awaits a result.
func (j GradingJob) IsPending() bool {
	return j.Status == GradingJobStatusPending
}
