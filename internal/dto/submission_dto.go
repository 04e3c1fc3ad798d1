package dto

import (
	"time"

	"github.com/noah-isme/gema-variant-engine/internal/models"
)

// SubmissionCreateRequest carries a student's answer. Grade requests grading in the same transaction.
type SubmissionCreateRequest struct {
	SubmittedAnswer map[string]interface{} `json:"submitted_answer" validate:"required"`
	Credit          *int                   `json:"credit" validate:"omitempty,gte=0,lte=100"`
	Mode            string                 `json:"mode" validate:"omitempty,max=32"`
	Grade           bool                   `json:"grade"`
}

// SubmissionResponse is returned after a submission is stored.
type SubmissionResponse struct {
	ID         uint                `json:"id"`
	VariantID  uint                `json:"variant_id"`
	GradingJob *GradingJobResponse `json:"grading_job,omitempty"`
}

// GradeVariantRequest optionally pins grading to a specific submission.
type GradeVariantRequest struct {
	CheckSubmissionID *uint `json:"check_submission_id" validate:"omitempty,gt=0"`
}

// ManualGradeRequest carries a staff score for a Manual grading job.
type ManualGradeRequest struct {
	Score    *float64 `json:"score" validate:"required,gte=0,lte=1"`
	Feedback string   `json:"feedback" validate:"max=4000"`
}

// GradingJobResponse exposes a grading job to API clients.
type GradingJobResponse struct {
	ID                 uint                   `json:"id"`
	SubmissionID       uint                   `json:"submission_id"`
	GradingMethod      string                 `json:"grading_method"`
	Status             string                 `json:"status"`
	Gradable           bool                   `json:"gradable"`
	Score              *float64               `json:"score"`
	PartialScores      map[string]interface{} `json:"partial_scores"`
	Feedback           map[string]interface{} `json:"feedback"`
	FormatErrors       map[string]interface{} `json:"format_errors"`
	GradingRequestedAt time.Time              `json:"grading_requested_at"`
	GradedAt           *time.Time             `json:"graded_at"`
}

// NewGradingJobResponse converts a GradingJob model into a DTO.
func NewGradingJobResponse(model models.GradingJob) GradingJobResponse {
	return GradingJobResponse{
		ID:                 model.ID,
		SubmissionID:       model.SubmissionID,
		GradingMethod:      model.GradingMethod,
		Status:             model.Status,
		Gradable:           model.Gradable,
		Score:              model.Score,
		PartialScores:      nonNilMap(model.PartialScores),
		Feedback:           nonNilMap(model.Feedback),
		FormatErrors:       nonNilMap(model.FormatErrors),
		GradingRequestedAt: model.GradingRequestedAt,
		GradedAt:           model.GradedAt,
	}
}

func nonNilMap(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return map[string]interface{}{}
	}
	return in
}
