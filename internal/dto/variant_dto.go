package dto

import (
	"time"

	"github.com/noah-isme/gema-variant-engine/internal/models"
	"github.com/noah-isme/gema-variant-engine/internal/service"
)

// EnsureVariantRequest asks for a variant of a question, either floating or bound to a slot.
type EnsureVariantRequest struct {
	QuestionID         *uint  `json:"question_id" validate:"required_without=InstanceQuestionID,omitempty,gt=0"`
	InstanceQuestionID *uint  `json:"instance_question_id" validate:"omitempty,gt=0"`
	UserID             *uint  `json:"user_id" validate:"omitempty,gt=0"`
	Seed               string `json:"variant_seed" validate:"omitempty,max=64,printascii"`
	RequireOpen        bool   `json:"require_open"`
}

// VariantResponse is returned to API clients. The true answer is only included for staff.
type VariantResponse struct {
	ID                 uint                   `json:"id"`
	QuestionID         uint                   `json:"question_id"`
	CourseID           uint                   `json:"course_id"`
	InstanceQuestionID *uint                  `json:"instance_question_id,omitempty"`
	UserID             *uint                  `json:"user_id,omitempty"`
	Seed               string                 `json:"variant_seed"`
	Params             map[string]interface{} `json:"params"`
	TrueAnswer         map[string]interface{} `json:"true_answer,omitempty"`
	Broken             bool                   `json:"broken"`
	Open               bool                   `json:"open"`
	Answerable         bool                   `json:"answerable"`
	CreatedAt          time.Time              `json:"created_at"`
	Panels             *VariantPanels         `json:"panels,omitempty"`
}

// VariantPanels carries sanitised HTML rendered by the question module.
type VariantPanels struct {
	Question    string   `json:"question"`
	Submissions []string `json:"submissions"`
	Answer      string   `json:"answer,omitempty"`
}

// NewVariantResponse converts a Variant model into a DTO.
func NewVariantResponse(model models.Variant, includeAnswer bool) VariantResponse {
	response := VariantResponse{
		ID:                 model.ID,
		QuestionID:         model.QuestionID,
		CourseID:           model.CourseID,
		InstanceQuestionID: model.InstanceQuestionID,
		UserID:             model.UserID,
		Seed:               model.Seed,
		Params:             model.Params,
		Broken:             model.Broken,
		Open:               model.Open,
		Answerable:         model.Answerable(),
		CreatedAt:          model.CreatedAt,
	}
	if response.Params == nil {
		response.Params = map[string]interface{}{}
	}
	if includeAnswer {
		response.TrueAnswer = model.TrueAnswer
	}

	return response
}

// WithPanels attaches rendered HTML to the response.
func (r VariantResponse) WithPanels(rendered service.RenderedVariant) VariantResponse {
	submissions := rendered.SubmissionHTMLs
	if submissions == nil {
		submissions = []string{}
	}
	r.Panels = &VariantPanels{
		Question:    rendered.QuestionHTML,
		Submissions: submissions,
		Answer:      rendered.AnswerHTML,
	}
	r.Answerable = rendered.Answerable

	return r
}

// CourseErrorResponse exposes a recorded question code fault to staff.
type CourseErrorResponse struct {
	ID                uint                   `json:"id"`
	VariantID         *uint                  `json:"variant_id,omitempty"`
	StudentMessage    string                 `json:"student_message"`
	InstructorMessage string                 `json:"instructor_message"`
	Fatal             bool                   `json:"fatal"`
	Context           map[string]interface{} `json:"context"`
	Data              map[string]interface{} `json:"data"`
	CreatedAt         time.Time              `json:"created_at"`
}

// NewCourseErrorResponses converts course error rows into DTOs.
func NewCourseErrorResponses(items []models.CourseError) []CourseErrorResponse {
	responses := make([]CourseErrorResponse, 0, len(items))
	for _, item := range items {
		responses = append(responses, CourseErrorResponse{
			ID:                item.ID,
			VariantID:         item.VariantID,
			StudentMessage:    item.StudentMessage,
			InstructorMessage: item.InstructorMessage,
			Fatal:             item.Fatal,
			Context:           item.Context,
			Data:              item.Data,
			CreatedAt:         item.CreatedAt,
		})
	}
	return responses
}
