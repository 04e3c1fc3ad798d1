package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-variant-engine/internal/models"
	"github.com/noah-isme/gema-variant-engine/internal/questions"
	"github.com/noah-isme/gema-variant-engine/internal/repository"
)

// RenderVariantRequest selects which panels of a variant to render.
type RenderVariantRequest struct {
	VariantID    uint
	SubmissionID *uint
	AuthnUserID  uint
	Selection    questions.RenderSelection
	Context      map[string]interface{}
}

// RenderedVariant is sanitised HTML for a variant. Broken variants are never
// answerable and the caller must not show an input form for them.
type RenderedVariant struct {
	VariantID       uint
	Broken          bool
	Answerable      bool
	QuestionHTML    string
	SubmissionHTMLs []string
	AnswerHTML      string
}

// RenderService renders variants outside any write transaction.
type RenderService interface {
	Render(ctx context.Context, req RenderVariantRequest) (RenderedVariant, error)
}

type renderService struct {
	store    repository.Store
	registry *questions.Registry
	invoker  *questions.Invoker
	sink     *ErrorSink
	policy   *bluemonday.Policy
	logger   zerolog.Logger
}

// NewRenderService constructs the render service.
func NewRenderService(store repository.Store, registry *questions.Registry, invoker *questions.Invoker, sink *ErrorSink, logger zerolog.Logger) RenderService {
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("class").Globally()
	policy.AllowElements("input", "textarea")
	policy.AllowAttrs("name", "type", "rows", "cols", "placeholder").OnElements("input", "textarea")

	return &renderService{
		store:    store,
		registry: registry,
		invoker:  invoker,
		sink:     sink,
		policy:   policy,
		logger:   logger.With().Str("component", "render_service").Logger(),
	}
}

func (s *renderService) Render(ctx context.Context, req RenderVariantRequest) (RenderedVariant, error) {
	repos := s.store.Repositories()

	variant, err := repos.Variants.GetByID(ctx, req.VariantID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RenderedVariant{}, ErrVariantNotFound
		}
		return RenderedVariant{}, err
	}
	question, err := repos.Questions.GetByID(ctx, variant.QuestionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return RenderedVariant{}, ErrQuestionNotFound
		}
		return RenderedVariant{}, err
	}
	module, err := s.registry.Resolve(question.Type)
	if err != nil {
		return RenderedVariant{}, err
	}

	submissions, err := repos.Submissions.ListByVariant(ctx, variant.ID)
	if err != nil {
		return RenderedVariant{}, fmt.Errorf("list submissions: %w", err)
	}

	var current *models.Submission
	for i := range submissions {
		if req.SubmissionID != nil && submissions[i].ID == *req.SubmissionID {
			current = &submissions[i]
			break
		}
	}
	if current == nil && req.SubmissionID == nil && len(submissions) > 0 {
		current = &submissions[len(submissions)-1]
	}

	plainSubmissions := make([]models.Submission, len(submissions))
	for i := range submissions {
		plainSubmissions[i] = plainSubmission(submissions[i])
	}
	var plainCurrent *models.Submission
	if current != nil {
		converted := plainSubmission(*current)
		plainCurrent = &converted
	}

	renderReq := questions.RenderRequest{
		Selection:   req.Selection,
		Variant:     plainVariant(variant),
		Question:    question,
		Submission:  plainCurrent,
		Submissions: plainSubmissions,
		Course:      question.Course,
		Context:     req.Context,
	}
	rendered, issues := questions.Call(ctx, s.invoker, question.Type, questions.PhaseRender, func(ctx context.Context) (questions.RenderResult, questions.Issues, error) {
		return module.Render(ctx, renderReq)
	})

	details := map[string]interface{}{
		"variant_id":  variant.ID,
		"question_id": question.ID,
		"course_id":   question.CourseID,
	}
	if current != nil {
		details["submission_id"] = current.ID
	}
	if err := s.sink.Record(ctx, repos.CourseErrors, issues, CourseErrorRecord{
		CourseID:       question.CourseID,
		VariantID:      &variant.ID,
		AuthnUserID:    req.AuthnUserID,
		StudentMessage: StudentMessageRender,
		Context:        details,
	}); err != nil {
		return RenderedVariant{}, err
	}
	s.sink.Observe(issues, StudentMessageRender)

	output := RenderedVariant{
		VariantID:    variant.ID,
		Broken:       variant.Broken,
		Answerable:   variant.Answerable(),
		QuestionHTML: s.policy.Sanitize(rendered.QuestionHTML),
		AnswerHTML:   s.policy.Sanitize(rendered.AnswerHTML),
	}
	for _, fragment := range rendered.SubmissionHTMLs {
		output.SubmissionHTMLs = append(output.SubmissionHTMLs, s.policy.Sanitize(fragment))
	}
	return output, nil
}
