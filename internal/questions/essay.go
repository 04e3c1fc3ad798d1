package questions

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/noah-isme/gema-variant-engine/internal/models"
)

// TypeEssay is a free-text question graded by a person or an AI evaluator.
const TypeEssay = "essay"

// Essay collects free text. Config keys: prompt, rubric, max_words.
type Essay struct{}

// NewEssay constructs the essay module.
func NewEssay() *Essay {
	return &Essay{}
}

func (m *Essay) Generate(ctx context.Context, question models.Question, course models.Course, seed string) (VariantData, Issues, error) {
	cfg := map[string]interface{}(question.Config)
	prompt := stringValue(cfg, "prompt")

	var issues Issues
	if strings.TrimSpace(prompt) == "" {
		issues = append(issues, Fatal("question config is missing prompt", nil))
	}

	return VariantData{
		Params:     map[string]interface{}{"prompt": prompt},
		TrueAnswer: map[string]interface{}{"rubric": stringValue(cfg, "rubric")},
		Options:    map[string]interface{}{"max_words": floatOr(cfg, "max_words", 1000)},
	}, issues, nil
}

func (m *Essay) Prepare(ctx context.Context, question models.Question, course models.Course, variant VariantData) (VariantData, Issues, error) {
	return variant, nil, nil
}

func (m *Essay) Parse(ctx context.Context, submission models.Submission, variant models.Variant, question models.Question, course models.Course) (ParseResult, Issues, error) {
	answer := copyMap(submission.SubmittedAnswer)
	text := strings.TrimSpace(stringValue(answer, "text"))
	answer["text"] = text

	formatErrors := map[string]interface{}{}
	words := len(strings.Fields(text))
	switch {
	case words == 0:
		formatErrors["text"] = "Answer is empty"
	case float64(words) > floatOr(variant.Options, "max_words", 1000):
		formatErrors["text"] = fmt.Sprintf("Answer has %d words, above the limit", words)
	}

	return ParseResult{
		SubmittedAnswer: answer,
		FormatErrors:    formatErrors,
		Gradable:        len(formatErrors) == 0,
	}, nil, nil
}

func (m *Essay) Grade(ctx context.Context, submission models.Submission, variant models.Variant, question models.Question, course models.Course) (GradeResult, Issues, error) {
	return GradeResult{}, Issues{Fatal("essay questions cannot be graded internally", nil)}, nil
}

func (m *Essay) Render(ctx context.Context, req RenderRequest) (RenderResult, Issues, error) {
	var result RenderResult
	if req.Selection.Question {
		result.QuestionHTML = fmt.Sprintf(`<div class="question-essay"><p>%s</p><textarea name="text"></textarea></div>`,
			html.EscapeString(stringValue(req.Variant.Params, "prompt")))
	}
	if req.Selection.Submissions {
		for _, submission := range req.Submissions {
			result.SubmissionHTMLs = append(result.SubmissionHTMLs, fmt.Sprintf(`<blockquote class="submission">%s</blockquote>`,
				html.EscapeString(stringValue(submission.SubmittedAnswer, "text"))))
		}
	}
	if req.Selection.Answer {
		result.AnswerHTML = fmt.Sprintf(`<div class="answer">%s</div>`, html.EscapeString(stringValue(req.Variant.TrueAnswer, "rubric")))
	}
	return result, nil, nil
}
