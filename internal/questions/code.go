package questions

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/noah-isme/gema-variant-engine/internal/models"
)

// TypeCode is a programming question graded by the external sandbox worker.
const TypeCode = "code"

// CodeLanguages lists the languages accepted by code questions.
var CodeLanguages = []string{"python", "javascript", "go"}

// Code collects program source and leaves grading to an external worker.
//
// Question config keys: prompt, language, expected_output, stdin, max_source_bytes.
type Code struct{}

// NewCode constructs the code module.
func NewCode() *Code {
	return &Code{}
}

func (m *Code) Generate(ctx context.Context, question models.Question, course models.Course, seed string) (VariantData, Issues, error) {
	cfg := map[string]interface{}(question.Config)
	language := strings.ToLower(stringValue(cfg, "language"))
	if language == "" {
		language = "python"
	}

	var issues Issues
	if !isCodeLanguage(language) {
		issues = append(issues, Fatal(fmt.Sprintf("unsupported language %q", language), map[string]interface{}{"language": language}))
	}
	if _, ok := cfg["expected_output"]; !ok {
		issues = append(issues, Fatal("question config is missing expected_output", nil))
	}

	return VariantData{
		Params: map[string]interface{}{
			"prompt":   stringValue(cfg, "prompt"),
			"language": language,
			"stdin":    stringValue(cfg, "stdin"),
		},
		TrueAnswer: map[string]interface{}{"expected_output": stringValue(cfg, "expected_output")},
		Options:    map[string]interface{}{"max_source_bytes": floatOr(cfg, "max_source_bytes", 65536)},
	}, issues, nil
}

func (m *Code) Prepare(ctx context.Context, question models.Question, course models.Course, variant VariantData) (VariantData, Issues, error) {
	return variant, nil, nil
}

func (m *Code) Parse(ctx context.Context, submission models.Submission, variant models.Variant, question models.Question, course models.Course) (ParseResult, Issues, error) {
	answer := copyMap(submission.SubmittedAnswer)
	formatErrors := map[string]interface{}{}

	source := stringValue(answer, "source")
	if strings.TrimSpace(source) == "" {
		formatErrors["source"] = "Source code is empty"
	}
	limit := floatOr(variant.Options, "max_source_bytes", 65536)
	if float64(len(source)) > limit {
		formatErrors["source"] = fmt.Sprintf("Source code exceeds %d bytes", int(limit))
	}

	language := strings.ToLower(stringValue(answer, "language"))
	if language == "" {
		language = stringValue(variant.Params, "language")
	}
	if !isCodeLanguage(language) {
		formatErrors["language"] = fmt.Sprintf("Unsupported language %q", language)
	}
	answer["language"] = language

	return ParseResult{
		SubmittedAnswer: answer,
		FormatErrors:    formatErrors,
		Gradable:        len(formatErrors) == 0,
	}, nil, nil
}

func (m *Code) Grade(ctx context.Context, submission models.Submission, variant models.Variant, question models.Question, course models.Course) (GradeResult, Issues, error) {
	return GradeResult{}, Issues{Fatal("code questions are graded by the external worker", nil)}, nil
}

func (m *Code) Render(ctx context.Context, req RenderRequest) (RenderResult, Issues, error) {
	var result RenderResult
	if req.Selection.Question {
		result.QuestionHTML = fmt.Sprintf(
			`<div class="question-code"><p>%s</p><p>Language: <code>%s</code></p><textarea name="source"></textarea></div>`,
			html.EscapeString(stringValue(req.Variant.Params, "prompt")),
			html.EscapeString(stringValue(req.Variant.Params, "language")),
		)
	}
	if req.Selection.Submissions {
		for _, submission := range req.Submissions {
			result.SubmissionHTMLs = append(result.SubmissionHTMLs, fmt.Sprintf(
				`<pre class="submission"><code>%s</code></pre>`,
				html.EscapeString(stringValue(submission.SubmittedAnswer, "source")),
			))
		}
	}
	if req.Selection.Answer {
		result.AnswerHTML = fmt.Sprintf(`<pre class="answer">%s</pre>`, html.EscapeString(stringValue(req.Variant.TrueAnswer, "expected_output")))
	}
	return result, nil, nil
}

func isCodeLanguage(language string) bool {
	for _, candidate := range CodeLanguages {
		if candidate == language {
			return true
		}
	}
	return false
}
