package questions

import (
	"context"
	"fmt"
	"html"
	"math"
	"strings"

	"github.com/noah-isme/gema-variant-engine/internal/models"
)

// TypeCalculation is a numeric question graded in-process.
const TypeCalculation = "calculation"

// Calculation asks for the result of combining two seeded integer operands.
//
// Question config keys: operation ("add" or "multiply"), min, max, tolerance.
type Calculation struct{}

// NewCalculation constructs the calculation module.
func NewCalculation() *Calculation {
	return &Calculation{}
}

func (m *Calculation) Generate(ctx context.Context, question models.Question, course models.Course, seed string) (VariantData, Issues, error) {
	cfg := map[string]interface{}(question.Config)
	operation := strings.ToLower(stringValue(cfg, "operation"))
	if operation == "" {
		operation = "add"
	}

	var issues Issues
	if operation != "add" && operation != "multiply" {
		issues = append(issues, Fatal(fmt.Sprintf("unsupported operation %q", operation), map[string]interface{}{"operation": operation}))
	}

	lo := int(floatOr(cfg, "min", 1))
	hi := int(floatOr(cfg, "max", 10))
	if hi < lo {
		issues = append(issues, Warning("max is below min, swapping bounds", map[string]interface{}{"min": lo, "max": hi}))
		lo, hi = hi, lo
	}

	rng := RandFromSeed(seed)
	a := lo + rng.Intn(hi-lo+1)
	b := lo + rng.Intn(hi-lo+1)

	c := a + b
	if operation == "multiply" {
		c = a * b
	}

	return VariantData{
		Params:     map[string]interface{}{"a": a, "b": b, "operation": operation},
		TrueAnswer: map[string]interface{}{"c": c},
		Options:    map[string]interface{}{"tolerance": floatOr(cfg, "tolerance", 0)},
	}, issues, nil
}

func (m *Calculation) Prepare(ctx context.Context, question models.Question, course models.Course, variant VariantData) (VariantData, Issues, error) {
	if _, ok := toFloat(variant.TrueAnswer["c"]); !ok {
		return variant, Issues{Fatal("true answer is missing a numeric value for c", nil)}, nil
	}

	options := copyMap(variant.Options)
	options["answer_label"] = "c"
	return VariantData{
		Params:     copyMap(variant.Params),
		TrueAnswer: copyMap(variant.TrueAnswer),
		Options:    options,
	}, nil, nil
}

func (m *Calculation) Parse(ctx context.Context, submission models.Submission, variant models.Variant, question models.Question, course models.Course) (ParseResult, Issues, error) {
	answer := map[string]interface{}(submission.SubmittedAnswer)
	formatErrors := map[string]interface{}{}

	raw, present := answer["c"]
	value, ok := toFloat(raw)
	switch {
	case !present || raw == nil || stringValue(answer, "c") == "":
		formatErrors["c"] = "No answer submitted"
	case !ok || math.IsNaN(value) || math.IsInf(value, 0):
		formatErrors["c"] = "Answer must be a number"
	}

	parsed := copyMap(answer)
	if len(formatErrors) == 0 {
		parsed["c"] = value
	}

	return ParseResult{
		SubmittedAnswer: parsed,
		FormatErrors:    formatErrors,
		Gradable:        len(formatErrors) == 0,
	}, nil, nil
}

func (m *Calculation) Grade(ctx context.Context, submission models.Submission, variant models.Variant, question models.Question, course models.Course) (GradeResult, Issues, error) {
	result := GradeResult{
		SubmittedAnswer: submission.SubmittedAnswer,
		FormatErrors:    submission.FormatErrors,
		Params:          variant.Params,
		TrueAnswer:      variant.TrueAnswer,
	}
	if !submission.Gradable {
		return result, nil, nil
	}

	expected, ok := toFloat(variant.TrueAnswer["c"])
	if !ok {
		return result, Issues{Fatal("variant has no numeric true answer", nil)}, nil
	}
	submitted, ok := toFloat(submission.SubmittedAnswer["c"])
	if !ok {
		result.FormatErrors = map[string]interface{}{"c": "Answer must be a number"}
		return result, nil, nil
	}

	tolerance := floatOr(variant.Options, "tolerance", 0)
	correct := math.Abs(submitted-expected) <= tolerance+1e-9

	score := 0.0
	if correct {
		score = 1
	}

	result.Gradable = true
	result.Score = score
	result.PartialScores = map[string]interface{}{"c": map[string]interface{}{"score": score, "weight": 1}}
	result.Feedback = map[string]interface{}{"correct": correct}
	return result, nil, nil
}

func (m *Calculation) Render(ctx context.Context, req RenderRequest) (RenderResult, Issues, error) {
	params := map[string]interface{}(req.Variant.Params)
	symbol := "+"
	if stringValue(params, "operation") == "multiply" {
		symbol = "&times;"
	}

	var result RenderResult
	if req.Selection.Question {
		result.QuestionHTML = fmt.Sprintf(
			`<div class="question-calculation"><p>Compute <strong>c = %s %s %s</strong>.</p><input name="c" type="text"></div>`,
			html.EscapeString(stringValue(params, "a")), symbol, html.EscapeString(stringValue(params, "b")),
		)
	}
	if req.Selection.Submissions {
		for _, submission := range req.Submissions {
			status := "invalid"
			if submission.Gradable {
				status = "submitted"
			}
			result.SubmissionHTMLs = append(result.SubmissionHTMLs, fmt.Sprintf(
				`<div class="submission"><span class="badge">%s</span> c = %s</div>`,
				status, html.EscapeString(stringValue(submission.SubmittedAnswer, "c")),
			))
		}
	}
	if req.Selection.Answer {
		result.AnswerHTML = fmt.Sprintf(`<div class="answer">c = %s</div>`, html.EscapeString(stringValue(req.Variant.TrueAnswer, "c")))
	}
	return result, nil, nil
}
