package ai

import "context"

// Answer kinds understood by evaluators.
const (
	KindEssay = "essay"
	KindCode  = "code"
)

// EvaluationInput contains what a model needs to grade one answer.
type EvaluationInput struct {
	Kind          string
	QuestionTitle string
	Prompt        string
	Rubric        string
	Language      string
	Answer        string
	// ProgramOutput and ExpectedOutput are only set for code answers.
	ProgramOutput  string
	ExpectedOutput string
	Notes          string
}

// EvaluationResult is the structured verdict returned by an evaluator.
type EvaluationResult struct {
	Score    float64                `json:"score"`
	Feedback string                 `json:"feedback"`
	Verdict  string                 `json:"verdict"`
	Details  map[string]interface{} `json:"details,omitempty"`
	Raw      map[string]interface{} `json:"raw,omitempty"`
}

// Evaluator grades free-form answers.
type Evaluator interface {
	Evaluate(ctx context.Context, input EvaluationInput) (EvaluationResult, error)
	Provider() string
}
