package worker

import (
	"context"
	"fmt"

	"github.com/noah-isme/gema-variant-engine/internal/queue"
	"github.com/noah-isme/gema-variant-engine/internal/service"
	"github.com/noah-isme/gema-variant-engine/pkg/ai"
)

// EssayGrader scores essays with a language model against the variant rubric.
type EssayGrader struct {
	evaluator ai.Evaluator
}

// NewEssayGrader constructs an essay grader.
func NewEssayGrader(evaluator ai.Evaluator) *EssayGrader {
	return &EssayGrader{evaluator: evaluator}
}

func (g *EssayGrader) Grade(ctx context.Context, message queue.Message) (service.ExternalResult, error) {
	result, err := g.evaluator.Evaluate(ctx, ai.EvaluationInput{
		Kind:          ai.KindEssay,
		QuestionTitle: message.Question.Title,
		Prompt:        stringField(message.Variant.Params, "prompt"),
		Rubric:        stringField(message.Variant.TrueAnswer, "rubric"),
		Answer:        stringField(message.Submission.SubmittedAnswer, "text"),
	})
	if err != nil {
		return service.ExternalResult{}, fmt.Errorf("evaluate essay: %w", err)
	}

	score := result.Score
	feedback := map[string]interface{}{
		"feedback": result.Feedback,
		"verdict":  result.Verdict,
		"provider": g.evaluator.Provider(),
	}
	return service.ExternalResult{
		Score:         &score,
		Gradable:      true,
		PartialScores: result.Details,
		Feedback:      feedback,
	}, nil
}
