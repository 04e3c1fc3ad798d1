package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/noah-isme/gema-variant-engine/internal/models"
	"github.com/noah-isme/gema-variant-engine/internal/queue"
	"github.com/noah-isme/gema-variant-engine/internal/service"
	"github.com/noah-isme/gema-variant-engine/pkg/ai"
	dockerexec "github.com/noah-isme/gema-variant-engine/pkg/docker"
)

type fakeExecutor struct {
	requests []dockerexec.ExecutionRequest
	result   dockerexec.ExecutionResult
	err      error
}

func (f *fakeExecutor) Run(_ context.Context, req dockerexec.ExecutionRequest) (dockerexec.ExecutionResult, error) {
	f.requests = append(f.requests, req)
	return f.result, f.err
}

type fakeEvaluator struct {
	inputs []ai.EvaluationInput
	result ai.EvaluationResult
	err    error
}

func (f *fakeEvaluator) Evaluate(_ context.Context, input ai.EvaluationInput) (ai.EvaluationResult, error) {
	f.inputs = append(f.inputs, input)
	return f.result, f.err
}

func (f *fakeEvaluator) Provider() string {
	return "fake"
}

type fakeResults struct {
	completed map[uint]service.ExternalResult
	err       error
}

func (f *fakeResults) Complete(_ context.Context, jobID uint, result service.ExternalResult) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.completed == nil {
		f.completed = map[uint]service.ExternalResult{}
	}
	if _, done := f.completed[jobID]; done {
		return false, nil
	}
	f.completed[jobID] = result
	return true, nil
}

func codeMessage(source string) queue.Message {
	return queue.Message{
		GradingJobID: 10,
		QuestionType: "code",
		Submission: models.Submission{
			ID:              3,
			SubmittedAnswer: datatypes.JSONMap{"source": source, "language": "python"},
			Gradable:        true,
		},
		Variant: models.Variant{
			Params:     datatypes.JSONMap{"language": "python", "stdin": "world", "prompt": "Greet"},
			TrueAnswer: datatypes.JSONMap{"expected_output": "hello world"},
		},
		Question: models.Question{Title: "Greeting", Type: "code", GradingMethod: models.GradingMethodExternal},
	}
}

func TestCodeGraderScoresMatchingOutput(t *testing.T) {
	executor := &fakeExecutor{result: dockerexec.ExecutionResult{Stdout: "hello world\n", Duration: 40 * time.Millisecond}}
	grader := NewCodeGrader(executor, nil, CodeGraderConfig{ExecutionTimeout: time.Second, MemoryLimitMB: 64}, zerolog.Nop())

	result, err := grader.Grade(context.Background(), codeMessage("print('hello', input())"))
	require.NoError(t, err)
	require.True(t, result.Gradable)
	require.Equal(t, 1.0, *result.Score)
	require.Equal(t, true, result.Feedback["passed"])

	require.Len(t, executor.requests, 1)
	req := executor.requests[0]
	require.Equal(t, "python:3.11-alpine", req.Image)
	require.Equal(t, "print('hello', input())", req.Files["main.py"])
	require.Equal(t, "world", req.Files[stdinFile])
	require.True(t, req.NetworkDisabled)
	require.Equal(t, int64(64), req.MemoryLimitMB)
}

func TestCodeGraderTimeoutScoresZero(t *testing.T) {
	executor := &fakeExecutor{
		result: dockerexec.ExecutionResult{TimedOut: true},
		err:    errors.New("execution timed out after 1s"),
	}
	evaluator := &fakeEvaluator{result: ai.EvaluationResult{Feedback: "infinite loop"}}
	grader := NewCodeGrader(executor, evaluator, CodeGraderConfig{}, zerolog.Nop())

	result, err := grader.Grade(context.Background(), codeMessage("while True: pass"))
	require.NoError(t, err)
	require.Equal(t, 0.0, *result.Score)
	require.Equal(t, true, result.Feedback["timed_out"])
	require.Equal(t, "infinite loop", result.Feedback["review"])
	require.Equal(t, ai.KindCode, evaluator.inputs[0].Kind)
}

func TestCodeGraderDaemonErrorIsRetried(t *testing.T) {
	executor := &fakeExecutor{err: errors.New("cannot connect to docker daemon")}
	grader := NewCodeGrader(executor, nil, CodeGraderConfig{}, zerolog.Nop())

	_, err := grader.Grade(context.Background(), codeMessage("print(1)"))
	require.Error(t, err)
}

func TestCodeGraderUnsupportedLanguageFailsJob(t *testing.T) {
	grader := NewCodeGrader(&fakeExecutor{}, nil, CodeGraderConfig{}, zerolog.Nop())
	message := codeMessage("IDENTIFICATION DIVISION.")
	message.Submission.SubmittedAnswer["language"] = "cobol"

	result, err := grader.Grade(context.Background(), message)
	require.NoError(t, err)
	require.True(t, result.Failed)
	require.Nil(t, result.Score)
}

func TestEssayGraderUsesRubric(t *testing.T) {
	evaluator := &fakeEvaluator{result: ai.EvaluationResult{Score: 0.8, Verdict: "good", Details: map[string]interface{}{"clarity": 0.4}}}
	grader := NewEssayGrader(evaluator)

	result, err := grader.Grade(context.Background(), queue.Message{
		GradingJobID: 4,
		QuestionType: "essay",
		Submission:   models.Submission{SubmittedAnswer: datatypes.JSONMap{"text": "Recursion needs a base case."}, Gradable: true},
		Variant: models.Variant{
			Params:     datatypes.JSONMap{"prompt": "Explain recursion"},
			TrueAnswer: datatypes.JSONMap{"rubric": "mentions base case"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, 0.8, *result.Score)
	require.Equal(t, "mentions base case", evaluator.inputs[0].Rubric)
	require.Equal(t, "Recursion needs a base case.", evaluator.inputs[0].Answer)
}

func TestWorkerHandleCompletesJobOnce(t *testing.T) {
	results := &fakeResults{}
	executor := &fakeExecutor{result: dockerexec.ExecutionResult{Stdout: "hello world"}}
	w := NewExternalGradingWorker(nil, Graders{"code": NewCodeGrader(executor, nil, CodeGraderConfig{}, zerolog.Nop())}, results, zerolog.Nop())

	message := codeMessage("print('hello world')")
	require.NoError(t, w.Handle(context.Background(), message))
	require.NoError(t, w.Handle(context.Background(), message))

	require.Len(t, results.completed, 1)
	require.Equal(t, 1.0, *results.completed[10].Score)
}

func TestWorkerHandleNonGradableSubmission(t *testing.T) {
	results := &fakeResults{}
	executor := &fakeExecutor{}
	w := NewExternalGradingWorker(nil, Graders{"code": NewCodeGrader(executor, nil, CodeGraderConfig{}, zerolog.Nop())}, results, zerolog.Nop())

	message := codeMessage("")
	message.Submission.Gradable = false
	message.Submission.FormatErrors = datatypes.JSONMap{"source": "Source code is empty"}

	require.NoError(t, w.Handle(context.Background(), message))
	require.Empty(t, executor.requests)
	require.False(t, results.completed[10].Gradable)
	require.Equal(t, "Source code is empty", results.completed[10].FormatErrors["source"])
}

func TestWorkerHandleErrors(t *testing.T) {
	executor := &fakeExecutor{err: errors.New("daemon down")}
	graders := Graders{"code": NewCodeGrader(executor, nil, CodeGraderConfig{}, zerolog.Nop())}

	w := NewExternalGradingWorker(nil, graders, &fakeResults{}, zerolog.Nop())
	require.Error(t, w.Handle(context.Background(), codeMessage("print(1)")))

	message := codeMessage("print(1)")
	message.QuestionType = "essay"
	require.NoError(t, w.Handle(context.Background(), message))

	executor.err = nil
	w = NewExternalGradingWorker(nil, graders, &fakeResults{err: service.ErrGradingJobNotFound}, zerolog.Nop())
	require.NoError(t, w.Handle(context.Background(), codeMessage("print(1)")))

	w = NewExternalGradingWorker(nil, graders, &fakeResults{err: errors.New("db down")}, zerolog.Nop())
	require.Error(t, w.Handle(context.Background(), codeMessage("print(1)")))
}
