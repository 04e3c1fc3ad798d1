package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-variant-engine/internal/queue"
	"github.com/noah-isme/gema-variant-engine/internal/service"
	"github.com/noah-isme/gema-variant-engine/pkg/ai"
	dockerexec "github.com/noah-isme/gema-variant-engine/pkg/docker"
)

const stdinFile = "input.txt"

// CodeGraderConfig describes sandbox limits.
type CodeGraderConfig struct {
	ExecutionTimeout time.Duration
	MemoryLimitMB    int
	CPUShares        int
}

type languageConfig struct {
	Image    string
	FileName string
	Command  string
}

// CodeGrader runs code answers in a container and compares stdout with the
// expected output. An optional evaluator adds review feedback without
// changing the score.
type CodeGrader struct {
	executor  dockerexec.Executor
	evaluator ai.Evaluator
	config    CodeGraderConfig
	languages map[string]languageConfig
	logger    zerolog.Logger
}

// NewCodeGrader constructs a code grader. evaluator may be nil.
func NewCodeGrader(executor dockerexec.Executor, evaluator ai.Evaluator, cfg CodeGraderConfig, logger zerolog.Logger) *CodeGrader {
	return &CodeGrader{
		executor:  executor,
		evaluator: evaluator,
		config:    cfg,
		logger:    logger.With().Str("component", "code_grader").Logger(),
		languages: map[string]languageConfig{
			"python": {
				Image:    "python:3.11-alpine",
				FileName: "main.py",
				Command:  "python main.py",
			},
			"javascript": {
				Image:    "node:20-alpine",
				FileName: "main.js",
				Command:  "node main.js",
			},
			"go": {
				Image:    "golang:1.22-alpine",
				FileName: "main.go",
				Command:  "go run main.go",
			},
		},
	}
}

func (g *CodeGrader) Grade(ctx context.Context, message queue.Message) (service.ExternalResult, error) {
	answer := map[string]interface{}(message.Submission.SubmittedAnswer)
	source := stringField(answer, "source")
	language := strings.ToLower(stringField(answer, "language"))
	if language == "" {
		language = strings.ToLower(stringField(message.Variant.Params, "language"))
	}

	lang, ok := g.languages[language]
	if !ok {
		return service.ExternalResult{
			Failed:   true,
			Feedback: map[string]interface{}{"error": fmt.Sprintf("%s: %q", ErrUnsupportedLanguage, language)},
		}, nil
	}

	run, execErr := g.executor.Run(ctx, dockerexec.ExecutionRequest{
		Image: lang.Image,
		Cmd:   []string{"sh", "-c", lang.Command + " < " + stdinFile},
		Files: map[string]string{
			lang.FileName: source,
			stdinFile:     stringField(message.Variant.Params, "stdin"),
		},
		Timeout:         g.config.ExecutionTimeout,
		WorkingDir:      "/workspace",
		MemoryLimitMB:   int64(g.config.MemoryLimitMB),
		CPUShares:       int64(g.config.CPUShares),
		NetworkDisabled: true,
	})
	if execErr != nil && !run.TimedOut {
		return service.ExternalResult{}, fmt.Errorf("run submission %d: %w", message.Submission.ID, execErr)
	}

	expected := strings.TrimSpace(stringField(message.Variant.TrueAnswer, "expected_output"))
	actual := strings.TrimSpace(run.Stdout)
	passed := !run.TimedOut && run.ExitCode == 0 && actual == expected

	score := 0.0
	if passed {
		score = 1
	}

	feedback := map[string]interface{}{
		"stdout":      truncate(run.Stdout, 4096),
		"stderr":      truncate(run.Stderr, 4096),
		"exit_code":   run.ExitCode,
		"timed_out":   run.TimedOut,
		"duration_ms": run.Duration.Milliseconds(),
		"passed":      passed,
	}

	if g.evaluator != nil {
		review, err := g.evaluator.Evaluate(ctx, ai.EvaluationInput{
			Kind:           ai.KindCode,
			QuestionTitle:  message.Question.Title,
			Prompt:         stringField(message.Variant.Params, "prompt"),
			Language:       language,
			Answer:         source,
			ProgramOutput:  run.Stdout,
			ExpectedOutput: expected,
		})
		if err != nil {
			g.logger.Warn().Err(err).Uint("grading_job_id", message.GradingJobID).Msg("code review unavailable")
		} else {
			feedback["review"] = review.Feedback
			feedback["review_provider"] = g.evaluator.Provider()
		}
	}

	return service.ExternalResult{
		Score:         &score,
		Gradable:      true,
		PartialScores: map[string]interface{}{"output": score},
		Feedback:      feedback,
	}, nil
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}
