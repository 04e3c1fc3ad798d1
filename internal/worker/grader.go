package worker

import (
	"context"
	"errors"
	"strings"

	"github.com/noah-isme/gema-variant-engine/internal/queue"
	"github.com/noah-isme/gema-variant-engine/internal/service"
)

// ErrUnsupportedLanguage indicates the answer names a language without a sandbox image.
var ErrUnsupportedLanguage = errors.New("unsupported language")

// Grader evaluates one externally graded submission. A returned error is
// treated as transient and the message is retried.
type Grader interface {
	Grade(ctx context.Context, message queue.Message) (service.ExternalResult, error)
}

// Graders maps question types to graders.
type Graders map[string]Grader

func (g Graders) lookup(questionType string) (Grader, bool) {
	grader, ok := g[strings.ToLower(strings.TrimSpace(questionType))]
	return grader, ok
}

func stringField(values map[string]interface{}, key string) string {
	if values == nil {
		return ""
	}
	if v, ok := values[key].(string); ok {
		return v
	}
	return ""
}
