package questions

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-variant-engine/internal/observability"
)

// Module call phases.
const (
	PhaseGenerate = "generate"
	PhasePrepare  = "prepare"
	PhaseParse    = "parse"
	PhaseGrade    = "grade"
	PhaseRender   = "render"
)

// Invoker runs module calls under a wall-clock bound and converts every way a
// module can fail into fatal issues.
type Invoker struct {
	timeout time.Duration
	logger  zerolog.Logger
}

// NewInvoker constructs an invoker. A zero timeout leaves calls unbounded.
func NewInvoker(timeout time.Duration, logger zerolog.Logger) *Invoker {
	return &Invoker{
		timeout: timeout,
		logger:  logger.With().Str("component", "question_invoker").Logger(),
	}
}

type outcome[T any] struct {
	value    T
	issues   Issues
	err      error
	panicked interface{}
	stack    []byte
}

// Call invokes fn for the given question type and phase. A returned error,
// a panic or a timeout each become one fatal issue; the zero value is
// returned for panics and timeouts.
func Call[T any](ctx context.Context, inv *Invoker, questionType, phase string, fn func(ctx context.Context) (T, Issues, error)) (T, Issues) {
	callCtx := ctx
	cancel := context.CancelFunc(func() {})
	if inv != nil && inv.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, inv.timeout)
	}
	defer cancel()

	start := time.Now()
	done := make(chan outcome[T], 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome[T]{panicked: rec, stack: debug.Stack()}
			}
		}()
		value, issues, err := fn(callCtx)
		done <- outcome[T]{value: value, issues: issues, err: err}
	}()

	var zero T
	select {
	case out := <-done:
		if out.panicked != nil {
			observePluginCall(questionType, phase, "panic", start)
			return zero, Issues{{
				Message: fmt.Sprintf("%s panicked: %v", phase, out.panicked),
				Fatal:   true,
				Stack:   string(out.stack),
			}}
		}

		issues := append(Issues(nil), out.issues...)
		result := "ok"
		if out.err != nil {
			result = "error"
			issues = append(issues, Issue{Message: out.err.Error(), Fatal: true})
		}
		observePluginCall(questionType, phase, result, start)
		return out.value, issues
	case <-callCtx.Done():
		observePluginCall(questionType, phase, "timeout", start)
		message := fmt.Sprintf("%s cancelled: %v", phase, ctx.Err())
		if ctx.Err() == nil {
			message = fmt.Sprintf("%s timed out after %s", phase, inv.timeout)
			inv.logger.Warn().Str("question_type", questionType).Str("phase", phase).Msg("question code timed out")
		}
		return zero, Issues{{Message: message, Fatal: true}}
	}
}

func observePluginCall(questionType, phase, result string, start time.Time) {
	observability.PluginCallDuration().WithLabelValues(questionType, phase, result).Observe(time.Since(start).Seconds())
}
