package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/noah-isme/gema-variant-engine/internal/models"
	"github.com/noah-isme/gema-variant-engine/internal/observability"
	"github.com/noah-isme/gema-variant-engine/internal/questions"
	"github.com/noah-isme/gema-variant-engine/internal/repository"
)

// Student-facing messages stored with course errors, one per call site.
const (
	StudentMessageVariant = "Error creating question variant"
	StudentMessageParse   = "Error parsing submission"
	StudentMessageGrade   = "Error grading submission"
	StudentMessageRender  = "Error rendering question"
)

// CourseErrorRecord describes where a batch of issues was raised.
type CourseErrorRecord struct {
	CourseID       uint
	VariantID      *uint
	AuthnUserID    uint
	StudentMessage string
	Context        map[string]interface{}
}

// ErrorSink persists issues raised by question code as course errors.
type ErrorSink struct {
	logger zerolog.Logger
}

// NewErrorSink constructs an error sink.
func NewErrorSink(logger zerolog.Logger) *ErrorSink {
	return &ErrorSink{logger: logger.With().Str("component", "error_sink").Logger()}
}

// Record writes one course error per issue. Pass a repository bound to the
// active transaction so that a rollback discards the errors with the parent
// operation. A write failure is returned and must abort the caller. Counting
// is left to Observe once the errors are durable.
func (s *ErrorSink) Record(ctx context.Context, repo repository.CourseErrorRepository, issues questions.Issues, record CourseErrorRecord) error {
	for _, issue := range issues {
		courseError := models.CourseError{
			CourseID:          record.CourseID,
			VariantID:         record.VariantID,
			AuthnUserID:       record.AuthnUserID,
			InstructorMessage: issue.Message,
			StudentMessage:    record.StudentMessage,
			CourseCaused:      true,
			Fatal:             issue.Fatal,
			Context:           jsonMap(record.Context),
			Data:              diagnostics(issue),
		}

		if err := repo.Create(ctx, &courseError); err != nil {
			return fmt.Errorf("record course error: %w", err)
		}

		event := s.logger.Warn().
			Uint("course_id", record.CourseID).
			Bool("fatal", issue.Fatal).
			Str("student_message", record.StudentMessage)
		if record.VariantID != nil {
			event = event.Uint("variant_id", *record.VariantID)
		}
		event.Msg(issue.Message)
	}
	return nil
}

// Observe counts recorded issues.
func (s *ErrorSink) Observe(issues questions.Issues, studentMessage string) {
	for _, issue := range issues {
		observability.CourseErrors().WithLabelValues(studentMessage, strconv.FormatBool(issue.Fatal)).Inc()
	}
}

func diagnostics(issue questions.Issue) datatypes.JSONMap {
	data := datatypes.JSONMap{}
	if issue.Stack != "" {
		data["stack"] = issue.Stack
	}
	if len(issue.Data) > 0 {
		if _, err := json.Marshal(issue.Data); err != nil {
			data["data"] = fmt.Sprintf("%v", issue.Data)
			data["data_error"] = err.Error()
		} else {
			data["data"] = issue.Data
		}
	}
	return data
}
