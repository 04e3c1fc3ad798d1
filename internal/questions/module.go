package questions

import (
	"context"

	"github.com/noah-isme/gema-variant-engine/internal/models"
)

// Issue is a fault raised by question code. Issues travel alongside normal
// results so that a call can produce usable data and diagnostics at once.
type Issue struct {
	Message string                 `json:"message"`
	Fatal   bool                   `json:"fatal"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Stack   string                 `json:"stack,omitempty"`
}

func (i Issue) Error() string {
	return i.Message
}

// Issues is the list of faults produced by a single module call.
type Issues []Issue

// HasFatal reports whether any issue invalidates the entity it was raised against.
func (is Issues) HasFatal() bool {
	for _, issue := range is {
		if issue.Fatal {
			return true
		}
	}
	return false
}

// Fatal builds a fatal issue.
func Fatal(message string, data map[string]interface{}) Issue {
	return Issue{Message: message, Fatal: true, Data: data}
}

// Warning builds a non-fatal issue.
func Warning(message string, data map[string]interface{}) Issue {
	return Issue{Message: message, Data: data}
}

// VariantData is the parameter set produced by generate and prepare.
type VariantData struct {
	Params     map[string]interface{}
	TrueAnswer map[string]interface{}
	Options    map[string]interface{}
}

// ParseResult is the normalised form of a submitted answer.
type ParseResult struct {
	SubmittedAnswer map[string]interface{}
	FormatErrors    map[string]interface{}
	Gradable        bool
}

// GradeResult is the outcome of internal grading.
type GradeResult struct {
	Score           float64
	PartialScores   map[string]interface{}
	Feedback        map[string]interface{}
	FormatErrors    map[string]interface{}
	Gradable        bool
	SubmittedAnswer map[string]interface{}
	Params          map[string]interface{}
	TrueAnswer      map[string]interface{}
}

// RenderSelection picks which panels to render.
type RenderSelection struct {
	Question    bool
	Submissions bool
	Answer      bool
}

// RenderRequest carries everything a module needs to render panels.
type RenderRequest struct {
	Selection   RenderSelection
	Variant     models.Variant
	Question    models.Question
	Submission  *models.Submission
	Submissions []models.Submission
	Course      models.Course
	Context     map[string]interface{}
}

// RenderResult holds HTML fragments per panel.
type RenderResult struct {
	QuestionHTML    string
	SubmissionHTMLs []string
	AnswerHTML      string
}

// Module is the capability set implemented by every question type.
//
// A returned error is treated as a fatal issue raised by the module. Modules
// must honour ctx cancellation: calls are bounded by a wall-clock timeout.
//
// Parse, Grade and Render receive copies of stored JSON values with every
// number as float64, whether the value came from the request or was read back
// from the database. Generate and Prepare receive what the module produced.
type Module interface {
	Generate(ctx context.Context, question models.Question, course models.Course, seed string) (VariantData, Issues, error)
	Prepare(ctx context.Context, question models.Question, course models.Course, variant VariantData) (VariantData, Issues, error)
	Parse(ctx context.Context, submission models.Submission, variant models.Variant, question models.Question, course models.Course) (ParseResult, Issues, error)
	Grade(ctx context.Context, submission models.Submission, variant models.Variant, question models.Question, course models.Course) (GradeResult, Issues, error)
	Render(ctx context.Context, req RenderRequest) (RenderResult, Issues, error)
}
