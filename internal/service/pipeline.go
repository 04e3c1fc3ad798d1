package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-variant-engine/internal/models"
	"github.com/noah-isme/gema-variant-engine/internal/observability"
	"github.com/noah-isme/gema-variant-engine/internal/questions"
	"github.com/noah-isme/gema-variant-engine/internal/repository"
)

// pipeline holds the transactional steps shared by the public services. Each
// step runs against repositories bound to the caller's transaction.
type pipeline struct {
	registry *questions.Registry
	invoker  *questions.Invoker
	sink     *ErrorSink
	now      func() time.Time
}

// tally holds metric updates made inside a transaction until it commits.
type tally []func()

func (t *tally) add(fn func()) {
	*t = append(*t, fn)
}

func (t tally) flush() {
	for _, fn := range t {
		fn()
	}
}

func newPipeline(registry *questions.Registry, invoker *questions.Invoker, sink *ErrorSink) *pipeline {
	return &pipeline{
		registry: registry,
		invoker:  invoker,
		sink:     sink,
		now:      time.Now,
	}
}

type createVariantInput struct {
	Question           models.Question
	Course             models.Course
	InstanceQuestionID *uint
	UserID             *uint
	AuthnUserID        uint
	Seed               string
}

func (p *pipeline) createVariant(ctx context.Context, repos repository.Repositories, counts *tally, module questions.Module, in createVariantInput) (models.Variant, error) {
	seed := in.Seed
	if seed == "" {
		seed = questions.NewSeed()
	}

	question, course := in.Question, in.Course
	data, issues := questions.Call(ctx, p.invoker, question.Type, questions.PhaseGenerate, func(ctx context.Context) (questions.VariantData, questions.Issues, error) {
		return module.Generate(ctx, question, course, seed)
	})

	if !issues.HasFatal() {
		prepared, prepareIssues := questions.Call(ctx, p.invoker, question.Type, questions.PhasePrepare, func(ctx context.Context) (questions.VariantData, questions.Issues, error) {
			return module.Prepare(ctx, question, course, cloneVariantData(data))
		})
		issues = append(issues, prepareIssues...)
		if !prepareIssues.HasFatal() {
			data = prepared
		}
	}

	variant := models.Variant{
		QuestionID:         question.ID,
		CourseID:           course.ID,
		InstanceQuestionID: in.InstanceQuestionID,
		UserID:             in.UserID,
		AuthnUserID:        in.AuthnUserID,
		Seed:               seed,
		Params:             jsonMap(data.Params),
		TrueAnswer:         jsonMap(data.TrueAnswer),
		Options:            jsonMap(data.Options),
		Broken:             issues.HasFatal(),
		Open:               true,
	}
	if err := repos.Variants.Create(ctx, &variant); err != nil {
		return models.Variant{}, fmt.Errorf("insert variant: %w", err)
	}

	details := map[string]interface{}{
		"question_id":  question.ID,
		"course_id":    course.ID,
		"variant_seed": seed,
	}
	if in.InstanceQuestionID != nil {
		details["instance_question_id"] = *in.InstanceQuestionID
	}
	if err := p.sink.Record(ctx, repos.CourseErrors, issues, CourseErrorRecord{
		CourseID:       question.CourseID,
		VariantID:      &variant.ID,
		AuthnUserID:    in.AuthnUserID,
		StudentMessage: StudentMessageVariant,
		Context:        details,
	}); err != nil {
		return models.Variant{}, err
	}

	broken := strconv.FormatBool(variant.Broken)
	counts.add(func() {
		p.sink.Observe(issues, StudentMessageVariant)
		observability.VariantsCreated().WithLabelValues(question.Type, broken).Inc()
	})

	return variant, nil
}

func (p *pipeline) saveSubmission(ctx context.Context, repos repository.Repositories, counts *tally, module questions.Module, req SaveSubmissionRequest) (models.Submission, error) {
	submission := req.Submission
	submission.ID = 0
	submission.VariantID = req.Variant.ID
	submission.RawSubmittedAnswer = jsonMap(cloneMap(submission.SubmittedAnswer))
	submission.SubmittedAnswer = jsonMap(submission.SubmittedAnswer)
	submission.Gradable = true

	input := plainSubmission(submission)
	input.SubmittedAnswer = jsonMap(input.SubmittedAnswer)
	input.RawSubmittedAnswer = jsonMap(input.RawSubmittedAnswer)

	variant, question, course := req.Variant, req.Question, req.Course
	moduleVariant := plainVariant(variant)
	parsed, issues := questions.Call(ctx, p.invoker, question.Type, questions.PhaseParse, func(ctx context.Context) (questions.ParseResult, questions.Issues, error) {
		return module.Parse(ctx, input, moduleVariant, question, course)
	})

	if parsed.SubmittedAnswer != nil {
		submission.SubmittedAnswer = jsonMap(parsed.SubmittedAnswer)
	}
	submission.FormatErrors = jsonMap(parsed.FormatErrors)
	submission.Gradable = parsed.Gradable

	if err := p.sink.Record(ctx, repos.CourseErrors, issues, CourseErrorRecord{
		CourseID:       question.CourseID,
		VariantID:      &variant.ID,
		AuthnUserID:    submission.AuthnUserID,
		StudentMessage: StudentMessageParse,
		Context: map[string]interface{}{
			"variant_id":           variant.ID,
			"question_id":          question.ID,
			"course_id":            course.ID,
			"raw_submitted_answer": map[string]interface{}(submission.RawSubmittedAnswer),
		},
	}); err != nil {
		return models.Submission{}, err
	}
	if issues.HasFatal() {
		submission.Gradable = false
	}

	if err := repos.Submissions.Create(ctx, &submission); err != nil {
		return models.Submission{}, fmt.Errorf("insert submission: %w", err)
	}
	gradable := strconv.FormatBool(submission.Gradable)
	counts.add(func() {
		p.sink.Observe(issues, StudentMessageParse)
		observability.SubmissionsSaved().WithLabelValues(question.Type, gradable).Inc()
	})
	return submission, nil
}

type gradeVariantInput struct {
	Variant           models.Variant
	Question          models.Question
	Course            models.Course
	AuthnUserID       uint
	CheckSubmissionID *uint
}

// gradeVariant returns a nil job when there is nothing to grade.
func (p *pipeline) gradeVariant(ctx context.Context, repos repository.Repositories, counts *tally, module questions.Module, in gradeVariantInput) (*models.GradingJob, error) {
	submission, err := repos.Submissions.SelectForGrading(ctx, in.Variant.ID, in.CheckSubmissionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("select submission for grading: %w", err)
	}

	requestedAt := p.now()
	job := models.GradingJob{
		SubmissionID:       submission.ID,
		AuthnUserID:        in.AuthnUserID,
		GradingMethod:      in.Question.GradingMethod,
		Gradable:           submission.Gradable,
		GradingRequestedAt: requestedAt,
	}

	var issues questions.Issues
	switch in.Question.GradingMethod {
	case models.GradingMethodInternal:
		variant, question, course := plainVariant(in.Variant), in.Question, in.Course
		input := plainSubmission(submission)
		var graded questions.GradeResult
		graded, issues = questions.Call(ctx, p.invoker, question.Type, questions.PhaseGrade, func(ctx context.Context) (questions.GradeResult, questions.Issues, error) {
			return module.Grade(ctx, input, variant, question, course)
		})

		job.Status = models.GradingJobStatusGraded
		job.Gradable = graded.Gradable && !issues.HasFatal()
		if job.Gradable {
			score := graded.Score
			job.Score = &score
		}
		job.PartialScores = jsonMap(graded.PartialScores)
		job.Feedback = jsonMap(graded.Feedback)
		job.FormatErrors = jsonMap(graded.FormatErrors)
		gradedAt := requestedAt
		job.GradedAt = &gradedAt
	case models.GradingMethodExternal, models.GradingMethodManual:
		job.Status = models.GradingJobStatusPending
		job.PartialScores = jsonMap(nil)
		job.Feedback = jsonMap(nil)
		job.FormatErrors = jsonMap(nil)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownGradingMethod, in.Question.GradingMethod)
	}

	if err := p.sink.Record(ctx, repos.CourseErrors, issues, CourseErrorRecord{
		CourseID:       in.Question.CourseID,
		VariantID:      &in.Variant.ID,
		AuthnUserID:    in.AuthnUserID,
		StudentMessage: StudentMessageGrade,
		Context: map[string]interface{}{
			"submission_id": submission.ID,
			"variant_id":    in.Variant.ID,
			"question_id":   in.Question.ID,
			"course_id":     in.Course.ID,
		},
	}); err != nil {
		return nil, err
	}

	if err := repos.GradingJobs.Create(ctx, &job); err != nil {
		return nil, fmt.Errorf("insert grading job: %w", err)
	}
	method, status := job.GradingMethod, job.Status
	counts.add(func() {
		p.sink.Observe(issues, StudentMessageGrade)
		observability.GradingJobs().WithLabelValues(method, status).Inc()
	})
	job.Submission = submission
	return &job, nil
}

func cloneVariantData(data questions.VariantData) questions.VariantData {
	return questions.VariantData{
		Params:     cloneMap(data.Params),
		TrueAnswer: cloneMap(data.TrueAnswer),
		Options:    cloneMap(data.Options),
	}
}
