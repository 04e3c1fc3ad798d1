package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-variant-engine/internal/models"
	"github.com/noah-isme/gema-variant-engine/internal/questions"
)

func TestGradeVariantWithoutSubmissionsIsNoop(t *testing.T) {
	f := newEngineFixture(t, models.GradingMethodInternal)
	variant := f.floatingVariant(t)

	job, err := f.grading.GradeVariant(context.Background(), GradeVariantRequest{
		Variant: variant, Question: f.question, Course: f.course, AuthnUserID: 1,
	})
	require.NoError(t, err)
	require.Nil(t, job)
	require.Equal(t, 0, f.module.Calls(questions.PhaseGrade))
	require.EqualValues(t, 0, f.count(t, &models.GradingJob{}))
	require.EqualValues(t, 0, f.count(t, &models.CourseError{}))
}

func TestGradeVariantStaleCheckSubmissionIsNoop(t *testing.T) {
	f := newEngineFixture(t, models.GradingMethodInternal)
	variant := f.floatingVariant(t)

	older, err := f.submissions.SaveSubmission(context.Background(), f.saveRequest(variant, map[string]interface{}{"answer": 6}))
	require.NoError(t, err)
	_, err = f.submissions.SaveSubmission(context.Background(), f.saveRequest(variant, map[string]interface{}{"answer": 7}))
	require.NoError(t, err)

	job, err := f.grading.GradeVariant(context.Background(), GradeVariantRequest{
		Variant: variant, Question: f.question, Course: f.course, AuthnUserID: 1, CheckSubmissionID: &older,
	})
	require.NoError(t, err)
	require.Nil(t, job)
	require.EqualValues(t, 0, f.count(t, &models.GradingJob{}))
}

func TestGradeVariantGradesLatestSubmission(t *testing.T) {
	f := newEngineFixture(t, models.GradingMethodInternal)
	variant := f.floatingVariant(t)
	f.module.grade = func(submission models.Submission) (questions.GradeResult, questions.Issues, error) {
		score := 0.0
		if submission.SubmittedAnswer["answer"] == 7.0 {
			score = 1.0
		}
		return questions.GradeResult{
			Score:         score,
			PartialScores: map[string]interface{}{"answer": score},
			Feedback:      map[string]interface{}{"hint": "add the numbers"},
			Gradable:      true,
		}, nil, nil
	}

	_, err := f.submissions.SaveSubmission(context.Background(), f.saveRequest(variant, map[string]interface{}{"answer": 6}))
	require.NoError(t, err)
	latest, err := f.submissions.SaveSubmission(context.Background(), f.saveRequest(variant, map[string]interface{}{"answer": 7}))
	require.NoError(t, err)

	job, err := f.grading.GradeVariant(context.Background(), GradeVariantRequest{
		Variant: variant, Question: f.question, Course: f.course, AuthnUserID: 9, CheckSubmissionID: &latest,
	})
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, latest, job.SubmissionID)
	require.Equal(t, models.GradingJobStatusGraded, job.Status)
	require.Equal(t, uint(9), job.AuthnUserID)
	require.NotNil(t, job.Score)
	require.Equal(t, 1.0, *job.Score)
	require.NotNil(t, job.GradedAt)
	require.Empty(t, f.producer.Messages())
}

func TestGradeVariantFatalGradeMarksNotGradable(t *testing.T) {
	f := newEngineFixture(t, models.GradingMethodInternal)
	variant := f.floatingVariant(t)
	f.module.grade = func(models.Submission) (questions.GradeResult, questions.Issues, error) {
		return questions.GradeResult{Score: 1, Gradable: true}, nil, errors.New("grader raised")
	}
	_, err := f.submissions.SaveSubmission(context.Background(), f.saveRequest(variant, map[string]interface{}{"answer": 7}))
	require.NoError(t, err)

	job, err := f.grading.GradeVariant(context.Background(), GradeVariantRequest{Variant: variant, Question: f.question, Course: f.course})
	require.NoError(t, err)
	require.NotNil(t, job)
	require.False(t, job.Gradable)
	require.Nil(t, job.Score)

	var courseError models.CourseError
	require.NoError(t, f.db.First(&courseError).Error)
	require.Equal(t, StudentMessageGrade, courseError.StudentMessage)
	require.True(t, courseError.Fatal)
}

func TestGradeVariantInternalDoesNotEnqueue(t *testing.T) {
	f := newEngineFixture(t, models.GradingMethodInternal)
	variant := f.floatingVariant(t)
	_, err := f.submissions.SaveSubmission(context.Background(), f.saveRequest(variant, map[string]interface{}{"answer": 7}))
	require.NoError(t, err)

	_, err = f.grading.GradeVariant(context.Background(), GradeVariantRequest{Variant: variant, Question: f.question, Course: f.course})
	require.NoError(t, err)

	require.EqualValues(t, 1, f.count(t, &models.GradingJob{}))
	require.Empty(t, f.producer.Messages())
}

func TestGradeVariantExternalEnqueuesOnce(t *testing.T) {
	f := newEngineFixture(t, models.GradingMethodExternal)
	variant := f.floatingVariant(t)
	submissionID, err := f.submissions.SaveSubmission(context.Background(), f.saveRequest(variant, map[string]interface{}{"answer": 7}))
	require.NoError(t, err)

	job, err := f.grading.GradeVariant(context.Background(), GradeVariantRequest{Variant: variant, Question: f.question, Course: f.course})
	require.NoError(t, err)
	require.NotNil(t, job)
	require.Equal(t, models.GradingJobStatusPending, job.Status)
	require.Nil(t, job.Score)
	require.Equal(t, 0, f.module.Calls(questions.PhaseGrade))

	require.EqualValues(t, 1, f.count(t, &models.GradingJob{}))
	messages := f.producer.Messages()
	require.Len(t, messages, 1)
	require.Equal(t, job.ID, messages[0].GradingJobID)
	require.Equal(t, submissionID, messages[0].Submission.ID)
	require.Equal(t, variant.ID, messages[0].Variant.ID)
	require.Equal(t, f.question.ID, messages[0].Question.ID)
	require.Equal(t, f.course.ID, messages[0].Course.ID)
}

func TestGradeVariantManualLeavesJobPending(t *testing.T) {
	f := newEngineFixture(t, models.GradingMethodManual)
	variant := f.floatingVariant(t)
	_, err := f.submissions.SaveSubmission(context.Background(), f.saveRequest(variant, map[string]interface{}{"answer": 7}))
	require.NoError(t, err)

	job, err := f.grading.GradeVariant(context.Background(), GradeVariantRequest{Variant: variant, Question: f.question, Course: f.course})
	require.NoError(t, err)
	require.Equal(t, models.GradingJobStatusPending, job.Status)
	require.Empty(t, f.producer.Messages())
}

func TestGradeVariantUnknownGradingMethodRollsBack(t *testing.T) {
	f := newEngineFixture(t, "Robot")
	variant := f.floatingVariant(t)
	_, err := f.submissions.SaveSubmission(context.Background(), f.saveRequest(variant, map[string]interface{}{"answer": 7}))
	require.NoError(t, err)

	_, err = f.grading.GradeVariant(context.Background(), GradeVariantRequest{Variant: variant, Question: f.question, Course: f.course})
	require.ErrorIs(t, err, ErrUnknownGradingMethod)
	require.EqualValues(t, 0, f.count(t, &models.GradingJob{}))
}

func TestGradeVariantEnqueueFailureKeepsJob(t *testing.T) {
	f := newEngineFixture(t, models.GradingMethodExternal)
	f.producer.err = errors.New("queue down")
	variant := f.floatingVariant(t)
	_, err := f.submissions.SaveSubmission(context.Background(), f.saveRequest(variant, map[string]interface{}{"answer": 7}))
	require.NoError(t, err)

	job, err := f.grading.GradeVariant(context.Background(), GradeVariantRequest{Variant: variant, Question: f.question, Course: f.course})
	require.NoError(t, err)
	require.NotNil(t, job)
	require.EqualValues(t, 1, f.count(t, &models.GradingJob{}))
}

func TestSaveAndGradeSubmissionEndToEnd(t *testing.T) {
	f := newEngineFixture(t, models.GradingMethodInternal)
	f.module.generate = func(string) (questions.VariantData, questions.Issues, error) {
		return questions.VariantData{Params: map[string]interface{}{"a": 3, "b": 4}}, nil, nil
	}

	variant := f.floatingVariant(t)
	require.False(t, variant.Broken)
	require.EqualValues(t, 3, variant.Params["a"])
	require.EqualValues(t, 4, variant.Params["b"])

	result, err := f.grading.SaveAndGradeSubmission(context.Background(), f.saveRequest(variant, map[string]interface{}{"answer": 7}))
	require.NoError(t, err)
	require.NotZero(t, result.SubmissionID)
	require.NotNil(t, result.GradingJob)
	require.Equal(t, result.SubmissionID, result.GradingJob.SubmissionID)
	require.NotNil(t, result.GradingJob.Score)
	require.Equal(t, 1.0, *result.GradingJob.Score)

	submission, err := f.store.Repositories().Submissions.GetByID(context.Background(), result.SubmissionID)
	require.NoError(t, err)
	require.True(t, submission.Gradable)
	requireJSON(t, `{"answer": 7}`, submission.SubmittedAnswer)

	jobs, err := f.store.Repositories().GradingJobs.ListBySubmission(context.Background(), result.SubmissionID)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	require.Equal(t, 1.0, *jobs[0].Score)
}

func TestSaveAndGradeContinuesAfterFatalParse(t *testing.T) {
	f := newEngineFixture(t, models.GradingMethodInternal)
	variant := f.floatingVariant(t)
	f.module.parse = func(models.Submission) (questions.ParseResult, questions.Issues, error) {
		return questions.ParseResult{}, nil, errors.New("parse blew up")
	}
	f.module.grade = func(submission models.Submission) (questions.GradeResult, questions.Issues, error) {
		return questions.GradeResult{Gradable: submission.Gradable}, nil, nil
	}

	result, err := f.grading.SaveAndGradeSubmission(context.Background(), f.saveRequest(variant, map[string]interface{}{"answer": "??"}))
	require.NoError(t, err)
	require.NotNil(t, result.GradingJob)
	require.False(t, result.GradingJob.Gradable)
	require.Nil(t, result.GradingJob.Score)
	require.Equal(t, 1, f.module.Calls(questions.PhaseGrade))
	require.EqualValues(t, 1, f.count(t, &models.CourseError{}))
}

func TestSaveAndGradeRollsBackBothSteps(t *testing.T) {
	f := newEngineFixture(t, models.GradingMethodExternal)
	variant := f.floatingVariant(t)
	f.module.parse = func(submission models.Submission) (questions.ParseResult, questions.Issues, error) {
		return questions.ParseResult{SubmittedAnswer: submission.SubmittedAnswer, Gradable: true},
			questions.Issues{questions.Warning("normalised whitespace", nil)}, nil
	}

	svc := NewGradingService(failingSubmissionStore{Store: f.store}, f.registry, f.invoker, f.sink, f.producer, testLogger())
	_, err := svc.SaveAndGradeSubmission(context.Background(), f.saveRequest(variant, map[string]interface{}{"answer": 7}))
	require.Error(t, err)

	require.EqualValues(t, 0, f.count(t, &models.CourseError{}))
	require.EqualValues(t, 0, f.count(t, &models.Submission{}))
	require.EqualValues(t, 0, f.count(t, &models.GradingJob{}))
	require.Empty(t, f.producer.Messages())
}

func TestRedispatchPendingResendsStaleExternalJobs(t *testing.T) {
	f := newEngineFixture(t, models.GradingMethodExternal)
	variant := f.floatingVariant(t)
	result, err := f.grading.SaveAndGradeSubmission(context.Background(), f.saveRequest(variant, map[string]interface{}{"answer": 7}))
	require.NoError(t, err)
	require.Len(t, f.producer.Messages(), 1)

	sent, err := f.grading.RedispatchPending(context.Background(), 5*time.Minute)
	require.NoError(t, err)
	require.Zero(t, sent)

	f.grading.(*gradingService).now = func() time.Time { return time.Now().Add(time.Hour) }
	sent, err = f.grading.RedispatchPending(context.Background(), 5*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, sent)

	messages := f.producer.Messages()
	require.Len(t, messages, 2)
	require.Equal(t, result.GradingJob.ID, messages[1].GradingJobID)
	require.Equal(t, variant.ID, messages[1].Variant.ID)
	require.Equal(t, f.course.ID, messages[1].Course.ID)
}

func TestRedispatchPendingRotatesThroughLargeBacklog(t *testing.T) {
	f := newEngineFixture(t, models.GradingMethodExternal)
	variant := f.floatingVariant(t)
	submission := models.Submission{VariantID: variant.ID, AuthnUserID: 1, Gradable: true}
	require.NoError(t, f.db.Create(&submission).Error)

	requestedAt := time.Now().Add(-time.Hour)
	total := redispatchBatchSize + 1
	ids := make([]uint, 0, total)
	for i := 0; i < total; i++ {
		job := models.GradingJob{
			SubmissionID:       submission.ID,
			AuthnUserID:        1,
			GradingMethod:      models.GradingMethodExternal,
			Status:             models.GradingJobStatusPending,
			Gradable:           true,
			GradingRequestedAt: requestedAt.Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, f.db.Omit("Submission").Create(&job).Error)
		ids = append(ids, job.ID)
	}

	sweepAt := time.Now()
	f.grading.(*gradingService).now = func() time.Time { return sweepAt }

	sent, err := f.grading.RedispatchPending(context.Background(), 5*time.Minute)
	require.NoError(t, err)
	require.Equal(t, redispatchBatchSize, sent)

	sent, err = f.grading.RedispatchPending(context.Background(), 5*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, sent)

	messages := f.producer.Messages()
	require.Len(t, messages, total)
	require.Equal(t, ids[total-1], messages[total-1].GradingJobID)

	sent, err = f.grading.RedispatchPending(context.Background(), 5*time.Minute)
	require.NoError(t, err)
	require.Zero(t, sent)

	var stamped int64
	require.NoError(t, f.db.Model(&models.GradingJob{}).Where("last_dispatched_at IS NOT NULL").Count(&stamped).Error)
	require.EqualValues(t, total, stamped)
}

func TestGradeVariantHandsModulesFloatNumbers(t *testing.T) {
	f := newEngineFixture(t, models.GradingMethodInternal)
	created := f.floatingVariant(t)
	stored, err := f.store.Repositories().Variants.GetByID(context.Background(), created.ID)
	require.NoError(t, err)

	var seenAnswer interface{}
	f.module.grade = func(submission models.Submission) (questions.GradeResult, questions.Issues, error) {
		seenAnswer = submission.SubmittedAnswer["answer"]
		return questions.GradeResult{Score: 1, Gradable: true}, nil, nil
	}

	_, err = f.grading.SaveAndGradeSubmission(context.Background(), f.saveRequest(stored, map[string]interface{}{"answer": 7}))
	require.NoError(t, err)
	require.Equal(t, 7.0, seenAnswer)
	require.Equal(t, 3.0, f.module.GradedVariant().Params["a"])
	require.Equal(t, 7.0, f.module.GradedVariant().TrueAnswer["answer"])
}
