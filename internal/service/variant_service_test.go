package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-variant-engine/internal/models"
	"github.com/noah-isme/gema-variant-engine/internal/questions"
)

func TestEnsureVariantFatalGenerateSkipsPrepare(t *testing.T) {
	f := newEngineFixture(t, models.GradingMethodInternal)
	f.module.generate = func(string) (questions.VariantData, questions.Issues, error) {
		return questions.VariantData{Params: map[string]interface{}{"a": 1}}, questions.Issues{
			questions.Fatal("division by zero", map[string]interface{}{"line": 12}),
		}, nil
	}

	variant := f.floatingVariant(t)

	require.True(t, variant.Broken)
	require.False(t, variant.Answerable())
	require.Equal(t, 0, f.module.Calls(questions.PhasePrepare))
	require.EqualValues(t, 1, variant.Params["a"])

	var courseErrors []models.CourseError
	require.NoError(t, f.db.Find(&courseErrors).Error)
	require.Len(t, courseErrors, 1)
	require.Equal(t, StudentMessageVariant, courseErrors[0].StudentMessage)
	require.Equal(t, "division by zero", courseErrors[0].InstructorMessage)
	require.True(t, courseErrors[0].CourseCaused)
	require.True(t, courseErrors[0].Fatal)
	require.NotNil(t, courseErrors[0].VariantID)
	require.Equal(t, variant.ID, *courseErrors[0].VariantID)
	require.Equal(t, f.course.ID, courseErrors[0].CourseID)
}

func TestEnsureVariantStoresPrepareOutput(t *testing.T) {
	f := newEngineFixture(t, models.GradingMethodInternal)
	f.module.prepare = func(data questions.VariantData) (questions.VariantData, questions.Issues, error) {
		return questions.VariantData{
			Params:     map[string]interface{}{"a": 30, "b": 40},
			TrueAnswer: map[string]interface{}{"answer": 70},
			Options:    map[string]interface{}{"prepared": true},
		}, questions.Issues{questions.Warning("rounded inputs", nil)}, nil
	}

	variant := f.floatingVariant(t)

	require.False(t, variant.Broken)
	require.Equal(t, 1, f.module.Calls(questions.PhasePrepare))

	stored, err := f.store.Repositories().Variants.GetByID(context.Background(), variant.ID)
	require.NoError(t, err)
	requireJSON(t, `{"a": 30, "b": 40}`, stored.Params)
	requireJSON(t, `{"answer": 70}`, stored.TrueAnswer)
	require.Equal(t, true, stored.Options["prepared"])
	require.True(t, stored.IsFloating())
	require.EqualValues(t, 1, f.count(t, &models.CourseError{}))
}

func TestEnsureVariantFatalPrepareKeepsGenerateOutput(t *testing.T) {
	f := newEngineFixture(t, models.GradingMethodInternal)
	f.module.prepare = func(questions.VariantData) (questions.VariantData, questions.Issues, error) {
		return questions.VariantData{Params: map[string]interface{}{"a": -1}}, nil, errors.New("prepare exploded")
	}

	variant := f.floatingVariant(t)

	require.True(t, variant.Broken)
	require.EqualValues(t, 3, variant.Params["a"])
	require.EqualValues(t, 1, f.count(t, &models.CourseError{}))
}

func TestEnsureVariantPanicBecomesBrokenVariant(t *testing.T) {
	f := newEngineFixture(t, models.GradingMethodInternal)
	f.module.generate = func(string) (questions.VariantData, questions.Issues, error) {
		panic("question code bug")
	}

	variant := f.floatingVariant(t)
	require.True(t, variant.Broken)

	var courseError models.CourseError
	require.NoError(t, f.db.First(&courseError).Error)
	require.Contains(t, courseError.InstructorMessage, "question code bug")
	require.NotEmpty(t, courseError.Data["stack"])
}

func TestEnsureVariantReusesOpenSlotVariant(t *testing.T) {
	f := newEngineFixture(t, models.GradingMethodInternal)
	slot := models.InstanceQuestion{AssessmentInstanceID: 1, QuestionID: f.question.ID, UserID: 5}
	require.NoError(t, f.db.Create(&slot).Error)

	userID := uint(5)
	req := EnsureVariantRequest{InstanceQuestionID: &slot.ID, UserID: &userID, AuthnUserID: 5, RequireOpen: true}

	first, err := f.variants.EnsureVariant(context.Background(), req)
	require.NoError(t, err)
	second, err := f.variants.EnsureVariant(context.Background(), req)
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.EqualValues(t, 1, f.count(t, &models.Variant{}))
	require.Equal(t, 1, f.module.Calls(questions.PhaseGenerate))
	require.Equal(t, f.course.ID, first.CourseID)
}

func TestEnsureVariantClosedSlotVariant(t *testing.T) {
	f := newEngineFixture(t, models.GradingMethodInternal)
	slot := models.InstanceQuestion{AssessmentInstanceID: 1, QuestionID: f.question.ID, UserID: 5}
	require.NoError(t, f.db.Create(&slot).Error)

	req := EnsureVariantRequest{InstanceQuestionID: &slot.ID, AuthnUserID: 5, RequireOpen: true}
	first, err := f.variants.EnsureVariant(context.Background(), req)
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&models.Variant{}).Where("id = ?", first.ID).Update("open", false).Error)

	req.RequireOpen = false
	reused, err := f.variants.EnsureVariant(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, first.ID, reused.ID)

	req.RequireOpen = true
	fresh, err := f.variants.EnsureVariant(context.Background(), req)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, fresh.ID)
	require.True(t, fresh.Open)
	require.EqualValues(t, 2, f.count(t, &models.Variant{}))
}

func TestEnsureVariantSkipsBrokenSlotVariant(t *testing.T) {
	f := newEngineFixture(t, models.GradingMethodInternal)
	slot := models.InstanceQuestion{AssessmentInstanceID: 1, QuestionID: f.question.ID, UserID: 5}
	require.NoError(t, f.db.Create(&slot).Error)

	f.module.generate = func(string) (questions.VariantData, questions.Issues, error) {
		return questions.VariantData{}, nil, errors.New("bad config")
	}
	req := EnsureVariantRequest{InstanceQuestionID: &slot.ID, AuthnUserID: 5}
	broken, err := f.variants.EnsureVariant(context.Background(), req)
	require.NoError(t, err)
	require.True(t, broken.Broken)

	f.module.generate = newStubModule().generate
	healthy, err := f.variants.EnsureVariant(context.Background(), req)
	require.NoError(t, err)
	require.False(t, healthy.Broken)
	require.NotEqual(t, broken.ID, healthy.ID)
}

func TestEnsureVariantSeedPolicy(t *testing.T) {
	f := newEngineFixture(t, models.GradingMethodInternal)
	var seen []string
	f.module.generate = func(seed string) (questions.VariantData, questions.Issues, error) {
		seen = append(seen, seed)
		return questions.VariantData{Params: map[string]interface{}{"seed": seed}}, nil, nil
	}

	questionID := f.question.ID
	pinned, err := f.variants.EnsureVariant(context.Background(), EnsureVariantRequest{QuestionID: &questionID, Seed: "debug-42"})
	require.NoError(t, err)
	require.Equal(t, "debug-42", pinned.Seed)

	first := f.floatingVariant(t)
	second := f.floatingVariant(t)
	require.NotEmpty(t, first.Seed)
	require.NotEqual(t, first.Seed, second.Seed)
	require.Equal(t, []string{"debug-42", first.Seed, second.Seed}, seen)
}

func TestEnsureVariantRequiresQuestion(t *testing.T) {
	f := newEngineFixture(t, models.GradingMethodInternal)

	_, err := f.variants.EnsureVariant(context.Background(), EnsureVariantRequest{})
	require.ErrorIs(t, err, ErrQuestionRequired)

	missing := uint(999)
	_, err = f.variants.EnsureVariant(context.Background(), EnsureVariantRequest{QuestionID: &missing})
	require.ErrorIs(t, err, ErrQuestionNotFound)

	_, err = f.variants.EnsureVariant(context.Background(), EnsureVariantRequest{InstanceQuestionID: &missing})
	require.ErrorIs(t, err, ErrInstanceQuestionNotFound)
}

func TestEnsureVariantUnknownTypeFailsBeforeWriting(t *testing.T) {
	f := newEngineFixture(t, models.GradingMethodInternal)
	orphan := models.Question{CourseID: f.course.ID, QID: "orphan", Type: "hologram", GradingMethod: models.GradingMethodInternal}
	require.NoError(t, f.db.Create(&orphan).Error)

	_, err := f.variants.EnsureVariant(context.Background(), EnsureVariantRequest{QuestionID: &orphan.ID})
	require.ErrorIs(t, err, questions.ErrUnknownQuestionType)
	require.EqualValues(t, 0, f.count(t, &models.Variant{}))
	require.EqualValues(t, 0, f.count(t, &models.CourseError{}))
}

func TestEnsureVariantRejectsSlotOfAnotherUser(t *testing.T) {
	f := newEngineFixture(t, models.GradingMethodInternal)
	slot := models.InstanceQuestion{AssessmentInstanceID: 1, QuestionID: f.question.ID, UserID: 99}
	require.NoError(t, f.db.Create(&slot).Error)

	owner := uint(99)
	planted, err := f.variants.EnsureVariant(context.Background(), EnsureVariantRequest{InstanceQuestionID: &slot.ID, AuthnUserID: 99})
	require.NoError(t, err)
	require.Equal(t, &owner, planted.UserID)

	intruder := uint(5)
	_, err = f.variants.EnsureVariant(context.Background(), EnsureVariantRequest{
		InstanceQuestionID: &slot.ID,
		SlotOwnerID:        &intruder,
		UserID:             &intruder,
		AuthnUserID:        intruder,
	})
	require.ErrorIs(t, err, ErrInstanceQuestionForbidden)
	require.EqualValues(t, 1, f.count(t, &models.Variant{}))

	reused, err := f.variants.EnsureVariant(context.Background(), EnsureVariantRequest{
		InstanceQuestionID: &slot.ID,
		SlotOwnerID:        &owner,
		AuthnUserID:        owner,
	})
	require.NoError(t, err)
	require.Equal(t, planted.ID, reused.ID)
}

func TestEnsureVariantRejectsOversizedSeed(t *testing.T) {
	f := newEngineFixture(t, models.GradingMethodInternal)
	questionID := f.question.ID

	_, err := f.variants.EnsureVariant(context.Background(), EnsureVariantRequest{
		QuestionID: &questionID,
		Seed:       strings.Repeat("s", models.MaxVariantSeedLength+1),
	})
	require.ErrorIs(t, err, ErrSeedTooLong)
	require.Zero(t, f.module.Calls(questions.PhaseGenerate))
	require.EqualValues(t, 0, f.count(t, &models.Variant{}))

	seeded, err := f.variants.EnsureVariant(context.Background(), EnsureVariantRequest{
		QuestionID: &questionID,
		Seed:       strings.Repeat("s", models.MaxVariantSeedLength),
	})
	require.NoError(t, err)
	require.Len(t, seeded.Seed, models.MaxVariantSeedLength)
}
