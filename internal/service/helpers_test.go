package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-variant-engine/internal/models"
	"github.com/noah-isme/gema-variant-engine/internal/queue"
	"github.com/noah-isme/gema-variant-engine/internal/questions"
	"github.com/noah-isme/gema-variant-engine/internal/repository"
)

const stubType = "stub"

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func setupEngineDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

// stubModule returns canned results and counts calls per phase.
type stubModule struct {
	mu            sync.Mutex
	calls         map[string]int
	gradedVariant models.Variant

	generate func(seed string) (questions.VariantData, questions.Issues, error)
	prepare  func(data questions.VariantData) (questions.VariantData, questions.Issues, error)
	parse    func(submission models.Submission) (questions.ParseResult, questions.Issues, error)
	grade    func(submission models.Submission) (questions.GradeResult, questions.Issues, error)
	render   func(req questions.RenderRequest) (questions.RenderResult, questions.Issues, error)
}

func newStubModule() *stubModule {
	return &stubModule{
		calls: map[string]int{},
		generate: func(string) (questions.VariantData, questions.Issues, error) {
			return questions.VariantData{
				Params:     map[string]interface{}{"a": 3, "b": 4},
				TrueAnswer: map[string]interface{}{"answer": 7},
			}, nil, nil
		},
		prepare: func(data questions.VariantData) (questions.VariantData, questions.Issues, error) {
			return data, nil, nil
		},
		parse: func(submission models.Submission) (questions.ParseResult, questions.Issues, error) {
			return questions.ParseResult{SubmittedAnswer: submission.SubmittedAnswer, Gradable: true}, nil, nil
		},
		grade: func(models.Submission) (questions.GradeResult, questions.Issues, error) {
			return questions.GradeResult{Score: 1.0, Gradable: true}, nil, nil
		},
		render: func(questions.RenderRequest) (questions.RenderResult, questions.Issues, error) {
			return questions.RenderResult{QuestionHTML: "<p>stub</p>"}, nil, nil
		},
	}
}

func (m *stubModule) count(phase string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls[phase]++
}

func (m *stubModule) Calls(phase string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[phase]
}

func (m *stubModule) GradedVariant() models.Variant {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gradedVariant
}

func (m *stubModule) Generate(_ context.Context, _ models.Question, _ models.Course, seed string) (questions.VariantData, questions.Issues, error) {
	m.count(questions.PhaseGenerate)
	return m.generate(seed)
}

func (m *stubModule) Prepare(_ context.Context, _ models.Question, _ models.Course, data questions.VariantData) (questions.VariantData, questions.Issues, error) {
	m.count(questions.PhasePrepare)
	return m.prepare(data)
}

func (m *stubModule) Parse(_ context.Context, submission models.Submission, _ models.Variant, _ models.Question, _ models.Course) (questions.ParseResult, questions.Issues, error) {
	m.count(questions.PhaseParse)
	return m.parse(submission)
}

func (m *stubModule) Grade(_ context.Context, submission models.Submission, variant models.Variant, _ models.Question, _ models.Course) (questions.GradeResult, questions.Issues, error) {
	m.count(questions.PhaseGrade)
	m.mu.Lock()
	m.gradedVariant = variant
	m.mu.Unlock()
	return m.grade(submission)
}

func (m *stubModule) Render(_ context.Context, req questions.RenderRequest) (questions.RenderResult, questions.Issues, error) {
	m.count(questions.PhaseRender)
	return m.render(req)
}

type fakeProducer struct {
	mu       sync.Mutex
	messages []queue.Message
	err      error
}

func (p *fakeProducer) Enqueue(_ context.Context, message queue.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, message)
	return nil
}

func (p *fakeProducer) Backend() string {
	return "fake"
}

func (p *fakeProducer) Messages() []queue.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]queue.Message(nil), p.messages...)
}

// failingSubmissionStore fails every submission insert made inside a transaction.
type failingSubmissionStore struct {
	repository.Store
}

func (s failingSubmissionStore) Transaction(ctx context.Context, fn func(repos repository.Repositories) error) error {
	return s.Store.Transaction(ctx, func(repos repository.Repositories) error {
		repos.Submissions = failingSubmissionRepo{SubmissionRepository: repos.Submissions}
		return fn(repos)
	})
}

type failingSubmissionRepo struct {
	repository.SubmissionRepository
}

func (failingSubmissionRepo) Create(context.Context, *models.Submission) error {
	return errors.New("insert failed")
}

type engineFixture struct {
	db          *gorm.DB
	store       repository.Store
	registry    *questions.Registry
	invoker     *questions.Invoker
	sink        *ErrorSink
	module      *stubModule
	producer    *fakeProducer
	course      models.Course
	question    models.Question
	variants    VariantService
	submissions SubmissionService
	grading     GradingService
}

func newEngineFixture(t *testing.T, gradingMethod string) *engineFixture {
	t.Helper()
	db := setupEngineDB(t)

	course := models.Course{ShortName: "MATH101", Title: "Algebra"}
	require.NoError(t, db.Create(&course).Error)
	question := models.Question{
		CourseID:      course.ID,
		QID:           "addNumbers",
		Title:         "Add two numbers",
		Type:          stubType,
		GradingMethod: gradingMethod,
		Config:        datatypes.JSONMap{},
	}
	require.NoError(t, db.Create(&question).Error)
	question.Course = course

	module := newStubModule()
	registry := questions.NewRegistry()
	require.NoError(t, registry.Register(stubType, module))

	store := repository.NewStore(db)
	invoker := questions.NewInvoker(0, testLogger())
	sink := NewErrorSink(testLogger())
	producer := &fakeProducer{}

	return &engineFixture{
		db:          db,
		store:       store,
		registry:    registry,
		invoker:     invoker,
		sink:        sink,
		module:      module,
		producer:    producer,
		course:      course,
		question:    question,
		variants:    NewVariantService(store, registry, invoker, sink, testLogger()),
		submissions: NewSubmissionService(store, registry, invoker, sink, testLogger()),
		grading:     NewGradingService(store, registry, invoker, sink, producer, testLogger()),
	}
}

func (f *engineFixture) floatingVariant(t *testing.T) models.Variant {
	t.Helper()
	questionID := f.question.ID
	variant, err := f.variants.EnsureVariant(context.Background(), EnsureVariantRequest{
		QuestionID:  &questionID,
		AuthnUserID: 1,
		Course:      f.course,
	})
	require.NoError(t, err)
	return variant
}

func (f *engineFixture) saveRequest(variant models.Variant, answer map[string]interface{}) SaveSubmissionRequest {
	return SaveSubmissionRequest{
		Submission: models.Submission{AuthnUserID: 1, SubmittedAnswer: answer},
		Variant:    variant,
		Question:   f.question,
		Course:     f.course,
	}
}

func (f *engineFixture) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var total int64
	require.NoError(t, f.db.Model(model).Count(&total).Error)
	return total
}

// requireJSON compares a stored value by its JSON encoding, which hides the
// json.Number values datatypes.JSONMap decodes numbers into.
func requireJSON(t *testing.T, expected string, actual interface{}) {
	t.Helper()
	encoded, err := json.Marshal(actual)
	require.NoError(t, err)
	require.JSONEq(t, expected, string(encoded))
}
