package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-variant-engine/internal/models"
	"github.com/noah-isme/gema-variant-engine/internal/questions"
	"github.com/noah-isme/gema-variant-engine/internal/repository"
)

// EnsureVariantRequest identifies the question to instantiate. InstanceQuestionID
// takes precedence over QuestionID when both are set. Slot variants belong to
// the slot's user unless UserID is given.
type EnsureVariantRequest struct {
	QuestionID         *uint
	InstanceQuestionID *uint
	// SlotOwnerID, when set, rejects slots owned by any other user.
	SlotOwnerID *uint
	UserID      *uint
	AuthnUserID uint
	// Course defaults to the question's course when left zero.
	Course      models.Course
	Seed        string
	RequireOpen bool
}

// VariantService creates and reuses question variants.
type VariantService interface {
	EnsureVariant(ctx context.Context, req EnsureVariantRequest) (models.Variant, error)
}

type variantService struct {
	store    repository.Store
	pipeline *pipeline
	logger   zerolog.Logger
}

// NewVariantService constructs the variant service.
func NewVariantService(store repository.Store, registry *questions.Registry, invoker *questions.Invoker, sink *ErrorSink, logger zerolog.Logger) VariantService {
	return &variantService{
		store:    store,
		pipeline: newPipeline(registry, invoker, sink),
		logger:   logger.With().Str("component", "variant_service").Logger(),
	}
}

func (s *variantService) EnsureVariant(ctx context.Context, req EnsureVariantRequest) (models.Variant, error) {
	tracer := otel.Tracer("github.com/noah-isme/gema-variant-engine/internal/service/variant")
	ctx, span := tracer.Start(ctx, "variant.ensure")
	defer span.End()

	if len(req.Seed) > models.MaxVariantSeedLength {
		span.SetStatus(codes.Error, "seed_too_long")
		return models.Variant{}, ErrSeedTooLong
	}

	question, slot, err := s.resolveQuestion(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "question_lookup_failed")
		return models.Variant{}, err
	}
	span.SetAttributes(
		attribute.Int64("variant.question_id", int64(question.ID)),
		attribute.String("variant.question_type", question.Type),
	)

	module, err := s.pipeline.registry.Resolve(question.Type)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown_question_type")
		return models.Variant{}, err
	}

	course, err := s.resolveCourse(ctx, req.Course, question)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "course_lookup_failed")
		return models.Variant{}, err
	}

	userID := req.UserID
	if userID == nil && slot != nil {
		owner := slot.UserID
		userID = &owner
	}

	var variant models.Variant
	var counts tally
	reused := false
	err = s.store.Transaction(ctx, func(repos repository.Repositories) error {
		if req.InstanceQuestionID != nil {
			existing, err := repos.Variants.FindForInstanceQuestion(ctx, *req.InstanceQuestionID, req.RequireOpen)
			if err == nil {
				variant = existing
				reused = true
				return nil
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("find variant for instance question: %w", err)
			}
		}

		created, err := s.pipeline.createVariant(ctx, repos, &counts, module, createVariantInput{
			Question:           question,
			Course:             course,
			InstanceQuestionID: req.InstanceQuestionID,
			UserID:             userID,
			AuthnUserID:        req.AuthnUserID,
			Seed:               req.Seed,
		})
		if err != nil {
			return err
		}
		variant = created
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "variant_ensure_failed")
		s.logger.Error().Err(err).Uint("question_id", question.ID).Msg("failed to ensure variant")
		return models.Variant{}, err
	}

	counts.flush()
	span.SetAttributes(
		attribute.Int64("variant.id", int64(variant.ID)),
		attribute.Bool("variant.reused", reused),
		attribute.Bool("variant.broken", variant.Broken),
	)
	if !reused {
		s.logger.Info().
			Uint("variant_id", variant.ID).
			Uint("question_id", question.ID).
			Bool("broken", variant.Broken).
			Msg("variant created")
	}
	return variant, nil
}

func (s *variantService) resolveQuestion(ctx context.Context, req EnsureVariantRequest) (models.Question, *models.InstanceQuestion, error) {
	repos := s.store.Repositories()

	if req.InstanceQuestionID != nil {
		instanceQuestion, err := repos.Questions.GetInstanceQuestion(ctx, *req.InstanceQuestionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.Question{}, nil, ErrInstanceQuestionNotFound
			}
			return models.Question{}, nil, err
		}
		if req.SlotOwnerID != nil && instanceQuestion.UserID != *req.SlotOwnerID {
			return models.Question{}, nil, ErrInstanceQuestionForbidden
		}
		return instanceQuestion.Question, &instanceQuestion, nil
	}

	if req.QuestionID != nil {
		question, err := repos.Questions.GetByID(ctx, *req.QuestionID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.Question{}, nil, ErrQuestionNotFound
			}
			return models.Question{}, nil, err
		}
		return question, nil, nil
	}

	return models.Question{}, nil, ErrQuestionRequired
}

func (s *variantService) resolveCourse(ctx context.Context, course models.Course, question models.Question) (models.Course, error) {
	if course.ID != 0 {
		return course, nil
	}
	if question.Course.ID != 0 {
		return question.Course, nil
	}

	loaded, err := s.store.Repositories().Questions.GetCourse(ctx, question.CourseID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Course{}, ErrCourseNotFound
		}
		return models.Course{}, err
	}
	return loaded, nil
}
