package handler

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-variant-engine/internal/dto"
	"github.com/noah-isme/gema-variant-engine/internal/middleware"
	"github.com/noah-isme/gema-variant-engine/internal/models"
	"github.com/noah-isme/gema-variant-engine/internal/service"
	"github.com/noah-isme/gema-variant-engine/internal/utils"
)

// SubmissionHandler accepts answers for variants.
type SubmissionHandler struct {
	submissions service.SubmissionService
	grading     service.GradingService
	lookup      service.LookupService
	validator   *validator.Validate
	logger      zerolog.Logger
}

// NewSubmissionHandler builds a submission handler instance.
func NewSubmissionHandler(submissions service.SubmissionService, grading service.GradingService, lookup service.LookupService, validator *validator.Validate, logger zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		submissions: submissions,
		grading:     grading,
		lookup:      lookup,
		validator:   validator,
		logger:      logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register attaches the routes to the variants router group.
func (h *SubmissionHandler) Register(router fiber.Router) {
	router.Post("/:id/submissions", middleware.RateLimit("submissions", 30, time.Minute), h.create)
}

func (h *SubmissionHandler) create(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.SubmissionCreateRequest
	if ok, err := bindAndValidate(c, h.validator, &payload); !ok {
		return err
	}

	vc, err := h.lookup.VariantContext(c.Context(), id)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	if !canAccessVariant(c, vc.Variant) {
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	}
	if vc.Variant.Broken {
		return utils.SendError(c, fiber.StatusConflict, "variant is broken and cannot accept submissions")
	}
	if !vc.Variant.Open {
		return utils.SendError(c, fiber.StatusConflict, "variant is closed")
	}

	req := service.SaveSubmissionRequest{
		Submission: models.Submission{
			VariantID:       vc.Variant.ID,
			AuthnUserID:     userIDFromContext(c),
			SubmittedAnswer: payload.SubmittedAnswer,
			Credit:          payload.Credit,
			Mode:            payload.Mode,
		},
		Variant:  vc.Variant,
		Question: vc.Question,
		Course:   vc.Course,
	}

	response := dto.SubmissionResponse{VariantID: vc.Variant.ID}
	if payload.Grade {
		result, err := h.grading.SaveAndGradeSubmission(c.Context(), req)
		if err != nil {
			return handleServiceError(c, h.logger, err)
		}
		response.ID = result.SubmissionID
		if result.GradingJob != nil {
			job := dto.NewGradingJobResponse(*result.GradingJob)
			response.GradingJob = &job
		}
		return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submission saved and graded", response)
	}

	submissionID, err := h.submissions.SaveSubmission(c.Context(), req)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	response.ID = submissionID

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submission saved", response)
}
