package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-variant-engine/internal/dto"
	"github.com/noah-isme/gema-variant-engine/internal/middleware"
	"github.com/noah-isme/gema-variant-engine/internal/service"
	"github.com/noah-isme/gema-variant-engine/internal/utils"
)

// GradingHandler triggers grading and reports grading jobs.
type GradingHandler struct {
	grading   service.GradingService
	manual    service.ManualGradingService
	lookup    service.LookupService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewGradingHandler builds a grading handler instance.
func NewGradingHandler(grading service.GradingService, manual service.ManualGradingService, lookup service.LookupService, validator *validator.Validate, logger zerolog.Logger) *GradingHandler {
	return &GradingHandler{
		grading:   grading,
		manual:    manual,
		lookup:    lookup,
		validator: validator,
		logger:    logger.With().Str("component", "grading_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *GradingHandler) Register(router fiber.Router) {
	router.Post("/variants/:id/grade", h.grade)
	router.Get("/grading-jobs/:id", h.show)
	router.Post("/grading-jobs/:id/manual", middleware.WithAuth(h.manualGrade, middleware.AuthOptions{Role: middleware.AuthRoleStaff}))
}

func (h *GradingHandler) grade(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.GradeVariantRequest
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

	job, err := h.grading.GradeVariant(c.Context(), service.GradeVariantRequest{
		Variant:           vc.Variant,
		Question:          vc.Question,
		Course:            vc.Course,
		AuthnUserID:       userIDFromContext(c),
		CheckSubmissionID: payload.CheckSubmissionID,
	})
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	if job == nil {
		return utils.SendSuccess(c, "nothing to grade", nil)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "grading job created", dto.NewGradingJobResponse(*job))
}

func (h *GradingHandler) show(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	job, err := h.lookup.GradingJob(c.Context(), id)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	vc, err := h.lookup.VariantContext(c.Context(), job.Submission.VariantID)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	if !canAccessVariant(c, vc.Variant) {
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	}

	return utils.SendSuccess(c, "grading job retrieved", dto.NewGradingJobResponse(job))
}

func (h *GradingHandler) manualGrade(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	var payload dto.ManualGradeRequest
	if ok, err := bindAndValidate(c, h.validator, &payload); !ok {
		return err
	}

	job, err := h.manual.Grade(c.Context(), id, service.ManualGrade{
		Score:    *payload.Score,
		Feedback: payload.Feedback,
	}, userIDFromContext(c))
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "grading job graded", dto.NewGradingJobResponse(job))
}
