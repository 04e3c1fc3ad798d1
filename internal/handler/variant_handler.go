package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-variant-engine/internal/dto"
	"github.com/noah-isme/gema-variant-engine/internal/middleware"
	"github.com/noah-isme/gema-variant-engine/internal/models"
	"github.com/noah-isme/gema-variant-engine/internal/questions"
	"github.com/noah-isme/gema-variant-engine/internal/service"
	"github.com/noah-isme/gema-variant-engine/internal/utils"
)

// VariantHandler exposes variant creation and rendering.
type VariantHandler struct {
	variants  service.VariantService
	renders   service.RenderService
	lookup    service.LookupService
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewVariantHandler builds a variant handler instance.
func NewVariantHandler(variants service.VariantService, renders service.RenderService, lookup service.LookupService, validator *validator.Validate, logger zerolog.Logger) *VariantHandler {
	return &VariantHandler{
		variants:  variants,
		renders:   renders,
		lookup:    lookup,
		validator: validator,
		logger:    logger.With().Str("component", "variant_handler").Logger(),
	}
}

// Register attaches the routes to the provided router group.
func (h *VariantHandler) Register(router fiber.Router) {
	router.Post("", h.ensure)
	router.Get("/:id", h.show)
	router.Get("/:id/errors", middleware.WithAuth(h.listErrors, middleware.AuthOptions{Role: middleware.AuthRoleStaff}))
}

func (h *VariantHandler) ensure(c *fiber.Ctx) error {
	var payload dto.EnsureVariantRequest
	if ok, err := bindAndValidate(c, h.validator, &payload); !ok {
		return err
	}

	authnUserID := userIDFromContext(c)
	userID := payload.UserID
	var slotOwnerID *uint
	if !middleware.IsStaff(c) {
		userID = &authnUserID
		slotOwnerID = &authnUserID
	} else if userID == nil && payload.InstanceQuestionID == nil {
		userID = &authnUserID
	}

	variant, err := h.variants.EnsureVariant(c.Context(), service.EnsureVariantRequest{
		QuestionID:         payload.QuestionID,
		InstanceQuestionID: payload.InstanceQuestionID,
		SlotOwnerID:        slotOwnerID,
		UserID:             userID,
		AuthnUserID:        authnUserID,
		Seed:               payload.Seed,
		RequireOpen:        payload.RequireOpen,
	})
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	if variant.Broken {
		requestLogger(h.logger, c).Warn().
			Uint("variant_id", variant.ID).
			Uint("question_id", variant.QuestionID).
			Msg("variant created broken")
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "variant ready", dto.NewVariantResponse(variant, middleware.IsStaff(c)))
}

func (h *VariantHandler) show(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	submissionID, err := parseQueryUint(c, "submission_id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	vc, err := h.lookup.VariantContext(c.Context(), id)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}
	if !canAccessVariant(c, vc.Variant) {
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	}

	staff := middleware.IsStaff(c)
	rendered, err := h.renders.Render(c.Context(), service.RenderVariantRequest{
		VariantID:    id,
		SubmissionID: submissionID,
		AuthnUserID:  userIDFromContext(c),
		Selection: questions.RenderSelection{
			Question:    true,
			Submissions: true,
			Answer:      staff,
		},
		Context: map[string]interface{}{
			"staff": staff,
		},
	})
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "variant retrieved", dto.NewVariantResponse(vc.Variant, staff).WithPanels(rendered))
}

func (h *VariantHandler) listErrors(c *fiber.Ctx) error {
	id, err := parseUintParam(c, "id")
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	items, err := h.lookup.CourseErrors(c.Context(), id)
	if err != nil {
		return handleServiceError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "course errors retrieved", dto.NewCourseErrorResponses(items))
}

func canAccessVariant(c *fiber.Ctx, variant models.Variant) bool {
	if middleware.IsStaff(c) || variant.UserID == nil {
		return true
	}
	return *variant.UserID == userIDFromContext(c)
}
