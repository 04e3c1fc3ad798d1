package handler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-variant-engine/internal/middleware"
	"github.com/noah-isme/gema-variant-engine/internal/service"
	"github.com/noah-isme/gema-variant-engine/internal/utils"
)

func parseUintParam(c *fiber.Ctx, key string) (uint, error) {
	value := strings.TrimSpace(c.Params(key))
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil || parsed == 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return uint(parsed), nil
}

func parseQueryUint(c *fiber.Ctx, key string) (*uint, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s", key)
	}
	result := uint(parsed)
	return &result, nil
}

func userIDFromContext(c *fiber.Ctx) uint {
	if id, ok := c.Locals("user_id").(uint); ok {
		return id
	}
	return 0
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

func validationDetails(err error) (map[string]string, bool) {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil, false
	}
	details := make(map[string]string, len(validationErrors))
	for _, fieldErr := range validationErrors {
		details[fieldErr.Field()] = fieldErr.Tag()
	}
	return details, true
}

// bindAndValidate parses and validates the body. When it returns false the
// error response has already been written.
func bindAndValidate(c *fiber.Ctx, validate *validator.Validate, payload interface{}) (bool, error) {
	if len(c.Body()) > 0 {
		if err := c.BodyParser(payload); err != nil {
			return false, utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
		}
	}
	if err := validate.Struct(payload); err != nil {
		if details, ok := validationDetails(err); ok {
			return false, utils.Fail(c, fiber.StatusBadRequest, "validation failed", details)
		}
		return false, utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}
	return true, nil
}

// handleServiceError maps engine errors to HTTP responses.
func handleServiceError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	switch {
	case errors.Is(err, service.ErrQuestionRequired):
		return utils.SendError(c, fiber.StatusBadRequest, "question_id or instance_question_id is required")
	case errors.Is(err, service.ErrQuestionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "question not found")
	case errors.Is(err, service.ErrInstanceQuestionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "instance question not found")
	case errors.Is(err, service.ErrInstanceQuestionForbidden):
		return utils.SendError(c, fiber.StatusForbidden, "insufficient permissions")
	case errors.Is(err, service.ErrSeedTooLong):
		return utils.SendError(c, fiber.StatusBadRequest, "variant seed is too long")
	case errors.Is(err, service.ErrVariantNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "variant not found")
	case errors.Is(err, service.ErrCourseNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "course not found")
	case errors.Is(err, service.ErrGradingJobNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "grading job not found")
	case errors.Is(err, service.ErrGradingJobNotManual):
		return utils.SendError(c, fiber.StatusConflict, "grading job is not manually graded")
	case errors.Is(err, service.ErrGradingJobCompleted):
		return utils.SendError(c, fiber.StatusConflict, "grading job already completed")
	}
	if details, ok := validationDetails(err); ok {
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", details)
	}

	requestLogger(logger, c).Error().Err(err).Str("path", c.Path()).Msg("internal server error")
	return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
}
