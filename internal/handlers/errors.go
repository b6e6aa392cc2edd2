package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"alfredoptarigan/cv-matcher/internal/services"
)

// statusFor maps the service error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidRequest), errors.Is(err, services.ErrConfiguration):
		return fiber.StatusBadRequest
	case errors.Is(err, services.ErrCVNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, services.ErrUpstreamUnavailable),
		errors.Is(err, services.ErrEmbedding),
		errors.Is(err, services.ErrRetrieval),
		errors.Is(err, services.ErrScoring):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func respondError(c *fiber.Ctx, err error) error {
	code := statusFor(err)
	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
		"code":  code,
	})
}
