package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"alfredoptarigan/cv-matcher/internal/models"
	"alfredoptarigan/cv-matcher/internal/services"
)

type MatchHandler struct {
	matcher         services.BatchMatcher
	defaultProvider string
	defaultTopK     int
	logger          *zap.Logger
}

func NewMatchHandler(
	matcher services.BatchMatcher,
	defaultProvider string,
	defaultTopK int,
	logger *zap.Logger,
) *MatchHandler {
	return &MatchHandler{
		matcher:         matcher,
		defaultProvider: defaultProvider,
		defaultTopK:     defaultTopK,
		logger:          logger.Named("match_handler"),
	}
}

// HandleMatch handles POST /api/matching/match
func (h *MatchHandler) HandleMatch(c *fiber.Ctx) error {
	var req models.MatchingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request payload",
		})
	}

	matchReq := req.ToMatchRequest(h.defaultProvider, h.defaultTopK)

	result, err := h.matcher.Match(c.UserContext(), matchReq)
	if err != nil {
		h.logger.Error("error in matching", zap.String("job_title", matchReq.JobTitle), zap.Error(err))
		return respondError(c, err)
	}

	return c.JSON(result)
}

// HandleHealth handles GET /api/matching/health
func (h *MatchHandler) HandleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "healthy",
		"healthy": true,
		"message": "Matching service is running",
		"time":    time.Now(),
	})
}
