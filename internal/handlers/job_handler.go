package handlers

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"alfredoptarigan/cv-matcher/internal/models"
	"alfredoptarigan/cv-matcher/internal/repositories"
	"alfredoptarigan/cv-matcher/internal/services"
)

type JobHandler struct {
	jobRepo         repositories.MatchJobRepository
	matcher         services.BatchMatcher
	worker          services.Worker
	defaultProvider string
	defaultTopK     int
	logger          *zap.Logger
}

func NewJobHandler(
	jobRepo repositories.MatchJobRepository,
	matcher services.BatchMatcher,
	worker services.Worker,
	defaultProvider string,
	defaultTopK int,
	logger *zap.Logger,
) *JobHandler {
	return &JobHandler{
		jobRepo:         jobRepo,
		matcher:         matcher,
		worker:          worker,
		defaultProvider: defaultProvider,
		defaultTopK:     defaultTopK,
		logger:          logger.Named("job_handler"),
	}
}

// HandleCreateJob handles POST /api/matching/jobs
func (h *JobHandler) HandleCreateJob(c *fiber.Ctx) error {
	var req models.MatchingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request payload",
		})
	}

	matchReq := req.ToMatchRequest(h.defaultProvider, h.defaultTopK)
	if err := h.matcher.Validate(matchReq); err != nil {
		return respondError(c, err)
	}

	encoded, err := json.Marshal(matchReq)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to encode match request",
		})
	}

	job := &models.MatchJob{
		ID:          uuid.New(),
		JobTitle:    matchReq.JobTitle,
		LLMProvider: matchReq.LLMProvider,
		Request:     string(encoded),
		Status:      models.StatusQueued,
	}

	if err := h.jobRepo.Create(c.UserContext(), job); err != nil {
		h.logger.Error("failed to create match job", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create match job",
		})
	}

	h.worker.EnqueueJob(job.ID)

	return c.Status(fiber.StatusAccepted).JSON(models.MatchJobResponse{
		ID:     job.ID.String(),
		Status: string(models.StatusQueued),
	})
}

// HandleGetJob handles GET /api/matching/jobs/:id
func (h *JobHandler) HandleGetJob(c *fiber.Ctx) error {
	jobID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid job ID format",
		})
	}

	job, err := h.jobRepo.FindByID(c.UserContext(), jobID)
	if err != nil {
		if errors.Is(err, repositories.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Match job not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load match job",
		})
	}

	response := models.MatchJobResultResponse{
		ID:     job.ID.String(),
		Status: string(job.Status),
	}

	if job.Status == models.StatusCompleted && job.Result != nil {
		var result models.BatchResult
		if err := json.Unmarshal([]byte(*job.Result), &result); err != nil {
			h.logger.Error("stored batch result is unreadable", zap.Stringer("job_id", job.ID), zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Stored result is unreadable",
			})
		}
		response.Result = &result
	}

	if job.Status == models.StatusFailed {
		response.ErrorMessage = job.ErrorMessage
	}

	return c.JSON(response)
}
