package handlers

import (
	"fmt"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"alfredoptarigan/cv-matcher/internal/models"
	"alfredoptarigan/cv-matcher/internal/services"
)

type CVHandler struct {
	cvService   services.CVService
	maxFileSize int64
	logger      *zap.Logger
}

func NewCVHandler(cvService services.CVService, maxFileSize int64, logger *zap.Logger) *CVHandler {
	return &CVHandler{
		cvService:   cvService,
		maxFileSize: maxFileSize,
		logger:      logger.Named("cv_handler"),
	}
}

// HandleUpload handles POST /api/cv/upload with a "file" part and a "cv_id" field.
// The file is read as UTF-8 text; invalid bytes are dropped.
func (h *CVHandler) HandleUpload(c *fiber.Ctx) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "file is required",
		})
	}

	if fileHeader.Size > h.maxFileSize {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("CV file too large. Max size: %d bytes", h.maxFileSize),
		})
	}

	src, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "failed to open uploaded file",
		})
	}
	defer src.Close()

	content, err := io.ReadAll(src)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "failed to read uploaded file",
		})
	}

	text := strings.ToValidUTF8(string(content), "")

	result, err := h.cvService.Ingest(c.UserContext(), c.FormValue("cv_id"), fileHeader.Filename, text)
	if err != nil {
		h.logger.Error("error uploading cv", zap.String("filename", fileHeader.Filename), zap.Error(err))
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(models.CVUploadResponse{
		Message:            "CV uploaded successfully",
		CVID:               result.CVID,
		Filename:           result.Filename,
		EmbeddingDimension: result.EmbeddingDimension,
	})
}

// HandleEmbedding handles POST /api/cv/embedding
func (h *CVHandler) HandleEmbedding(c *fiber.Ctx) error {
	var req models.EmbeddingRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request payload",
		})
	}

	embedding, err := h.cvService.EmbedText(c.UserContext(), req.Text)
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(models.EmbeddingResponse{
		Embedding: embedding,
		Dimension: len(embedding),
	})
}

// HandleList handles GET /api/cv/list
func (h *CVHandler) HandleList(c *fiber.Ctx) error {
	docs, err := h.cvService.List(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}

	items := make([]models.CVListItem, 0, len(docs))
	for _, doc := range docs {
		items = append(items, models.CVListItem{
			CVID:      doc.ID,
			Filename:  doc.Filename,
			CreatedAt: doc.CreatedAt,
		})
	}

	return c.JSON(models.CVListResponse{Total: len(items), CVs: items})
}

// HandleDelete handles DELETE /api/cv/:id
func (h *CVHandler) HandleDelete(c *fiber.Ctx) error {
	cvID := c.Params("id")
	if err := h.cvService.Delete(c.UserContext(), cvID); err != nil {
		h.logger.Error("error deleting cv", zap.String("cv_id", cvID), zap.Error(err))
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": fmt.Sprintf("CV %s deleted successfully", cvID),
	})
}
