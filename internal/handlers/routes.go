package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// RegisterRoutes mounts the CV and matching APIs plus the root and health routes.
func RegisterRoutes(app *fiber.App, cv *CVHandler, match *MatchHandler, jobs *JobHandler) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "CV Matcher API",
			"version": "1.0.0",
			"endpoints": []string{
				"POST /api/cv/upload",
				"POST /api/cv/embedding",
				"GET /api/cv/list",
				"DELETE /api/cv/:id",
				"POST /api/matching/match",
				"POST /api/matching/jobs",
				"GET /api/matching/jobs/:id",
				"GET /api/matching/health",
			},
		})
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now(),
		})
	})

	api := app.Group("/api")

	cvGroup := api.Group("/cv")
	cvGroup.Post("/upload", cv.HandleUpload)
	cvGroup.Post("/embedding", cv.HandleEmbedding)
	cvGroup.Get("/list", cv.HandleList)
	cvGroup.Delete("/:id", cv.HandleDelete)

	matching := api.Group("/matching")
	matching.Post("/match", match.HandleMatch)
	matching.Get("/health", match.HandleHealth)
	matching.Post("/jobs", jobs.HandleCreateJob)
	matching.Get("/jobs/:id", jobs.HandleGetJob)
}
