package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"alfredoptarigan/cv-matcher/internal/config"
	"alfredoptarigan/cv-matcher/internal/handlers"
	"alfredoptarigan/cv-matcher/internal/logger"
	"alfredoptarigan/cv-matcher/internal/repositories"
	"alfredoptarigan/cv-matcher/internal/services"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	zapLogger, err := logger.New(cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer zapLogger.Sync() //nolint:errcheck
	zap.ReplaceGlobals(zapLogger)
	log := zap.S()
	log.Info("✅ Config loaded successfully")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := config.InitDatabase(cfg)
	if err != nil {
		log.Fatalf("❌ Failed to initialize database: %v", err)
	}

	// Initialize repositories
	cvRepo := repositories.NewCVRepository(db)
	jobRepo := repositories.NewMatchJobRepository(db)
	log.Info("✅ Repositories initialized successfully")

	// Initialize Gemini embeddings
	embedder, err := services.NewGeminiService(
		ctx,
		cfg.Gemini.APIKey,
		cfg.Gemini.Model,
		cfg.Gemini.EmbeddingModel,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
	)
	if err != nil {
		log.Fatalf("❌ Failed to initialize Gemini AI: %v", err)
	}
	log.Info("✅ Gemini embeddings initialized successfully")

	// Initialize vector index
	index, err := services.NewVectorIndex(cfg, db, zapLogger)
	if err != nil {
		log.Fatalf("❌ Failed to initialize vector index: %v", err)
	}
	if err := index.EnsureCollection(ctx); err != nil {
		log.Fatalf("❌ Failed to initialize vector collection: %v", err)
	}
	log.Infof("✅ Vector index (%s) initialized successfully", cfg.Vector.Backend)

	tracer := services.NewLangfuseTracer(
		cfg.Langfuse.Host,
		cfg.Langfuse.PublicKey,
		cfg.Langfuse.SecretKey,
		cfg.Langfuse.Timeout,
		zapLogger,
	)
	if cfg.Langfuse.Enabled() {
		log.Info("✅ Langfuse tracing enabled")
	}

	scorers, err := services.NewScorerRegistryFromConfig(ctx, cfg, cfg.Worker.RetryMaxAttempts, zapLogger)
	if err != nil {
		log.Fatalf("❌ Failed to initialize LLM providers: %v", err)
	}
	log.Info("✅ LLM providers initialized")

	matcher := services.NewBatchMatcher(
		embedder,
		index,
		scorers,
		tracer,
		services.NewRepositoryCVSource(cvRepo),
		services.PipelineOptions{
			RetrievalLimit: cfg.RAG.MaxCVResults,
			CVLineLimit:    cfg.RAG.CVLineLimit,
		},
		cfg.Worker.MatchConcurrency,
		zapLogger,
	)
	cvService := services.NewCVService(cvRepo, embedder, index, tracer, zapLogger)
	log.Info("✅ Matching services initialized")

	// Initialize worker
	worker := services.NewWorker(
		jobRepo,
		matcher,
		cfg.Worker.Concurrency,
		cfg.Worker.PollInterval,
		cfg.Worker.JobLease,
		zapLogger,
	)
	worker.Start(ctx)
	log.Info("✅ Worker started successfully")

	// Initialize handlers
	cvHandler := handlers.NewCVHandler(cvService, cfg.Server.MaxFileSize, zapLogger)
	matchHandler := handlers.NewMatchHandler(matcher, cfg.LLM.Provider, cfg.RAG.DefaultTopK, zapLogger)
	jobHandler := handlers.NewJobHandler(jobRepo, matcher, worker, cfg.LLM.Provider, cfg.RAG.DefaultTopK, zapLogger)
	log.Info("✅ Handlers initialized")

	// Create Fiber app
	app := fiber.New(fiber.Config{
		AppName:      "CV Matcher API",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		BodyLimit:    int(cfg.Server.MaxFileSize),
		ErrorHandler: customErrorHandler,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format:     "[${time}] ${status} - ${latency} ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))

	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.FrontendURL,
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))

	handlers.RegisterRoutes(app, cvHandler, matchHandler, jobHandler)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	stopped := make(chan struct{})
	go func() {
		<-quit
		log.Info("🛑 Shutting down server...")
		shutdown(app, worker, cancel, tracer)
		close(stopped)
	}()

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	log.Infof("🚀 Server starting on %s", addr)

	if err := app.Listen(addr); err != nil {
		log.Fatalf("❌ Failed to start server: %v", err)
	}
	<-stopped
}

// shutdown drains HTTP requests before stopping the worker, so the tracer is
// flushed only once nothing can record events anymore.
func shutdown(app *fiber.App, worker services.Worker, cancel context.CancelFunc, tracer services.Tracer) {
	if err := app.Shutdown(); err != nil {
		zap.S().Errorf("❌ Server forced to shutdown: %v", err)
	}
	worker.Stop()
	cancel()
	tracer.Flush()
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
		"code":  code,
	})
}
