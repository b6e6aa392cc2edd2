package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"alfredoptarigan/cv-matcher/internal/config"
	"alfredoptarigan/cv-matcher/internal/logger"
	"alfredoptarigan/cv-matcher/internal/repositories"
	"alfredoptarigan/cv-matcher/internal/services"
)

const app = "cv-ingest"

var (
	idFromFilename bool

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "cv-ingest loads plain-text CVs into the matching catalogue",
	}

	ingestCmd = &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Embed and store one or more CV text files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc services.CVService, log *zap.SugaredLogger) error {
				return ingestFiles(cmd.Context(), svc, log, args)
			})
		},
	}

	deleteCmd = &cobra.Command{
		Use:   "delete <cv_id>",
		Short: "Remove a CV from the catalogue and the vector index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc services.CVService, log *zap.SugaredLogger) error {
				if err := svc.Delete(cmd.Context(), args[0]); err != nil {
					return err
				}
				log.Infof("🗑️  Deleted %s", args[0])
				return nil
			})
		},
	}

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List stored CVs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withService(cmd.Context(), func(svc services.CVService, _ *zap.SugaredLogger) error {
				docs, err := svc.List(cmd.Context())
				if err != nil {
					return err
				}
				for _, doc := range docs {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", doc.ID, doc.Filename, doc.CreatedAt.Format("2006-01-02 15:04:05"))
				}
				return nil
			})
		},
	}
)

func init() {
	ingestCmd.Flags().BoolVar(&idFromFilename, "id-from-filename", false, "use the file name without extension as the cv id")

	rootCmd.AddCommand(ingestCmd, deleteCmd, listCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// withService wires config, database, embedder and vector index the same way
// the API server does and hands the resulting CVService to fn.
func withService(ctx context.Context, fn func(services.CVService, *zap.SugaredLogger) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	zapLogger, err := logger.New(cfg.Log.Level, cfg.Log.JSON)
	if err != nil {
		return err
	}
	defer zapLogger.Sync() //nolint:errcheck
	zap.ReplaceGlobals(zapLogger)
	log := zap.S()

	db, err := config.InitDatabase(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	embedder, err := services.NewGeminiService(
		ctx,
		cfg.Gemini.APIKey,
		cfg.Gemini.Model,
		cfg.Gemini.EmbeddingModel,
		cfg.LLM.Temperature,
		cfg.LLM.MaxTokens,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize Gemini: %w", err)
	}

	index, err := services.NewVectorIndex(cfg, db, zapLogger)
	if err != nil {
		return err
	}
	if err := index.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("failed to initialize collection: %w", err)
	}

	tracer := services.NewLangfuseTracer(
		cfg.Langfuse.Host,
		cfg.Langfuse.PublicKey,
		cfg.Langfuse.SecretKey,
		cfg.Langfuse.Timeout,
		zapLogger,
	)
	defer tracer.Flush()

	svc := services.NewCVService(repositories.NewCVRepository(db), embedder, index, tracer, zapLogger)
	return fn(svc, log)
}

func ingestFiles(ctx context.Context, svc services.CVService, log *zap.SugaredLogger, paths []string) error {
	log.Info("🚀 Starting CV ingestion...")

	successCount := 0
	failCount := 0

	for _, path := range paths {
		filename := filepath.Base(path)
		log.Infof("📄 Processing: %s", filename)

		content, err := os.ReadFile(path)
		if err != nil {
			log.Errorf("❌ Failed to read %s: %v", path, err)
			failCount++
			continue
		}

		cvID := ""
		if idFromFilename {
			cvID = strings.TrimSuffix(filename, filepath.Ext(filename))
		}

		text := strings.ToValidUTF8(string(content), "")
		result, err := svc.Ingest(ctx, cvID, filename, text)
		if err != nil {
			log.Errorf("❌ Failed to ingest %s: %v", filename, err)
			failCount++
			continue
		}

		log.Infof("✅ Stored %s as %s (dimension %d)", result.Filename, result.CVID, result.EmbeddingDimension)
		successCount++
	}

	log.Infof("📊 Ingestion complete: %d succeeded, %d failed", successCount, failCount)

	if failCount > 0 {
		return fmt.Errorf("%d of %d files failed", failCount, len(paths))
	}
	return nil
}
