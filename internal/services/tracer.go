package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Tracer records pipeline events. Record never fails; implementations log
// their own errors.
type Tracer interface {
	Record(ctx context.Context, name string, metadata map[string]any)
	Flush()
}

type nopTracer struct{}

// NewNopTracer returns the tracer used when observability is not configured.
func NewNopTracer() Tracer { return nopTracer{} }

func (nopTracer) Record(context.Context, string, map[string]any) {}

func (nopTracer) Flush() {}

const langfuseIngestionPath = "/api/public/ingestion"

type langfuseTracer struct {
	endpoint  string
	publicKey string
	secretKey string
	timeout   time.Duration
	logger    *zap.Logger
	wg        sync.WaitGroup
}

// NewLangfuseTracer sends each event as a trace-create to the Langfuse
// ingestion API. Without keys it degrades to a no-op tracer.
func NewLangfuseTracer(host, publicKey, secretKey string, timeout time.Duration, logger *zap.Logger) Tracer {
	if publicKey == "" || secretKey == "" {
		logger.Warn("langfuse keys not configured - observability disabled")
		return NewNopTracer()
	}

	return &langfuseTracer{
		endpoint:  strings.TrimRight(host, "/") + langfuseIngestionPath,
		publicKey: publicKey,
		secretKey: secretKey,
		timeout:   timeout,
		logger:    logger.Named("langfuse"),
	}
}

type langfuseEvent struct {
	ID        string        `json:"id"`
	Type      string        `json:"type"`
	Timestamp string        `json:"timestamp"`
	Body      langfuseTrace `json:"body"`
}

type langfuseTrace struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	UserID    string         `json:"userId"`
	Timestamp string         `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type langfuseBatch struct {
	Batch []langfuseEvent `json:"batch"`
}

// Record implements Tracer. The event is delivered in the background.
func (l *langfuseTracer) Record(_ context.Context, name string, metadata map[string]any) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	payload := langfuseBatch{
		Batch: []langfuseEvent{{
			ID:        uuid.NewString(),
			Type:      "trace-create",
			Timestamp: now,
			Body: langfuseTrace{
				ID:        uuid.NewString(),
				Name:      name,
				UserID:    "system",
				Timestamp: now,
				Metadata:  metadata,
			},
		}},
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				l.logger.Error("langfuse delivery panicked", zap.Any("panic", r))
			}
		}()
		l.send(name, payload)
	}()
}

func (l *langfuseTracer) send(name string, payload langfuseBatch) {
	agent := fiber.Post(l.endpoint)
	agent.BasicAuth(l.publicKey, l.secretKey)
	agent.Timeout(l.timeout)
	agent.JSON(payload)

	if err := agent.Parse(); err != nil {
		l.logger.Error("error building langfuse request", zap.String("event", name), zap.Error(err))
		fiber.ReleaseAgent(agent)
		return
	}

	code, body, errs := agent.Bytes()
	if len(errs) > 0 {
		l.logger.Error("error logging to langfuse", zap.String("event", name), zap.Errors("errors", errs))
		return
	}

	if code >= fiber.StatusMultipleChoices {
		l.logger.Error("langfuse rejected event",
			zap.String("event", name),
			zap.Int("status", code),
			zap.ByteString("body", body))
	}
}

// Flush waits for in-flight events.
func (l *langfuseTracer) Flush() {
	l.wg.Wait()
}
