package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Vector   VectorConfig
	Qdrant   QdrantConfig
	Gemini   GeminiConfig
	LLM      LLMConfig
	Langfuse LangfuseConfig
	RAG      RAGConfig
	Worker   WorkerConfig
	Log      LogConfig
}

type ServerConfig struct {
	Port        string `envconfig:"PORT" default:"8801"`
	Env         string `envconfig:"ENV" default:"development"`
	FrontendURL string `envconfig:"FRONTEND_URL" default:"http://localhost:3301"`
	MaxFileSize int64  `envconfig:"MAX_FILE_SIZE" default:"10485760"`
}

type DatabaseConfig struct {
	Type     string `envconfig:"DB_TYPE" default:"pgsql"`
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     string `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" default:"postgres"`
	Password string `envconfig:"DB_PASSWORD" default:"postgres"`
	DBName   string `envconfig:"DB_NAME" default:"cv_matcher"`
}

type VectorConfig struct {
	// Backend is either "qdrant" or "pgvector".
	Backend   string `envconfig:"VECTOR_BACKEND" default:"qdrant"`
	Dimension int    `envconfig:"EMBEDDING_DIMENSION" default:"768"`
}

type QdrantConfig struct {
	URL        string `envconfig:"QDRANT_URL" default:"http://localhost:6334"`
	APIKey     string `envconfig:"QDRANT_API_KEY" default:""`
	Collection string `envconfig:"QDRANT_COLLECTION" default:"cv_matching_index"`
}

type GeminiConfig struct {
	APIKey         string `envconfig:"GEMINI_API_KEY" default:""`
	Model          string `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash"`
	EmbeddingModel string `envconfig:"GEMINI_EMBEDDING_MODEL" default:"text-embedding-004"`
}

type LLMConfig struct {
	Provider    string  `envconfig:"LLM_PROVIDER" default:"openai"`
	Temperature float32 `envconfig:"LLM_TEMPERATURE" default:"0.7"`
	MaxTokens   int     `envconfig:"LLM_MAX_TOKENS" default:"2048"`

	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY" default:""`
	OpenAIModel   string `envconfig:"OPENAI_MODEL" default:"gpt-4-turbo-preview"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL" default:""`

	ClaudeAPIKey  string `envconfig:"CLAUDE_API_KEY" default:""`
	ClaudeModel   string `envconfig:"CLAUDE_MODEL" default:"claude-3-opus-20240229"`
	ClaudeBaseURL string `envconfig:"CLAUDE_BASE_URL" default:""`

	GrokAPIKey  string `envconfig:"GROK_API_KEY" default:""`
	GrokModel   string `envconfig:"GROK_MODEL" default:"grok-1"`
	GrokBaseURL string `envconfig:"GROK_BASE_URL" default:"https://api.x.ai/v1"`
}

type LangfuseConfig struct {
	PublicKey string        `envconfig:"LANGFUSE_PUBLIC_KEY" default:""`
	SecretKey string        `envconfig:"LANGFUSE_SECRET_KEY" default:""`
	Host      string        `envconfig:"LANGFUSE_HOST" default:"https://cloud.langfuse.com"`
	Timeout   time.Duration `envconfig:"LANGFUSE_TIMEOUT" default:"5s"`
}

// Enabled reports whether both Langfuse keys are present.
func (l LangfuseConfig) Enabled() bool {
	return l.PublicKey != "" && l.SecretKey != ""
}

type RAGConfig struct {
	MaxCVResults int `envconfig:"RAG_MAX_CV_RESULTS" default:"10"`
	CVLineLimit  int `envconfig:"RAG_CV_LINE_LIMIT" default:"50"`
	DefaultTopK  int `envconfig:"RAG_DEFAULT_TOP_K" default:"5"`
}

type WorkerConfig struct {
	Concurrency      int           `envconfig:"WORKER_CONCURRENCY" default:"3"`
	MatchConcurrency int           `envconfig:"MATCH_CONCURRENCY" default:"4"`
	RetryMaxAttempts int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`
	PollInterval     time.Duration `envconfig:"WORKER_POLL_INTERVAL" default:"10s"`
	JobLease         time.Duration `envconfig:"WORKER_JOB_LEASE" default:"15m"`
}

type LogConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
	JSON  bool   `envconfig:"LOG_JSON" default:"false"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	// A missing .env is fine, the environment alone is enough.
	_ = godotenv.Load()

	cfg := new(Config)
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}

	return cfg, nil
}

func (c *Config) GetDatabaseDSN() string {
	if c.Database.Type != "pgsql" {
		return c.Database.DBName
	}

	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
	)
}
