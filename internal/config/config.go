package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var (
	ErrMissingRequired = errors.New("missing required configuration")
	ErrInvalidValue    = errors.New("invalid configuration value")
)

const (
	StoreBackendPostgres = "postgres"
	StoreBackendMongo    = "mongo"
	StoreBackendWeaviate = "weaviate"

	DispatchModePool = "pool"
	DispatchModeNSQ  = "nsq"

	EmbeddingProviderOpenAI = "openai"
	EmbeddingProviderGemini = "gemini"
)

type Config struct {
	ServerPort int    `envconfig:"PORT" default:"8080"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`

	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"ingest"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"ingest"`

	MigrationPath string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Record store
	StoreBackend        string `envconfig:"STORE_BACKEND" default:"postgres"`
	StoreValidityPolicy string `envconfig:"STORE_VALIDITY_POLICY" default:"strict"`
	MongoURI            string `envconfig:"MONGO_URI"`
	MongoDatabase       string `envconfig:"MONGO_DATABASE" default:"resume-analyser"`
	MongoCollection     string `envconfig:"MONGO_COLLECTION" default:"resumes"`
	WeaviateHost        string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme      string `envconfig:"WEAVIATE_SCHEME" default:"http"`

	// Background dispatch
	DispatchMode           string `envconfig:"DISPATCH_MODE" default:"pool"`
	IngestionConcurrency   int    `envconfig:"INGESTION_CONCURRENCY" default:"50"`
	NSQLookupd             string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost               string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP               string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`
	NSQConsumerConcurrency int    `envconfig:"NSQ_CONSUMER_CONCURRENCY" default:"4"`
	ShutdownTimeoutSeconds int    `envconfig:"SHUTDOWN_TIMEOUT_SECONDS" default:"30"`
	RunTimeoutSeconds      int    `envconfig:"RUN_TIMEOUT_SECONDS" default:"600"`

	// Document AI
	GoogleProjectID    string `envconfig:"GOOGLE_PROJECT_ID"`
	GoogleLocation     string `envconfig:"GOOGLE_REGION_LOCATION" default:"us"`
	DocAIProcessorID   string `envconfig:"GOOGLE_RESUME_PARSER_PROCESSOR_ID"`
	DocAIEndpoint      string `envconfig:"DOCAI_ENDPOINT"`
	DocAIInsecure      bool   `envconfig:"DOCAI_INSECURE" default:"false"`
	ExtractionMimeType string `envconfig:"EXTRACTION_MIME_TYPE" default:"application/pdf"`

	// Embeddings
	EmbeddingProvider       string `envconfig:"EMBEDDING_PROVIDER" default:"openai"`
	EmbeddingModel          string `envconfig:"EMBEDDING_MODEL"`
	EmbeddingConcurrency    int    `envconfig:"EMBEDDING_CONCURRENCY" default:"8"`
	EmbeddingDimensions     int    `envconfig:"EMBEDDING_DIMENSIONS" default:"0"`
	EmbeddingTimeoutSeconds int    `envconfig:"EMBEDDING_TIMEOUT_SECONDS" default:"60"`
	OpenAIAPIKey            string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL           string `envconfig:"OPENAI_BASE_URL"`
	GeminiAPIKey            string `envconfig:"GEMINI_API_KEY"`

	// Pipeline
	ChunkSize           int   `envconfig:"CHUNK_SIZE" default:"1000"`
	RequirePremium      bool  `envconfig:"REQUIRE_PREMIUM" default:"true"`
	UserIDSegment       int   `envconfig:"USER_ID_SEGMENT" default:"1"`
	MaxWebhookBodyBytes int64 `envconfig:"MAX_WEBHOOK_BODY_BYTES" default:"1048576"` // 1MB

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Try loading .env from current dir and repo root
	// Ignore errors, as env vars might be set in the shell
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	rootEnv := filepath.Join(cwd, "../../.env")
	_ = godotenv.Load(rootEnv)

	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}

	switch c.StoreBackend {
	case StoreBackendPostgres, StoreBackendWeaviate:
	case StoreBackendMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("%w: MONGO_URI", ErrMissingRequired)
		}
	default:
		return fmt.Errorf("%w: STORE_BACKEND=%q", ErrInvalidValue, c.StoreBackend)
	}

	if c.StoreValidityPolicy != "strict" && c.StoreValidityPolicy != "lenient" {
		return fmt.Errorf("%w: STORE_VALIDITY_POLICY=%q", ErrInvalidValue, c.StoreValidityPolicy)
	}
	if c.DispatchMode != DispatchModePool && c.DispatchMode != DispatchModeNSQ {
		return fmt.Errorf("%w: DISPATCH_MODE=%q", ErrInvalidValue, c.DispatchMode)
	}
	if c.EmbeddingProvider != EmbeddingProviderOpenAI && c.EmbeddingProvider != EmbeddingProviderGemini {
		return fmt.Errorf("%w: EMBEDDING_PROVIDER=%q", ErrInvalidValue, c.EmbeddingProvider)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: CHUNK_SIZE must be positive", ErrInvalidValue)
	}
	if c.UserIDSegment < 0 {
		return fmt.Errorf("%w: USER_ID_SEGMENT must not be negative", ErrInvalidValue)
	}
	if c.IngestionConcurrency <= 0 || c.EmbeddingConcurrency <= 0 {
		return fmt.Errorf("%w: concurrency limits must be positive", ErrInvalidValue)
	}
	return nil
}

// DocAIProcessorName is the fully qualified processor resource name.
func (c *Config) DocAIProcessorName() string {
	return fmt.Sprintf("projects/%s/locations/%s/processors/%s", c.GoogleProjectID, c.GoogleLocation, c.DocAIProcessorID)
}
