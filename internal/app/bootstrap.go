package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"resumeingest/internal/adapter/documentai"
	"resumeingest/internal/adapter/gcs"
	"resumeingest/internal/adapter/gemini"
	mongostore "resumeingest/internal/adapter/mongo"
	"resumeingest/internal/adapter/openai"
	pgstore "resumeingest/internal/adapter/postgres"
	wstore "resumeingest/internal/adapter/weaviate"
	"resumeingest/internal/config"
	"resumeingest/internal/record"
	"resumeingest/internal/worker"
)

// Dependencies are the external clients the application is wired from.
type Dependencies struct {
	DB          *sql.DB
	Records     record.Backend
	Fetcher     worker.ObjectFetcher
	Extractor   worker.Extractor
	Embedder    worker.Embedder
	NSQProducer *nsq.Producer

	closers []func() error
}

// Close releases every client opened by Bootstrap, in reverse order.
func (d *Dependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errs = append(errs, d.closers[i]())
	}
	return errors.Join(errs...)
}

func (d *Dependencies) onClose(fn func() error) {
	d.closers = append(d.closers, fn)
}

// SchemaEnsurer is a store that must prepare its schema before use.
type SchemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}

func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	deps := &Dependencies{}
	out, err := bootstrap(ctx, cfg, deps)
	if err != nil {
		if closeErr := deps.Close(); closeErr != nil {
			slog.Warn("failed to release clients after bootstrap error", "error", closeErr)
		}
		return nil, err
	}
	return out, nil
}

func bootstrap(ctx context.Context, cfg *config.Config, deps *Dependencies) (*Dependencies, error) {

	// Database
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	deps.DB = db
	deps.onClose(db.Close)

	// Retry loop
	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
	for i := 0; i < cfg.BootstrapRetryAttempts; i++ {
		if err := db.PingContext(ctx); err == nil {
			break
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1)
		time.Sleep(retryDelay)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	// Migrations
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver error: %w", err)
	}
	m, err := migrate.NewWithDatabaseInstance(cfg.MigrationPath, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("migration instance error: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return nil, fmt.Errorf("migration up error: %w", err)
	}

	if err := bootstrapRecords(ctx, cfg, deps, retryDelay); err != nil {
		return nil, err
	}

	// Object store
	gcsClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("storage client error: %w", err)
	}
	deps.onClose(gcsClient.Close)
	deps.Fetcher = gcs.NewFetcher(gcsClient)

	// Text extraction
	endpoint := cfg.DocAIEndpoint
	if endpoint == "" {
		endpoint = documentai.RegionalEndpoint(cfg.GoogleLocation)
	}
	docOpts := []option.ClientOption{option.WithEndpoint(endpoint)}
	if cfg.DocAIInsecure {
		docOpts = append(docOpts,
			option.WithoutAuthentication(),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}
	extractor, err := documentai.New(ctx, cfg.DocAIProcessorName(), docOpts...)
	if err != nil {
		return nil, err
	}
	deps.onClose(extractor.Close)
	deps.Extractor = extractor

	// Embeddings
	switch cfg.EmbeddingProvider {
	case config.EmbeddingProviderGemini:
		e, err := gemini.NewEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel)
		if err != nil {
			return nil, fmt.Errorf("gemini embedder error: %w", err)
		}
		deps.onClose(e.Close)
		deps.Embedder = e
	default:
		model := cfg.EmbeddingModel
		if model == "" {
			model = "text-embedding-3-small"
		}
		e, err := openai.NewEmbedder(cfg.OpenAIAPIKey, model, cfg.OpenAIBaseURL)
		if err != nil {
			return nil, fmt.Errorf("openai embedder error: %w", err)
		}
		deps.Embedder = e
	}

	// NSQ Producer
	if cfg.DispatchMode == config.DispatchModeNSQ {
		producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
		if err != nil {
			return nil, fmt.Errorf("nsq producer error: %w", err)
		}
		deps.onClose(func() error { producer.Stop(); return nil })
		deps.NSQProducer = producer

		createTopics(cfg.NSQDHTTP)
	}

	return deps, nil
}

func bootstrapRecords(ctx context.Context, cfg *config.Config, deps *Dependencies, retryDelay time.Duration) error {
	switch cfg.StoreBackend {
	case config.StoreBackendMongo:
		client, err := mongostore.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return err
		}
		deps.onClose(func() error { return client.Disconnect(context.Background()) })

		store := mongostore.NewRecordStore(client, cfg.MongoDatabase, cfg.MongoCollection)
		if err := store.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("mongo index error: %w", err)
		}
		deps.Records = store

	case config.StoreBackendWeaviate:
		wClient, err := weaviate.NewClient(weaviate.Config{Host: cfg.WeaviateHost, Scheme: cfg.WeaviateScheme})
		if err != nil {
			return fmt.Errorf("weaviate client error: %w", err)
		}
		store := wstore.NewStore(wClient)
		if err := EnsureSchemaWithRetry(ctx, store, cfg.BootstrapRetryAttempts, retryDelay); err != nil {
			return fmt.Errorf("weaviate schema error: %w", err)
		}
		deps.Records = store

	default:
		deps.Records = pgstore.NewRecordStore(deps.DB)
	}

	slog.Info("record store ready", "backend", cfg.StoreBackend, "policy", cfg.StoreValidityPolicy)
	return nil
}

func createTopics(nsqdHTTP string) {
	create := func(topic string) {
		url := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTP, topic)
		resp, err := http.Post(url, "application/json", nil) // #nosec G107 -- URL is built from internal NSQ config, not user input
		if err != nil {
			slog.Warn("failed to create NSQ topic", "topic", topic, "error", err)
			return
		}
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close NSQ topic creation response body", "error", closeErr)
		}
	}

	go func() {
		time.Sleep(2 * time.Second)
		create(config.TopicIngestDocument)
	}()
}

// EnsureSchemaWithRetry delegates schema check to a helper with retry logic.
func EnsureSchemaWithRetry(ctx context.Context, store SchemaEnsurer, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = store.EnsureSchema(ctx); err == nil {
			return nil
		}
		if i < attempts-1 {
			time.Sleep(delay)
		}
	}
	return err
}
