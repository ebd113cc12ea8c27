package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"resumeingest/features/job"
	"resumeingest/features/stats"
	"resumeingest/features/webhook"
	"resumeingest/internal/config"
	"resumeingest/internal/middleware"
	"resumeingest/internal/record"
	"resumeingest/internal/worker"
)

const (
	defaultMsgTimeout = 10 * time.Minute
	msgTimeoutMargin  = time.Minute
)

type App struct {
	Handler    http.Handler
	Pipeline   *worker.Pipeline
	Dispatcher worker.Dispatcher

	// Consumer is set when runs are handed off through NSQ.
	Consumer *worker.IngestConsumer

	cfg  *config.Config
	pool *worker.PoolDispatcher
	nsq  *nsq.Consumer
}

func New(cfg *config.Config, deps *Dependencies, logger *slog.Logger) (*App, error) {
	policy, err := record.ParsePolicy(cfg.StoreValidityPolicy)
	if err != nil {
		return nil, err
	}
	records := record.NewStore(deps.Records, policy)

	// Feature: Job (failed-run ledger)
	jobRepo := job.NewPostgresRepo(deps.DB)
	recorder := job.NewRecorder(jobRepo, logger)

	generator := worker.NewEmbeddingGenerator(deps.Embedder, worker.EmbeddingOptions{
		Concurrency: cfg.EmbeddingConcurrency,
		Timeout:     time.Duration(cfg.EmbeddingTimeoutSeconds) * time.Second,
		Dimensions:  cfg.EmbeddingDimensions,
	})
	pipeline := worker.NewPipeline(deps.Fetcher, deps.Extractor, generator, records,
		worker.PipelineConfig{
			ChunkSize:      cfg.ChunkSize,
			MimeType:       cfg.ExtractionMimeType,
			RequirePremium: cfg.RequirePremium,
			UserIDSegment:  cfg.UserIDSegment,
			RunTimeout:     time.Duration(cfg.RunTimeoutSeconds) * time.Second,
		},
		worker.WithFailureRecorder(recorder),
		worker.WithLogger(logger),
	)

	a := &App{Pipeline: pipeline, cfg: cfg}

	switch cfg.DispatchMode {
	case config.DispatchModeNSQ:
		if deps.NSQProducer == nil {
			return nil, fmt.Errorf("%w: nsq dispatch requires a producer", config.ErrMissingRequired)
		}
		a.Dispatcher = worker.NewQueueDispatcher(deps.NSQProducer, config.TopicIngestDocument)
		a.Consumer = worker.NewIngestConsumer(pipeline)
	default:
		pool, err := worker.NewPoolDispatcher(pipeline, cfg.IngestionConcurrency)
		if err != nil {
			return nil, err
		}
		a.pool = pool
		a.Dispatcher = pool
	}

	jobService := job.NewService(jobRepo, a.Dispatcher, logger)
	jobHandler := job.NewHandler(jobService)
	webhookHandler := webhook.NewHandler(a.Dispatcher, cfg.MaxWebhookBodyBytes)
	statsHandler := stats.NewHandler(jobRepo, worker.InFlight, cfg.StoreBackend, cfg.DispatchMode)

	// Routes
	mux := http.NewServeMux()

	mux.Handle("POST /{$}", middleware.CorrelationID(http.HandlerFunc(webhookHandler.Receive)))

	mux.Handle("GET /jobs/failed", middleware.CorrelationID(http.HandlerFunc(jobHandler.List)))
	mux.Handle("POST /jobs/{id}/retry", middleware.CorrelationID(http.HandlerFunc(jobHandler.Retry)))
	mux.Handle("GET /stats", middleware.CorrelationID(http.HandlerFunc(statsHandler.GetStats)))

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := pingDB(r.Context(), deps.DB); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	a.Handler = mux
	return a, nil
}

func pingDB(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// Run serves HTTP until ctx is cancelled, then stops intake and waits for
// in-flight runs up to the shutdown timeout.
func (a *App) Run(ctx context.Context) error {
	timeout := time.Duration(a.cfg.ShutdownTimeoutSeconds) * time.Second

	if a.Consumer != nil {
		if err := a.startConsumer(); err != nil {
			return err
		}
	}
	defer a.drain(timeout)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.ServerPort),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.cfg.ServerPort, "dispatch_mode", a.cfg.DispatchMode)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (a *App) startConsumer() error {
	nsqCfg := nsq.NewConfig()
	nsqCfg.MaxInFlight = a.cfg.NSQConsumerConcurrency
	nsqCfg.MsgTimeout = consumerMsgTimeout(a.cfg.RunTimeoutSeconds)

	consumer, err := nsq.NewConsumer(config.TopicIngestDocument, config.ChannelIngestor, nsqCfg)
	if err != nil {
		return fmt.Errorf("nsq consumer error: %w", err)
	}
	consumer.AddConcurrentHandlers(a.Consumer, a.cfg.NSQConsumerConcurrency)
	if err := consumer.ConnectToNSQLookupd(a.cfg.NSQLookupd); err != nil {
		return fmt.Errorf("nsq lookupd error: %w", err)
	}
	a.nsq = consumer
	return nil
}

// consumerMsgTimeout outlasts the run deadline so nsqd does not requeue a
// message whose run is still going. nsqd must allow it via --max-msg-timeout.
func consumerMsgTimeout(runTimeoutSeconds int) time.Duration {
	if runTimeoutSeconds <= 0 {
		return defaultMsgTimeout
	}
	return time.Duration(runTimeoutSeconds)*time.Second + msgTimeoutMargin
}

func (a *App) drain(timeout time.Duration) {
	if a.nsq != nil {
		a.nsq.Stop()
		select {
		case <-a.nsq.StopChan:
		case <-time.After(timeout):
			slog.Warn("nsq consumer did not stop in time")
		}
	}
	if a.pool != nil {
		if err := a.pool.Shutdown(timeout); err != nil {
			slog.Warn("ingestion pool did not drain in time", "error", err, "running", a.pool.Running())
		}
	}
}
