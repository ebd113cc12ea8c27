package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"resumeingest/internal/metrics"
	"resumeingest/internal/record"
	"resumeingest/internal/text"
)

const recordFailureTimeout = 5 * time.Second

type PipelineConfig struct {
	ChunkSize      int
	MimeType       string
	RequirePremium bool
	RunTimeout     time.Duration

	// UserIDSegment is the zero-based "/" segment of the object key that
	// names the owning user.
	UserIDSegment int
}

type PipelineOption func(*Pipeline)

func WithFailureRecorder(r FailureRecorder) PipelineOption {
	return func(p *Pipeline) { p.failures = r }
}

func WithLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// Pipeline runs fetch, extract, chunk, embed and store for one event.
type Pipeline struct {
	fetcher   ObjectFetcher
	extractor Extractor
	generator *EmbeddingGenerator
	records   RecordReplacer
	failures  FailureRecorder
	cfg       PipelineConfig
	logger    *slog.Logger
}

func NewPipeline(f ObjectFetcher, x Extractor, g *EmbeddingGenerator, r RecordReplacer, cfg PipelineConfig, opts ...PipelineOption) *Pipeline {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = text.DefaultChunkSize
	}
	if cfg.MimeType == "" {
		cfg.MimeType = "application/pdf"
	}
	p := &Pipeline{
		fetcher:   f,
		extractor: x,
		generator: g,
		records:   r,
		cfg:       cfg,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// UserIDFromKey returns the given "/" segment of key.
func UserIDFromKey(key string, segment int) (string, error) {
	parts := strings.Split(key, "/")
	if segment < 0 || segment >= len(parts) || strings.TrimSpace(parts[segment]) == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidObjectKey, key)
	}
	return parts[segment], nil
}

// Run processes one event to a terminal outcome. The returned error is
// non-nil only for OutcomeFailed.
func (p *Pipeline) Run(ctx context.Context, ev Event) (Outcome, error) {
	if p.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.RunTimeout)
		defer cancel()
	}

	log := p.logger.With("bucket", ev.ContainerID, "object", ev.ObjectKey)

	userID, err := UserIDFromKey(ev.ObjectKey, p.cfg.UserIDSegment)
	if err != nil {
		return p.fail(ctx, log, Failure{Event: ev, Stage: StageInvalidKey, Err: err})
	}
	log = log.With("user_id", userID)

	if p.cfg.RequirePremium {
		var md map[string]string
		err := timed(StageMetadata, func() (err error) {
			md, err = p.fetcher.Metadata(ctx, ev.ContainerID, ev.ObjectKey)
			return err
		})
		if err != nil {
			return p.fail(ctx, log, Failure{Event: ev, UserID: userID, Stage: StageMetadata, Err: err})
		}
		if !IsPremium(md) {
			log.InfoContext(ctx, "user is not premium, skipping ingestion")
			return p.done(OutcomeSkippedEntitlement), nil
		}
	}

	var content []byte
	err = timed(StageDownload, func() (err error) {
		content, err = p.fetcher.Download(ctx, ev.ContainerID, ev.ObjectKey)
		return err
	})
	if err != nil {
		return p.fail(ctx, log, Failure{Event: ev, UserID: userID, Stage: StageDownload, Err: err})
	}

	var extracted string
	err = timed(StageExtraction, func() (err error) {
		extracted, err = p.extractor.Extract(ctx, content, p.cfg.MimeType)
		return err
	})
	if err != nil {
		return p.fail(ctx, log, Failure{Event: ev, UserID: userID, Stage: StageExtraction, Err: err})
	}

	chunks := text.Chunk(extracted, p.cfg.ChunkSize)
	if len(chunks) == 0 {
		log.InfoContext(ctx, "document contains no text, nothing to store")
		return p.done(OutcomeSkippedEmpty), nil
	}

	var embeddings [][]float32
	_ = timed(StageEmbedding, func() error {
		embeddings = p.generator.Generate(ctx, chunks)
		return nil
	})

	var res record.Result
	err = timed(StagePersistence, func() (err error) {
		res, err = p.records.Replace(ctx, userID, text.Contents(chunks), embeddings)
		return err
	})
	if err != nil {
		return p.fail(ctx, log, Failure{Event: ev, UserID: userID, Stage: StagePersistence, Err: err})
	}

	if res.Cleared {
		log.WarnContext(ctx, "no valid embeddings, existing record cleared", "chunks", len(chunks))
		return p.done(OutcomeCleared), nil
	}

	metrics.StoredChunks.Add(float64(res.Stored))
	log.InfoContext(ctx, "resume ingested", "chunks", len(chunks), "stored", res.Stored, "dropped", res.Dropped)
	return p.done(OutcomeStored), nil
}

func (p *Pipeline) done(o Outcome) Outcome {
	metrics.PipelineRuns.WithLabelValues(string(o), "").Inc()
	return o
}

func (p *Pipeline) fail(ctx context.Context, log *slog.Logger, f Failure) (Outcome, error) {
	metrics.PipelineRuns.WithLabelValues(string(OutcomeFailed), string(f.Stage)).Inc()
	log.ErrorContext(ctx, "ingestion failed", "stage", f.Stage, "error", f.Err)

	// A malformed key cannot succeed on retry.
	if p.failures != nil && !errors.Is(f.Err, ErrInvalidObjectKey) {
		// The run deadline may already have passed; the ledger write must not
		// inherit it.
		recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordFailureTimeout)
		defer cancel()
		if err := p.failures.RecordFailure(recCtx, f); err != nil {
			log.ErrorContext(ctx, "failed to record failed run", "error", err)
		}
	}
	return OutcomeFailed, fmt.Errorf("%s: %w", f.Stage, f.Err)
}

func timed(stage Stage, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
	return err
}
