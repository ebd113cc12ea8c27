package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"resumeingest/internal/metrics"
	"resumeingest/internal/text"
)

const (
	DefaultEmbeddingConcurrency = 8
	DefaultEmbeddingTimeout     = 60 * time.Second
)

// InvalidEmbedding returns the marker used in place of a chunk embedding
// that could not be produced.
func InvalidEmbedding() []float32 {
	return []float32{}
}

type EmbeddingOptions struct {
	// Concurrency caps in-flight embedding calls per run.
	Concurrency int

	// Timeout bounds each individual embedding call.
	Timeout time.Duration

	// Dimensions, when positive, is the required vector length.
	Dimensions int
}

// EmbeddingGenerator fans one embedding request out per chunk and never
// fails as a whole: a chunk whose call errors, panics or returns an unusable
// vector gets the invalid marker at its position.
type EmbeddingGenerator struct {
	embedder Embedder
	opts     EmbeddingOptions
}

func NewEmbeddingGenerator(e Embedder, opts EmbeddingOptions) *EmbeddingGenerator {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultEmbeddingConcurrency
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultEmbeddingTimeout
	}
	return &EmbeddingGenerator{embedder: e, opts: opts}
}

// Generate returns exactly one entry per chunk, in chunk order.
func (g *EmbeddingGenerator) Generate(ctx context.Context, chunks []text.TextChunk) [][]float32 {
	out := make([][]float32, len(chunks))

	var group errgroup.Group
	group.SetLimit(g.opts.Concurrency)
	for i, c := range chunks {
		group.Go(func() error {
			out[i] = g.embedOne(ctx, c)
			return nil
		})
	}
	_ = group.Wait()

	return out
}

func (g *EmbeddingGenerator) embedOne(ctx context.Context, c text.TextChunk) (vec []float32) {
	defer func() {
		if r := recover(); r != nil {
			metrics.EmbeddingFailures.WithLabelValues("panic").Inc()
			slog.ErrorContext(ctx, "embedding call panicked", "chunk_index", c.Index, "panic", fmt.Sprint(r))
			vec = InvalidEmbedding()
		}
	}()

	callCtx, cancel := context.WithTimeout(ctx, g.opts.Timeout)
	defer cancel()

	v, err := g.embedder.Embed(callCtx, c.Content)
	if err != nil {
		metrics.EmbeddingFailures.WithLabelValues("error").Inc()
		slog.WarnContext(ctx, "embedding failed", "chunk_index", c.Index, "error", err)
		return InvalidEmbedding()
	}
	if reason := g.check(v); reason != "" {
		metrics.EmbeddingFailures.WithLabelValues(reason).Inc()
		slog.WarnContext(ctx, "embedding rejected", "chunk_index", c.Index, "reason", reason, "dimensions", len(v))
		return InvalidEmbedding()
	}
	return v
}

func (g *EmbeddingGenerator) check(v []float32) string {
	if len(v) == 0 {
		return "empty"
	}
	if g.opts.Dimensions > 0 && len(v) != g.opts.Dimensions {
		return "dimension_mismatch"
	}
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "non_finite"
		}
	}
	return ""
}
