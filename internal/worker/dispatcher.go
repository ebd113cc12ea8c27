package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"resumeingest/internal/metrics"
)

// Runner executes one ingestion run. *Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, ev Event) (Outcome, error)
}

// Dispatcher hands an accepted event to background work without waiting
// for it to finish.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev Event) error
}

var inFlight atomic.Int64

// InFlight reports the number of runs currently inside RunDetached.
func InFlight() int64 {
	return inFlight.Load()
}

// RunDetached executes a single run inside the catch-all fault boundary.
// Nothing escapes it: errors are logged and panics are recovered.
func RunDetached(ctx context.Context, runner Runner, ev Event) {
	inFlight.Add(1)
	metrics.InFlight.Inc()
	defer func() {
		inFlight.Add(-1)
		metrics.InFlight.Dec()
	}()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			metrics.UnhandledFaults.Inc()
			slog.ErrorContext(ctx, "unhandled fault in ingestion run",
				"bucket", ev.ContainerID,
				"object", ev.ObjectKey,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()

	outcome, err := runner.Run(ctx, ev)
	attrs := []any{"bucket", ev.ContainerID, "object", ev.ObjectKey, "outcome", outcome, "duration", time.Since(start)}
	if err != nil {
		slog.WarnContext(ctx, "ingestion run ended with failure", append(attrs, "error", err)...)
		return
	}
	slog.InfoContext(ctx, "ingestion run finished", attrs...)
}

// PoolDispatcher runs events on a bounded in-process goroutine pool.
type PoolDispatcher struct {
	pool   *ants.Pool
	runner Runner
}

func NewPoolDispatcher(runner Runner, size int) (*PoolDispatcher, error) {
	pool, err := ants.NewPool(size,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p any) {
			metrics.UnhandledFaults.Inc()
			slog.Error("ingestion pool worker panicked", "panic", fmt.Sprint(p))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create ingestion pool: %w", err)
	}
	return &PoolDispatcher{pool: pool, runner: runner}, nil
}

// Dispatch detaches the run from the request context so that the caller's
// cancellation does not abort it.
func (d *PoolDispatcher) Dispatch(ctx context.Context, ev Event) error {
	runCtx := context.WithoutCancel(ctx)
	err := d.pool.Submit(func() {
		RunDetached(runCtx, d.runner, ev)
	})
	if err != nil {
		metrics.DispatchRejections.WithLabelValues("pool").Inc()
		return fmt.Errorf("submit ingestion run: %w", err)
	}
	return nil
}

func (d *PoolDispatcher) Running() int {
	return d.pool.Running()
}

// Shutdown stops accepting work and waits up to timeout for running units.
func (d *PoolDispatcher) Shutdown(timeout time.Duration) error {
	return d.pool.ReleaseTimeout(timeout)
}

type TaskPublisher interface {
	Publish(topic string, body []byte) error
}

// QueueDispatcher publishes events to the ingestion topic for IngestConsumer.
type QueueDispatcher struct {
	publisher TaskPublisher
	topic     string
}

func NewQueueDispatcher(p TaskPublisher, topic string) *QueueDispatcher {
	return &QueueDispatcher{publisher: p, topic: topic}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, ev Event) error {
	body, err := json.Marshal(NewIngestTaskPayload(ctx, ev))
	if err != nil {
		return fmt.Errorf("marshal ingest task: %w", err)
	}
	if err := d.publisher.Publish(d.topic, body); err != nil {
		metrics.DispatchRejections.WithLabelValues("nsq").Inc()
		return fmt.Errorf("publish ingest task: %w", err)
	}
	return nil
}
