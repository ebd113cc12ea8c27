package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Webhook intake
	WebhookDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resume_ingest_webhook_deliveries_total",
			Help: "Push deliveries received, by handling result",
		},
		[]string{"result"},
	)

	DispatchRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resume_ingest_dispatch_rejections_total",
			Help: "Accepted events that could not be handed to a background worker",
		},
		[]string{"mode"},
	)

	// Pipeline
	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resume_ingest_pipeline_runs_total",
			Help: "Pipeline runs by terminal outcome and failing stage",
		},
		[]string{"outcome", "stage"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "resume_ingest_stage_duration_seconds",
			Help:    "Duration of individual pipeline stages",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"stage"},
	)

	EmbeddingFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "resume_ingest_embedding_failures_total",
			Help: "Chunks whose embedding was replaced by the invalid marker",
		},
		[]string{"reason"},
	)

	StoredChunks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "resume_ingest_stored_chunks_total",
			Help: "Chunks persisted across all records",
		},
	)

	UnhandledFaults = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "resume_ingest_unhandled_faults_total",
			Help: "Panics recovered at the background unit boundary",
		},
	)

	InFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "resume_ingest_inflight_runs",
			Help: "Pipeline runs currently executing",
		},
	)
)
