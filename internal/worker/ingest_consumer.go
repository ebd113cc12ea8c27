package worker

import (
	"encoding/json"
	"log/slog"

	"github.com/nsqio/go-nsq"
)

// IngestConsumer runs queued ingestion tasks. It always finishes the
// message: a failed run is recorded by the pipeline, not redelivered.
type IngestConsumer struct {
	runner Runner
}

func NewIngestConsumer(r Runner) *IngestConsumer {
	return &IngestConsumer{runner: r}
}

func (h *IngestConsumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}

	var payload IngestTaskPayload
	if err := json.Unmarshal(m.Body, &payload); err != nil {
		// Poison Pill: Invalid JSON, don't retry
		slog.Error("poison pill: invalid json", "error", err)
		return nil
	}
	if payload.Bucket == "" || payload.Name == "" {
		slog.Error("poison pill: task without bucket or object name", "bucket", payload.Bucket, "object", payload.Name)
		return nil
	}

	RunDetached(payload.Context(), h.runner, payload.Event())
	return nil
}
