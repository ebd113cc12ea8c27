package worker

import (
	"context"

	"resumeingest/internal/middleware"
)

// IngestTaskPayload is the queued form of an Event. It is also what the
// failed-run ledger stores for operator retries.
type IngestTaskPayload struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	Attempt     int    `json:"attempt,omitempty"`

	CorrelationID string `json:"correlation_id"`
}

func NewIngestTaskPayload(ctx context.Context, ev Event) IngestTaskPayload {
	id := middleware.GetCorrelationID(ctx)
	if id == "unknown" {
		id = ""
	}
	return IngestTaskPayload{
		Bucket:        ev.ContainerID,
		Name:          ev.ObjectKey,
		ContentType:   ev.ContentType,
		Attempt:       ev.Attempt,
		CorrelationID: id,
	}
}

func (p IngestTaskPayload) Event() Event {
	return Event{ContainerID: p.Bucket, ObjectKey: p.Name, ContentType: p.ContentType, Attempt: p.Attempt}
}

// Context returns a background context carrying the payload's correlation ID.
func (p IngestTaskPayload) Context() context.Context {
	ctx := context.Background()
	if p.CorrelationID != "" {
		ctx = middleware.WithCorrelationID(ctx, p.CorrelationID)
	}
	return ctx
}
