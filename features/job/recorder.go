package job

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"resumeingest/internal/worker"
)

// Recorder writes failed pipeline runs to the ledger.
type Recorder struct {
	repo   Repository
	logger *slog.Logger
}

func NewRecorder(repo Repository, logger *slog.Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

// RecordFailure stores a failed run with enough of the event to replay it.
func (r *Recorder) RecordFailure(ctx context.Context, f worker.Failure) error {
	payload, err := json.Marshal(worker.NewIngestTaskPayload(ctx, f.Event))
	if err != nil {
		return fmt.Errorf("marshal failed run payload: %w", err)
	}
	j := &Job{
		UserID:  f.UserID,
		Stage:   string(f.Stage),
		Payload: payload,
		Error:   f.Err.Error(),
		Retries: f.Event.Attempt,
	}
	if err := r.repo.Save(ctx, j); err != nil {
		return fmt.Errorf("save failed run: %w", err)
	}
	r.logger.InfoContext(ctx, "failed run recorded", "job_id", j.ID, "stage", j.Stage, "user_id", j.UserID)
	return nil
}
