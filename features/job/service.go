package job

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"resumeingest/internal/worker"
)

type Service struct {
	repo       Repository
	dispatcher worker.Dispatcher
	logger     *slog.Logger
}

func NewService(repo Repository, d worker.Dispatcher, logger *slog.Logger) *Service {
	return &Service{repo: repo, dispatcher: d, logger: logger}
}

func (s *Service) List(ctx context.Context) ([]Job, error) {
	return s.repo.List(ctx)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}

// Replay acknowledges a re-dispatched failed run.
type Replay struct {
	JobID       string `json:"job_id"`
	UserID      string `json:"user_id"`
	FailedStage string `json:"failed_stage"`
	Bucket      string `json:"bucket"`
	Object      string `json:"object"`
	Attempt     int    `json:"attempt"`
}

// Retry re-dispatches a failed run and removes it from the ledger. A run
// that fails again is recorded as a new entry by the pipeline.
func (s *Service) Retry(ctx context.Context, id string) (*Replay, error) {
	j, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var payload worker.IngestTaskPayload
	if err := json.Unmarshal(j.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode failed run payload: %w", err)
	}

	runCtx := ctx
	if payload.CorrelationID != "" {
		runCtx = payload.Context()
	}
	ev := payload.Event()
	ev.Attempt = j.Retries + 1
	if err := s.dispatcher.Dispatch(runCtx, ev); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "failed run re-dispatched", "job_id", id, "user_id", j.UserID, "attempt", ev.Attempt)

	if err := s.repo.Delete(ctx, id); err != nil {
		return nil, err
	}
	return &Replay{
		JobID:       j.ID,
		UserID:      j.UserID,
		FailedStage: j.Stage,
		Bucket:      ev.ContainerID,
		Object:      ev.ObjectKey,
		Attempt:     ev.Attempt,
	}, nil
}
