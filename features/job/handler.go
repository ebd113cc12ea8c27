package job

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"resumeingest/internal/middleware"
	"resumeingest/internal/worker"
)

type Handler struct {
	service *Service
}

func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

// failedRun is the operator view of a ledger entry.
type failedRun struct {
	ID       string    `json:"id"`
	UserID   string    `json:"user_id"`
	Stage    string    `json:"stage"`
	Error    string    `json:"error"`
	Bucket   string    `json:"bucket"`
	Object   string    `json:"object"`
	Attempts int       `json:"attempts"`
	FailedAt time.Time `json:"failed_at"`
}

type failedRunList struct {
	FailedRuns []failedRun    `json:"failed_runs"`
	Count      int            `json:"count"`
	ByStage    map[string]int `json:"by_stage"`
}

func toFailedRun(j Job) failedRun {
	fr := failedRun{
		ID:       j.ID,
		UserID:   j.UserID,
		Stage:    j.Stage,
		Error:    j.Error,
		Attempts: j.Retries + 1,
		FailedAt: j.CreatedAt,
	}
	var payload worker.IngestTaskPayload
	if err := json.Unmarshal(j.Payload, &payload); err == nil {
		fr.Bucket, fr.Object = payload.Bucket, payload.Name
	}
	return fr
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jobs, err := h.service.List(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list failed runs", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
		return
	}

	resp := failedRunList{
		FailedRuns: make([]failedRun, 0, len(jobs)),
		Count:      len(jobs),
		ByStage:    map[string]int{},
	}
	for _, j := range jobs {
		resp.FailedRuns = append(resp.FailedRuns, toFailedRun(j))
		resp.ByStage[j.Stage]++
	}

	h.writeJSON(ctx, w, http.StatusOK, resp)
}

func (h *Handler) Retry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	replay, err := h.service.Retry(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			h.writeError(ctx, w, "NOT_FOUND", "failed run not found", http.StatusNotFound)
			return
		}
		slog.ErrorContext(ctx, "failed to replay run", "id", id, "error", err)
		h.writeError(ctx, w, "RETRY_FAILED", err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(ctx, w, http.StatusAccepted, replay)
}

func (h *Handler) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	h.writeJSON(ctx, w, status, map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	})
}
