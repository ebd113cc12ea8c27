package stats

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"resumeingest/internal/middleware"
)

type JobRepo interface {
	Count(ctx context.Context) (int, error)
}

type Handler struct {
	jobRepo      JobRepo
	inFlight     func() int64
	storeBackend string
	dispatchMode string
}

func NewHandler(j JobRepo, inFlight func() int64, storeBackend, dispatchMode string) *Handler {
	return &Handler{jobRepo: j, inFlight: inFlight, storeBackend: storeBackend, dispatchMode: dispatchMode}
}

type StatsResponse struct {
	FailedJobs   int    `json:"failed_jobs"`
	InFlightRuns int64  `json:"in_flight_runs"`
	StoreBackend string `json:"store_backend"`
	DispatchMode string `json:"dispatch_mode"`
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	jCount, err := h.jobRepo.Count(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to count jobs", "error", err)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to count jobs", http.StatusInternalServerError)
		return
	}

	resp := StatsResponse{
		FailedJobs:   jCount,
		InFlightRuns: h.inFlight(),
		StoreBackend: h.storeBackend,
		DispatchMode: h.dispatchMode,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": resp}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
