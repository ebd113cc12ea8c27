package webhook

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"resumeingest/internal/metrics"
	"resumeingest/internal/worker"
)

const DefaultMaxBodyBytes = 1 << 20

// Handler acknowledges push deliveries and hands accepted events to the
// dispatcher. It never waits for a pipeline run.
type Handler struct {
	dispatcher   worker.Dispatcher
	maxBodyBytes int64
}

func NewHandler(d worker.Dispatcher, maxBodyBytes int64) *Handler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &Handler{dispatcher: d, maxBodyBytes: maxBodyBytes}
}

func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		slog.WarnContext(ctx, "unreadable push body, discarding", "error", err)
		h.ack(w, "discarded", "Message discarded.")
		return
	}

	ev, env, err := Decode(body)
	if errors.Is(err, ErrMissingData) {
		slog.WarnContext(ctx, "push message without data, discarding")
		h.ack(w, "no_data", "No message data, message discarded.")
		return
	}
	if err != nil {
		// Redelivery cannot fix a malformed message.
		slog.WarnContext(ctx, "malformed push message, discarding", "error", err)
		h.ack(w, "discarded", "Malformed message, message discarded.")
		return
	}

	log := slog.With("bucket", ev.ContainerID, "object", ev.ObjectKey, "message_id", env.Message.MessageID)
	if err := h.dispatcher.Dispatch(ctx, ev); err != nil {
		log.ErrorContext(ctx, "failed to dispatch ingestion", "error", err)
		metrics.WebhookDeliveries.WithLabelValues("dispatch_failed").Inc()
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		io.WriteString(w, "Error accepting message.")
		return
	}

	log.InfoContext(ctx, "ingestion accepted")
	h.ack(w, "accepted", "Accepted.")
}

func (h *Handler) ack(w http.ResponseWriter, result, message string) {
	metrics.WebhookDeliveries.WithLabelValues(result).Inc()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, message)
}
