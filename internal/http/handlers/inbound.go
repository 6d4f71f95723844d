package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/wolfman30/salon-concierge/internal/conversation"
	"github.com/wolfman30/salon-concierge/internal/events"
	"github.com/wolfman30/salon-concierge/pkg/logging"
)

const maxInboundBody = 64 << 10

// EventProcessor is implemented by conversation.Gateway.
type EventProcessor interface {
	Process(ctx context.Context, evt events.InboundEvent) (conversation.Outcome, error)
}

// EventEnqueuer is implemented by conversation.Publisher.
type EventEnqueuer interface {
	Enqueue(ctx context.Context, evt events.InboundEvent) (string, error)
}

// InboundHandler accepts inbound chat events from the messaging transport.
type InboundHandler struct {
	processor EventProcessor
	enqueuer  EventEnqueuer
	logger    *logging.Logger
}

// NewInboundHandler builds the handler. enqueuer may be nil when no queue is
// configured; HandleAsync then answers 503.
func NewInboundHandler(processor EventProcessor, enqueuer EventEnqueuer, logger *logging.Logger) *InboundHandler {
	if processor == nil {
		panic("handlers: processor cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &InboundHandler{processor: processor, enqueuer: enqueuer, logger: logger}
}

// Handle runs the event synchronously and returns {duplicate, reply}.
// Storage outages answer 503 so the transport redelivers.
func (h *InboundHandler) Handle(w http.ResponseWriter, r *http.Request) {
	evt, ok := h.decode(w, r)
	if !ok {
		return
	}

	out, err := h.processor.Process(r.Context(), evt)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, out)
	case errors.Is(err, events.ErrInvalidEvent):
		jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, conversation.ErrStorageUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		h.logger.Error("inbound event not processed", "error", err, "transport_event_id", evt.TransportEventID)
		jsonError(w, "temporarily unavailable", http.StatusServiceUnavailable)
	default:
		h.logger.Error("inbound event failed", "error", err, "transport_event_id", evt.TransportEventID)
		jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

// HandleAsync validates the event and queues it for the conversation worker.
func (h *InboundHandler) HandleAsync(w http.ResponseWriter, r *http.Request) {
	if h.enqueuer == nil {
		jsonError(w, "async intake not configured", http.StatusServiceUnavailable)
		return
	}
	evt, ok := h.decode(w, r)
	if !ok {
		return
	}

	jobID, err := h.enqueuer.Enqueue(r.Context(), evt)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
	case errors.Is(err, events.ErrInvalidEvent):
		jsonError(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("failed to enqueue inbound event", "error", err, "transport_event_id", evt.TransportEventID)
		jsonError(w, "temporarily unavailable", http.StatusServiceUnavailable)
	}
}

func (h *InboundHandler) decode(w http.ResponseWriter, r *http.Request) (events.InboundEvent, bool) {
	var evt events.InboundEvent
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxInboundBody)).Decode(&evt); err != nil {
		jsonError(w, "invalid JSON body", http.StatusBadRequest)
		return events.InboundEvent{}, false
	}
	return evt, true
}
