package conversation

import (
	"context"
	"fmt"

	"github.com/wolfman30/salon-concierge/internal/events"
	"github.com/wolfman30/salon-concierge/pkg/logging"
)

// Publisher enqueues inbound events for the conversation worker.
type Publisher struct {
	queue  Queue
	logger *logging.Logger
}

// NewPublisher creates a queue-backed publisher.
func NewPublisher(queue Queue, logger *logging.Logger) *Publisher {
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{
		queue:  queue,
		logger: logger,
	}
}

// Enqueue validates evt and publishes it. Deduplication happens when the
// worker processes it, so publishing the same event twice is harmless.
func (p *Publisher) Enqueue(ctx context.Context, evt events.InboundEvent) (string, error) {
	if err := evt.Validate(); err != nil {
		return "", err
	}
	payload, body, err := encodePayload(queuePayload{Kind: jobTypeInbound, Event: evt})
	if err != nil {
		return "", err
	}
	msg := outboundMessage{Body: body, GroupID: evt.Key.String(), DedupID: evt.TransportEventID}
	if err := p.queue.Send(ctx, msg); err != nil {
		return "", fmt.Errorf("conversation: failed to enqueue event: %w", err)
	}
	p.logger.Debug("inbound event enqueued", "job_id", payload.ID, "transport_event_id", evt.TransportEventID)
	return payload.ID, nil
}
