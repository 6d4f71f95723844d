package conversation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/wolfman30/salon-concierge/internal/events"
)

// Queue carries inbound events from the HTTP edge to the worker.
type Queue interface {
	Send(ctx context.Context, msg outboundMessage) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]queueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type queueMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// outboundMessage is one queue send. GroupID keeps a conversation's events in
// order on FIFO queues; DedupID lets the queue drop resends of one event.
type outboundMessage struct {
	Body    string
	GroupID string
	DedupID string
}

type jobType string

const jobTypeInbound jobType = "inbound_event.v1"

type queuePayload struct {
	ID    string              `json:"id"`
	Kind  jobType             `json:"kind"`
	Event events.InboundEvent `json:"event"`
}

func encodePayload(payload queuePayload) (queuePayload, string, error) {
	if payload.ID == "" {
		payload.ID = uuid.NewString()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return queuePayload{}, "", fmt.Errorf("conversation: failed to encode payload: %w", err)
	}

	return payload, string(body), nil
}
