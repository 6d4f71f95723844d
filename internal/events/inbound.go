package events

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidEvent marks transport payloads rejected before the dedup ledger.
var ErrInvalidEvent = errors.New("events: invalid inbound event")

type EventType string

const (
	EventTypeText             EventType = "text"
	EventTypeInteractiveReply EventType = "interactive_reply"
)

const maxTextLength = 4096

// ConversationKey identifies one customer's conversation with one salon.
type ConversationKey struct {
	SalonID        string `json:"salon_id"`
	CustomerHandle string `json:"customer_handle"`
}

func (k ConversationKey) String() string {
	return k.SalonID + ":" + k.CustomerHandle
}

// InboundEvent is one message or button tap delivered by the messaging platform.
type InboundEvent struct {
	TransportEventID string          `json:"transport_event_id"`
	Key              ConversationKey `json:"conversation_key"`
	Type             EventType       `json:"type"`
	Text             string          `json:"text,omitempty"`
	PayloadID        string          `json:"payload_id,omitempty"`
	ReceivedAt       time.Time       `json:"received_at,omitempty"`
}

// Validate checks the shape of the event. Content (intent, payload meaning)
// is judged later by the router.
func (e *InboundEvent) Validate() error {
	e.TransportEventID = strings.TrimSpace(e.TransportEventID)
	e.Key.SalonID = strings.TrimSpace(e.Key.SalonID)
	e.Key.CustomerHandle = strings.TrimSpace(e.Key.CustomerHandle)

	switch {
	case e.TransportEventID == "":
		return fmt.Errorf("%w: transport_event_id required", ErrInvalidEvent)
	case e.Key.SalonID == "" || e.Key.CustomerHandle == "":
		return fmt.Errorf("%w: conversation_key requires salon_id and customer_handle", ErrInvalidEvent)
	}

	switch e.Type {
	case EventTypeText:
		if strings.TrimSpace(e.Text) == "" {
			return fmt.Errorf("%w: text event without text", ErrInvalidEvent)
		}
		if len(e.Text) > maxTextLength {
			return fmt.Errorf("%w: text exceeds %d bytes", ErrInvalidEvent, maxTextLength)
		}
	case EventTypeInteractiveReply:
		if strings.TrimSpace(e.PayloadID) == "" {
			return fmt.Errorf("%w: interactive reply without payload_id", ErrInvalidEvent)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, e.Type)
	}
	return nil
}
