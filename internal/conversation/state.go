package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/wolfman30/salon-concierge/internal/events"
	"github.com/wolfman30/salon-concierge/internal/intent"
	"github.com/wolfman30/salon-concierge/internal/slots"
)

var (
	// ErrStateConflict is returned by Put when the stored version moved on.
	ErrStateConflict = errors.New("conversation: state version conflict")
	// ErrStorageUnavailable wraps failures of the state store or ledger
	// backend. The turn is abandoned and the transport should redeliver.
	ErrStorageUnavailable = errors.New("conversation: storage unavailable")
)

type Phase string

const (
	PhaseIdle                 Phase = "IDLE"
	PhaseAwaitingSlotChoice   Phase = "AWAITING_SLOT_CHOICE"
	PhaseAwaitingConfirmation Phase = "AWAITING_CONFIRMATION"

	// PhaseEnded is never stored; it labels turns that deleted the state.
	PhaseEnded Phase = "ENDED"
)

// DefaultStateTTL is how long a conversation survives without activity.
const DefaultStateTTL = 10 * time.Minute

// OfferedSlot is one option shown to the customer. ID is the slot's index
// within the offer and is what button payloads refer to.
type OfferedSlot struct {
	ID   string          `json:"id"`
	Slot slots.Candidate `json:"slot"`
}

// State is everything remembered between turns of one conversation.
type State struct {
	Key           events.ConversationKey `json:"key"`
	Phase         Phase                  `json:"phase"`
	PendingIntent intent.BookingIntent   `json:"pending_intent"`
	OfferID       string                 `json:"offer_id,omitempty"`
	OfferedSlots  []OfferedSlot          `json:"offered_slots,omitempty"`
	ChosenSlotID  string                 `json:"chosen_slot_id,omitempty"`
	Version       int64                  `json:"version"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
	ExpiresAt     time.Time              `json:"expires_at"`
}

// NewState returns the IDLE state for a conversation that has none stored.
// Version 0 means "not yet persisted".
func NewState(key events.ConversationKey) *State {
	return &State{Key: key, Phase: PhaseIdle}
}

func (s *State) Slot(id string) (OfferedSlot, bool) {
	for _, o := range s.OfferedSlots {
		if o.ID == id {
			return o, true
		}
	}
	return OfferedSlot{}, false
}

func (s *State) Chosen() (OfferedSlot, bool) {
	if s.ChosenSlotID == "" {
		return OfferedSlot{}, false
	}
	return s.Slot(s.ChosenSlotID)
}

// Clone returns a deep copy so transitions never alias stored state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := *s
	out.OfferedSlots = append([]OfferedSlot(nil), s.OfferedSlots...)
	if s.PendingIntent.Date != nil {
		d := *s.PendingIntent.Date
		out.PendingIntent.Date = &d
	}
	if s.PendingIntent.Time != nil {
		t := *s.PendingIntent.Time
		out.PendingIntent.Time = &t
	}
	return &out
}

// StateStore keeps short-lived conversation state.
//
// Get returns (nil, nil) when no state exists or it expired. Put is a
// compare-and-swap on Version: it succeeds only when the stored version
// equals s.Version (0 meaning absent), then stores s with Version+1 and
// refreshes the TTL. Delete is idempotent.
type StateStore interface {
	Get(ctx context.Context, key events.ConversationKey) (*State, error)
	Put(ctx context.Context, s *State, ttl time.Duration) error
	Delete(ctx context.Context, key events.ConversationKey) error
}
