package conversation

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPayload covers every button payload that cannot be acted on:
// malformed ids, expired conversations, buttons from an older offer, and
// actions that do not fit the current phase.
var ErrInvalidPayload = errors.New("conversation: invalid payload")

const payloadVersion = "bk1"

type ActionType string

const (
	ActionSlotChoice ActionType = "SLOT_CHOICE"
	ActionConfirm    ActionType = "CONFIRM"
	ActionCancel     ActionType = "CANCEL"
)

// Action is a decoded button tap.
type Action struct {
	Type   ActionType
	SlotID string
}

func SlotPayloadID(offerID, slotID string) string {
	return payloadVersion + ".slot." + offerID + "." + slotID
}

func ConfirmPayloadID(offerID string) string {
	return payloadVersion + ".confirm." + offerID
}

func CancelPayloadID(offerID string) string {
	return payloadVersion + ".cancel." + offerID
}

// Decode validates payloadID against the live state s. It never mutates s.
func Decode(payloadID string, s *State) (Action, error) {
	parts := strings.Split(strings.TrimSpace(payloadID), ".")
	if len(parts) < 3 || parts[0] != payloadVersion || parts[2] == "" {
		return Action{}, fmt.Errorf("%w: malformed %q", ErrInvalidPayload, payloadID)
	}
	if s == nil || s.Phase == PhaseIdle || s.OfferID == "" {
		return Action{}, fmt.Errorf("%w: no open offer", ErrInvalidPayload)
	}
	if parts[2] != s.OfferID {
		return Action{}, fmt.Errorf("%w: offer %s is not current", ErrInvalidPayload, parts[2])
	}

	switch parts[1] {
	case "slot":
		if len(parts) != 4 {
			return Action{}, fmt.Errorf("%w: malformed %q", ErrInvalidPayload, payloadID)
		}
		if s.Phase != PhaseAwaitingSlotChoice {
			return Action{}, fmt.Errorf("%w: slot choice while %s", ErrInvalidPayload, s.Phase)
		}
		if _, ok := s.Slot(parts[3]); !ok {
			return Action{}, fmt.Errorf("%w: slot %s was not offered", ErrInvalidPayload, parts[3])
		}
		return Action{Type: ActionSlotChoice, SlotID: parts[3]}, nil
	case "confirm":
		if len(parts) != 3 {
			return Action{}, fmt.Errorf("%w: malformed %q", ErrInvalidPayload, payloadID)
		}
		if s.Phase != PhaseAwaitingConfirmation {
			return Action{}, fmt.Errorf("%w: confirm while %s", ErrInvalidPayload, s.Phase)
		}
		if _, ok := s.Chosen(); !ok {
			return Action{}, fmt.Errorf("%w: nothing chosen", ErrInvalidPayload)
		}
		return Action{Type: ActionConfirm}, nil
	case "cancel":
		if len(parts) != 3 {
			return Action{}, fmt.Errorf("%w: malformed %q", ErrInvalidPayload, payloadID)
		}
		return Action{Type: ActionCancel}, nil
	default:
		return Action{}, fmt.Errorf("%w: unknown action %q", ErrInvalidPayload, parts[1])
	}
}
