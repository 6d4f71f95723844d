package conversation

import (
	"errors"
	"strconv"
	"strings"

	"github.com/wolfman30/salon-concierge/internal/bookings"
	"github.com/wolfman30/salon-concierge/internal/intent"
	"github.com/wolfman30/salon-concierge/internal/schedule"
	"github.com/wolfman30/salon-concierge/internal/slots"
)

// Event is an input to Transition. Inbound messages start a turn; the
// remaining events report the result of a Command.
type Event interface{ isEvent() }

type (
	TextReceived     struct{ Text string }
	PayloadReceived  struct{ PayloadID string }
	IntentExtracted  struct{ Intent intent.BookingIntent }
	ExtractionFailed struct{ Err error }
	SlotsFound       struct {
		Search Search
		Slots  []slots.Candidate
	}
	BookingCommitted struct {
		Slot    OfferedSlot
		Booking *bookings.Booking
	}
	CommitConflicted struct{ Slot OfferedSlot }
)

func (TextReceived) isEvent()     {}
func (PayloadReceived) isEvent()  {}
func (IntentExtracted) isEvent()  {}
func (ExtractionFailed) isEvent() {}
func (SlotsFound) isEvent()       {}
func (BookingCommitted) isEvent() {}
func (CommitConflicted) isEvent() {}

// Command is I/O the router performs on behalf of Transition.
type Command interface{ isCommand() }

type (
	// Extract runs the intent extractor with the pending intent as prior.
	Extract struct{ Text string }
	// Search runs the slot finder over [From, To].
	Search struct {
		Intent  intent.BookingIntent
		From    schedule.Date
		To      schedule.Date
		Exclude []slots.Candidate
		Notice  string
		Widened bool
	}
	// Commit books the chosen slot.
	Commit struct{ Slot OfferedSlot }
)

func (Extract) isCommand() {}
func (Search) isCommand()  {}
func (Commit) isCommand()  {}

// Outcome labels for the audit trail and metrics.
const (
	OutcomeClarify      = "clarify"
	OutcomeOffered      = "offered"
	OutcomeNoSlots      = "no_slots"
	OutcomeSlotChosen   = "slot_chosen"
	OutcomeBooked       = "booked"
	OutcomeCancelled    = "cancelled"
	OutcomeStalePayload = "stale_payload"
	OutcomeRestate      = "restate"
	OutcomePending      = "pending"
)

// Env is the read-only context of one turn.
type Env struct {
	Catalog *schedule.Catalog
	// OfferID is minted by the caller once per turn and used if this turn
	// opens a new offer.
	OfferID   string
	WidenDays int
	MaxOffers int
}

// Step is the result of one transition. Exactly one of Command or Reply is
// set. Next is the state to persist (nil: unchanged); Delete ends the
// conversation.
type Step struct {
	Next    *State
	Delete  bool
	Command Command
	Reply   *Reply
	Outcome string
}

// Transition is the conversation state machine. It performs no I/O.
func Transition(s *State, ev Event, env Env) Step {
	switch e := ev.(type) {
	case TextReceived:
		return onText(s, e.Text, env)
	case PayloadReceived:
		act, err := Decode(e.PayloadID, s)
		if err != nil {
			return stalePayload(s, env)
		}
		return onAction(s, act, env)
	case IntentExtracted:
		return onIntent(s, e.Intent, env)
	case ExtractionFailed:
		r := TextReply(msgRestate)
		return Step{Reply: &r, Outcome: OutcomeRestate}
	case SlotsFound:
		return onSlots(s, e, env)
	case BookingCommitted:
		r := bookedReply(s.PendingIntent.ServiceName, e.Slot.Slot, env.Catalog.Location())
		return Step{Delete: true, Reply: &r, Outcome: OutcomeBooked}
	case CommitConflicted:
		if !s.PendingIntent.Complete() {
			return onIntent(s, s.PendingIntent, env)
		}
		cmd := searchFor(s.PendingIntent, msgJustTaken)
		cmd.Exclude = []slots.Candidate{e.Slot.Slot}
		return Step{Command: cmd, Outcome: OutcomePending}
	default:
		r := TextReply(msgRestate)
		return Step{Reply: &r, Outcome: OutcomeRestate}
	}
}

func onText(s *State, text string, env Env) Step {
	if act, ok := shortcut(text, s); ok {
		return onAction(s, act, env)
	}
	return Step{Command: Extract{Text: text}, Outcome: OutcomePending}
}

// shortcut maps bare replies like "2" or "yes" onto the open card so the
// customer does not have to tap.
func shortcut(text string, s *State) (Action, bool) {
	word := strings.Trim(strings.ToLower(strings.TrimSpace(text)), ".!")
	switch s.Phase {
	case PhaseAwaitingSlotChoice:
		if n, err := strconv.Atoi(word); err == nil {
			if _, ok := s.Slot(strconv.Itoa(n)); ok {
				return Action{Type: ActionSlotChoice, SlotID: strconv.Itoa(n)}, true
			}
		}
	case PhaseAwaitingConfirmation:
		switch word {
		case "yes", "y", "confirm", "ok", "okay", "sí", "si":
			if _, ok := s.Chosen(); ok {
				return Action{Type: ActionConfirm}, true
			}
		}
	}
	if s.Phase != PhaseIdle {
		switch word {
		case "no", "cancel", "stop":
			return Action{Type: ActionCancel}, true
		}
	}
	return Action{}, false
}

func onAction(s *State, act Action, env Env) Step {
	switch act.Type {
	case ActionSlotChoice:
		chosen, _ := s.Slot(act.SlotID)
		next := s.Clone()
		next.Phase = PhaseAwaitingConfirmation
		next.ChosenSlotID = chosen.ID
		r := confirmPromptReply(next.OfferID, chosen, next.PendingIntent.ServiceName, env.Catalog.Location())
		return Step{Next: next, Reply: &r, Outcome: OutcomeSlotChosen}
	case ActionConfirm:
		chosen, _ := s.Chosen()
		return Step{Command: Commit{Slot: chosen}, Outcome: OutcomePending}
	case ActionCancel:
		r := TextReply(msgCancelled)
		return Step{Delete: true, Reply: &r, Outcome: OutcomeCancelled}
	}
	return stalePayload(s, env)
}

// stalePayload answers a tap that cannot be honoured. When a card is still
// open it is shown again so the customer can carry on.
func stalePayload(s *State, env Env) Step {
	var r Reply
	loc := env.Catalog.Location()
	switch s.Phase {
	case PhaseAwaitingSlotChoice:
		r = offerReply(s.OfferID, s.OfferedSlots, s.PendingIntent.ServiceName, msgOlderButton, loc)
	case PhaseAwaitingConfirmation:
		if chosen, ok := s.Chosen(); ok {
			r = confirmPromptReply(s.OfferID, chosen, s.PendingIntent.ServiceName, loc)
			r.Body = msgOlderButton + " " + r.Body
			break
		}
		r = TextReply(msgStale)
	default:
		r = TextReply(msgStale)
	}
	return Step{Reply: &r, Outcome: OutcomeStalePayload}
}

func onIntent(s *State, in intent.BookingIntent, env Env) Step {
	if in.Complete() {
		return Step{Command: searchFor(in, ""), Outcome: OutcomePending}
	}
	next := s.Clone()
	resetOffer(next)
	next.PendingIntent = in
	r := clarifyReply(in.Missing(), env.Catalog, in)
	if in == (intent.BookingIntent{}) && s.Version == 0 {
		// Nothing learned and nothing stored: don't open a conversation.
		return Step{Reply: &r, Outcome: OutcomeClarify}
	}
	return Step{Next: next, Reply: &r, Outcome: OutcomeClarify}
}

func onSlots(s *State, e SlotsFound, env Env) Step {
	in := e.Search.Intent
	if len(e.Slots) == 0 {
		if !e.Search.Widened && env.WidenDays > 0 {
			wide := e.Search
			wide.From = e.Search.To.AddDays(1)
			wide.To = e.Search.To.AddDays(env.WidenDays)
			wide.Widened = true
			return Step{Command: wide, Outcome: OutcomePending}
		}
		next := s.Clone()
		resetOffer(next)
		next.PendingIntent = in.WithoutDate()
		r := noSlotsReply(in.ServiceName, e.Search.Notice)
		return Step{Next: next, Reply: &r, Outcome: OutcomeNoSlots}
	}

	limit := env.MaxOffers
	if limit <= 0 || limit > MaxOptions {
		limit = MaxOptions
	}
	found := e.Slots
	if len(found) > limit {
		found = found[:limit]
	}
	next := s.Clone()
	next.Phase = PhaseAwaitingSlotChoice
	next.PendingIntent = in
	next.OfferID = env.OfferID
	next.ChosenSlotID = ""
	next.OfferedSlots = make([]OfferedSlot, 0, len(found))
	for i, c := range found {
		next.OfferedSlots = append(next.OfferedSlots, OfferedSlot{ID: strconv.Itoa(i + 1), Slot: c})
	}
	r := offerReply(next.OfferID, next.OfferedSlots, in.ServiceName, e.Search.Notice, env.Catalog.Location())
	return Step{Next: next, Reply: &r, Outcome: OutcomeOffered}
}

func searchFor(in intent.BookingIntent, notice string) Search {
	var day schedule.Date
	if in.Date != nil {
		day = *in.Date
	}
	return Search{Intent: in, From: day, To: day, Notice: notice}
}

func resetOffer(s *State) {
	s.Phase = PhaseIdle
	s.OfferID = ""
	s.OfferedSlots = nil
	s.ChosenSlotID = ""
}

// errorEvent converts a command failure into the event Transition expects,
// or reports that the failure must abort the turn.
func errorEvent(cmd Command, err error) (Event, bool) {
	switch c := cmd.(type) {
	case Extract:
		return ExtractionFailed{Err: err}, true
	case Commit:
		if errors.Is(err, bookings.ErrSlotConflict) || errors.Is(err, bookings.ErrUnknownStaff) {
			return CommitConflicted{Slot: c.Slot}, true
		}
	}
	return nil, false
}
