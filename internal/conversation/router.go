package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/salon-concierge/internal/audit"
	"github.com/wolfman30/salon-concierge/internal/bookings"
	"github.com/wolfman30/salon-concierge/internal/events"
	"github.com/wolfman30/salon-concierge/internal/intent"
	"github.com/wolfman30/salon-concierge/internal/observability/metrics"
	"github.com/wolfman30/salon-concierge/internal/schedule"
	"github.com/wolfman30/salon-concierge/internal/slots"
	"github.com/wolfman30/salon-concierge/pkg/clock"
	"github.com/wolfman30/salon-concierge/pkg/logging"
)

// maxStepsPerTurn bounds command round trips: extract, search, widened
// search, plus a commit followed by a re-search and its widening.
const maxStepsPerTurn = 8

// postCommitTimeout bounds state cleanup and audit writes after a booking.
const postCommitTimeout = 3 * time.Second

type IntentExtractor interface {
	Extract(ctx context.Context, text string, c intent.Context) (intent.BookingIntent, error)
}

type SlotFinder interface {
	Find(ctx context.Context, q slots.Query) ([]slots.Candidate, error)
}

type BookingCommitter interface {
	Commit(ctx context.Context, req bookings.CommitRequest) (*bookings.Booking, error)
}

// TurnRecorder receives one audit entry per completed turn.
type TurnRecorder interface {
	RecordTurn(ctx context.Context, t audit.Turn) error
}

// Router owns conversation state. Every inbound event for a key is handled
// under that key's lock: load state, run transitions, write state.
type Router struct {
	catalog   schedule.CatalogReader
	store     StateStore
	extractor IntentExtractor
	finder    SlotFinder
	committer BookingCommitter
	locks     *KeyedMutex
	clock     clock.Clock
	logger    *logging.Logger
	metrics   *metrics.BookingMetrics
	recorder  TurnRecorder
	ttl       time.Duration
	widenDays int
	maxOffers int
	newID     func() string
}

type RouterOption func(*Router)

func WithStateTTL(d time.Duration) RouterOption {
	return func(r *Router) {
		if d > 0 {
			r.ttl = d
		}
	}
}

func WithWidenDays(days int) RouterOption {
	return func(r *Router) {
		if days >= 0 {
			r.widenDays = days
		}
	}
}

func WithMaxOffers(n int) RouterOption {
	return func(r *Router) {
		if n > 0 && n <= MaxOptions {
			r.maxOffers = n
		}
	}
}

func WithRouterClock(c clock.Clock) RouterOption {
	return func(r *Router) {
		if c != nil {
			r.clock = c
		}
	}
}

func WithRouterMetrics(m *metrics.BookingMetrics) RouterOption {
	return func(r *Router) { r.metrics = m }
}

func WithTurnRecorder(rec TurnRecorder) RouterOption {
	return func(r *Router) { r.recorder = rec }
}

func withOfferIDs(fn func() string) RouterOption {
	return func(r *Router) { r.newID = fn }
}

func NewRouter(catalog schedule.CatalogReader, store StateStore, extractor IntentExtractor, finder SlotFinder, committer BookingCommitter, logger *logging.Logger, opts ...RouterOption) *Router {
	if catalog == nil {
		panic("conversation: catalog cannot be nil")
	}
	if store == nil {
		panic("conversation: state store cannot be nil")
	}
	if extractor == nil || finder == nil || committer == nil {
		panic("conversation: extractor, finder and committer are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	r := &Router{
		catalog:   catalog,
		store:     store,
		extractor: extractor,
		finder:    finder,
		committer: committer,
		locks:     NewKeyedMutex(),
		clock:     clock.New(),
		logger:    logger,
		ttl:       DefaultStateTTL,
		widenDays: 3,
		maxOffers: MaxOptions,
		newID:     func() string { return uuid.NewString()[:8] },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Handle runs one turn and returns the reply for the customer. The only
// errors are storage failures (ErrStorageUnavailable) and ctx errors;
// everything the customer did wrong is answered with a reply.
func (r *Router) Handle(ctx context.Context, evt events.InboundEvent) (Reply, error) {
	started := r.clock.Now()
	defer func() { r.metrics.ObserveTurn(string(evt.Type), r.clock.Now().Sub(started)) }()

	unlock, err := r.locks.Lock(ctx, evt.Key.String())
	if err != nil {
		return Reply{}, err
	}
	defer unlock()

	log := r.logger.WithConversation(evt.Key.SalonID, evt.Key.CustomerHandle).With("transport_event_id", evt.TransportEventID)

	cat, err := r.catalog.Catalog(ctx, evt.Key.SalonID)
	if err != nil {
		if errors.Is(err, schedule.ErrSalonNotFound) {
			log.Warn("inbound event for unknown salon")
			return TextReply(msgUnknownSalon), nil
		}
		return Reply{}, fmt.Errorf("%w: load catalog: %v", ErrStorageUnavailable, err)
	}

	loaded, err := r.store.Get(ctx, evt.Key)
	if err != nil {
		return Reply{}, storageErr("load state", err)
	}
	if loaded == nil {
		loaded = NewState(evt.Key)
	}

	env := Env{Catalog: cat, OfferID: r.newID(), WidenDays: r.widenDays, MaxOffers: r.maxOffers}
	cur := loaded
	dirty, deleted, committed := false, false, false
	var bookingID string

	var ev Event = TextReceived{Text: evt.Text}
	if evt.Type == events.EventTypeInteractiveReply {
		ev = PayloadReceived{PayloadID: evt.PayloadID}
	}

	var step Step
	for i := 0; ; i++ {
		if i == maxStepsPerTurn {
			return Reply{}, fmt.Errorf("conversation: turn did not settle after %d steps", maxStepsPerTurn)
		}
		step = Transition(cur, ev, env)
		if step.Next != nil {
			cur = step.Next
			dirty = true
		}
		if step.Delete {
			deleted = true
		}
		if step.Command == nil {
			break
		}

		next, err := r.execute(ctx, cur, step.Command, cat, log)
		if err != nil {
			return Reply{}, err
		}
		if bc, ok := next.(BookingCommitted); ok && bc.Booking != nil {
			committed = true
			bookingID = bc.Booking.ID.String()
		}
		ev = next
	}

	// Once a booking exists the turn must finish even if the caller has gone.
	writeCtx := ctx
	if committed {
		var cancel context.CancelFunc
		writeCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), postCommitTimeout)
		defer cancel()
	}

	if err := r.persist(writeCtx, loaded, cur, dirty, deleted); err != nil {
		switch {
		case committed:
			log.Error("booking committed but conversation state not cleared", "error", err, "booking_id", bookingID)
		case errors.Is(err, ErrStateConflict):
			log.Warn("conversation state changed underneath turn", "phase", loaded.Phase)
			return TextReply(msgCrossed), nil
		default:
			return Reply{}, err
		}
	}

	toPhase := cur.Phase
	if deleted {
		toPhase = PhaseEnded
	}
	if step.Outcome == OutcomeOffered {
		r.metrics.ObserveOffered(len(cur.OfferedSlots))
	}
	log.Info("turn complete", "from_phase", loaded.Phase, "to_phase", toPhase, "outcome", step.Outcome)
	r.record(writeCtx, evt, loaded.Phase, toPhase, step.Outcome, cur, bookingID, log)

	if step.Reply == nil {
		return TextReply(msgRestate), nil
	}
	return *step.Reply, nil
}

func (r *Router) execute(ctx context.Context, s *State, cmd Command, cat *schedule.Catalog, log *logging.Logger) (Event, error) {
	switch c := cmd.(type) {
	case Extract:
		in, err := r.extractor.Extract(ctx, c.Text, intent.Context{Catalog: cat, Prior: s.PendingIntent, Now: r.clock.Now()})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn("intent extraction failed", "error", err)
			ev, _ := errorEvent(c, err)
			return ev, nil
		}
		return IntentExtracted{Intent: in}, nil

	case Search:
		found, err := r.finder.Find(ctx, slots.Query{
			SalonID:    s.Key.SalonID,
			ServiceID:  c.Intent.ServiceID,
			From:       c.From,
			To:         c.To,
			Preferred:  c.Intent.Time,
			Flexible:   c.Intent.IsFlexible,
			MaxResults: r.maxOffers,
			Exclude:    c.Exclude,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: slot search: %v", ErrStorageUnavailable, err)
		}
		return SlotsFound{Search: c, Slots: found}, nil

	case Commit:
		b, err := r.committer.Commit(ctx, bookings.CommitRequest{
			SalonID:        s.Key.SalonID,
			StaffID:        c.Slot.Slot.StaffID,
			ServiceID:      c.Slot.Slot.ServiceID,
			CustomerHandle: s.Key.CustomerHandle,
			Start:          c.Slot.Slot.Start,
			End:            c.Slot.Slot.End,
		})
		if err != nil {
			if ev, ok := errorEvent(c, err); ok {
				log.Info("chosen slot taken before commit", "staff_id", c.Slot.Slot.StaffID, "start", c.Slot.Slot.Start)
				return ev, nil
			}
			return nil, fmt.Errorf("%w: commit booking: %v", ErrStorageUnavailable, err)
		}
		return BookingCommitted{Slot: c.Slot, Booking: b}, nil
	}
	return nil, fmt.Errorf("conversation: unknown command %T", cmd)
}

func (r *Router) persist(ctx context.Context, loaded, cur *State, dirty, deleted bool) error {
	switch {
	case deleted:
		if loaded.Version == 0 {
			return nil
		}
		if err := r.store.Delete(ctx, loaded.Key); err != nil {
			return storageErr("delete state", err)
		}
	case dirty:
		next := cur.Clone()
		next.Version = loaded.Version
		if err := r.store.Put(ctx, next, r.ttl); err != nil {
			if errors.Is(err, ErrStateConflict) {
				return err
			}
			return storageErr("save state", err)
		}
	}
	return nil
}

func (r *Router) record(ctx context.Context, evt events.InboundEvent, from, to Phase, outcome string, s *State, bookingID string, log *logging.Logger) {
	if r.recorder == nil {
		return
	}
	var offered []string
	if outcome == OutcomeOffered {
		for _, o := range s.OfferedSlots {
			offered = append(offered, SlotPayloadID(s.OfferID, o.ID))
		}
	}
	err := r.recorder.RecordTurn(ctx, audit.Turn{
		TransportEventID: evt.TransportEventID,
		SalonID:          evt.Key.SalonID,
		CustomerHandle:   evt.Key.CustomerHandle,
		EventType:        string(evt.Type),
		FromPhase:        string(from),
		ToPhase:          string(to),
		Outcome:          outcome,
		OfferedSlotIDs:   offered,
		BookingID:        bookingID,
		OccurredAt:       r.clock.Now().UTC(),
	})
	if err != nil {
		log.Warn("failed to record conversation turn", "error", err)
	}
}

func storageErr(op string, err error) error {
	if errors.Is(err, ErrStorageUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, op, err)
}
