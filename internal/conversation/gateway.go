package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/salon-concierge/internal/events"
	"github.com/wolfman30/salon-concierge/internal/observability/metrics"
	"github.com/wolfman30/salon-concierge/pkg/logging"
)

// Ledger remembers which transport events were already handled.
type Ledger interface {
	Admit(ctx context.Context, eventID string, key events.ConversationKey) (events.Admission, error)
	Finalize(ctx context.Context, eventID string, reply json.RawMessage) error
	Release(ctx context.Context, eventID string) error
}

// TurnHandler is implemented by Router.
type TurnHandler interface {
	Handle(ctx context.Context, evt events.InboundEvent) (Reply, error)
}

// Outcome is what the transport adapter sends back for one delivery.
type Outcome struct {
	Duplicate bool  `json:"duplicate"`
	Reply     Reply `json:"reply"`
}

// ledgerWriteTimeout bounds Finalize and Release, which run detached from
// the caller so a dropped connection cannot leave a claim pending.
const ledgerWriteTimeout = 3 * time.Second

// Gateway is the entry point for inbound events: it validates, drops
// duplicates and hands first deliveries to the router.
type Gateway struct {
	ledger  Ledger
	router  TurnHandler
	logger  *logging.Logger
	metrics *metrics.BookingMetrics
}

func NewGateway(ledger Ledger, router TurnHandler, logger *logging.Logger, m *metrics.BookingMetrics) *Gateway {
	if ledger == nil {
		panic("conversation: ledger cannot be nil")
	}
	if router == nil {
		panic("conversation: router cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Gateway{ledger: ledger, router: router, logger: logger, metrics: m}
}

// Process handles one delivery. It returns events.ErrInvalidEvent for
// malformed input and ErrStorageUnavailable when the ledger itself is down;
// in both cases nothing was recorded.
func (g *Gateway) Process(ctx context.Context, evt events.InboundEvent) (Outcome, error) {
	if err := evt.Validate(); err != nil {
		g.metrics.ObserveInbound(string(evt.Type), "invalid")
		return Outcome{}, err
	}

	adm, err := g.ledger.Admit(ctx, evt.TransportEventID, evt.Key)
	if err != nil {
		g.metrics.ObserveInbound(string(evt.Type), "ledger_error")
		return Outcome{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if !adm.Admitted {
		g.metrics.ObserveDuplicate()
		g.metrics.ObserveInbound(string(evt.Type), "duplicate")
		return Outcome{Duplicate: true, Reply: g.replay(adm, evt)}, nil
	}

	reply, err := g.router.Handle(ctx, evt)
	if err != nil {
		g.logger.Error("turn failed; releasing ledger claim", "error", err, "transport_event_id", evt.TransportEventID, "salon_id", evt.Key.SalonID)
		g.release(ctx, evt.TransportEventID)
		g.metrics.ObserveInbound(string(evt.Type), "error")
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Outcome{}, err
		}
		return Outcome{Reply: tryAgainReply()}, nil
	}

	data, err := json.Marshal(reply)
	if err == nil {
		err = g.finalize(ctx, evt.TransportEventID, data)
	}
	if err != nil {
		g.logger.Warn("failed to finalize inbound event", "error", err, "transport_event_id", evt.TransportEventID)
	}
	g.metrics.ObserveInbound(string(evt.Type), "handled")
	return Outcome{Reply: reply}, nil
}

func (g *Gateway) replay(adm events.Admission, evt events.InboundEvent) Reply {
	if !adm.Finalized || len(adm.Reply) == 0 {
		return stillWorkingReply()
	}
	var r Reply
	if err := json.Unmarshal(adm.Reply, &r); err != nil {
		g.logger.Warn("stored reply unreadable", "error", err, "transport_event_id", evt.TransportEventID)
		return stillWorkingReply()
	}
	return r
}

func (g *Gateway) finalize(parent context.Context, eventID string, reply json.RawMessage) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), ledgerWriteTimeout)
	defer cancel()
	return g.ledger.Finalize(ctx, eventID, reply)
}

func (g *Gateway) release(parent context.Context, eventID string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), ledgerWriteTimeout)
	defer cancel()
	if err := g.ledger.Release(ctx, eventID); err != nil {
		g.logger.Warn("failed to release ledger claim", "error", err, "transport_event_id", eventID)
	}
}
