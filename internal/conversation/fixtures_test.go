package conversation

import (
	"context"
	"sync"
	"time"

	"github.com/wolfman30/salon-concierge/internal/bookings"
	"github.com/wolfman30/salon-concierge/internal/events"
	"github.com/wolfman30/salon-concierge/internal/intent"
	"github.com/wolfman30/salon-concierge/internal/schedule"
	"github.com/wolfman30/salon-concierge/internal/slots"
)

// Sunday 2026-10-18 09:00 UTC.
var testNow = time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

var (
	monday  = schedule.Date{Year: 2026, Month: time.October, Day: 19}
	threePM = schedule.TimeOfDay{Hour: 15}
	testKey = events.ConversationKey{SalonID: "salon-1", CustomerHandle: "+15551234567"}
)

func testCatalog() *schedule.Catalog {
	weekdays := func(start, end schedule.TimeOfDay) []schedule.WorkingHours {
		var out []schedule.WorkingHours
		for wd := time.Monday; wd <= time.Friday; wd++ {
			out = append(out, schedule.WorkingHours{Weekday: wd, Start: start, End: end})
		}
		return out
	}
	cat := &schedule.Catalog{
		Salon: schedule.Salon{ID: "salon-1", Name: "Studio One", Timezone: "UTC"},
		Services: []schedule.Service{
			{ID: "haircut", Name: "Haircut", Aliases: []string{"cut", "trim"}, DurationMinutes: 60},
			{ID: "color", Name: "Color", DurationMinutes: 90},
		},
		Staff: []schedule.Staff{
			{ID: "ana", Name: "Ana", ServiceIDs: []string{"haircut", "color"}, Hours: weekdays(schedule.TimeOfDay{Hour: 9}, schedule.TimeOfDay{Hour: 17})},
			{ID: "ben", Name: "Ben", ServiceIDs: []string{"haircut"}, Hours: weekdays(schedule.TimeOfDay{Hour: 12}, schedule.TimeOfDay{Hour: 20})},
		},
	}
	if err := cat.Normalize(); err != nil {
		panic(err)
	}
	return cat
}

func testEnv() Env {
	return Env{Catalog: testCatalog(), OfferID: "offer2", WidenDays: 3, MaxOffers: 3}
}

func haircutIntent() intent.BookingIntent {
	d, t := monday, threePM
	return intent.BookingIntent{ServiceID: "haircut", ServiceName: "Haircut", Date: &d, Time: &t}
}

func candidate(staff string, hour int) slots.Candidate {
	start := time.Date(2026, 10, 19, hour, 0, 0, 0, time.UTC)
	return slots.Candidate{StaffID: staff, ServiceID: "haircut", Start: start, End: start.Add(time.Hour)}
}

// offeringState is a stored conversation showing three haircut slots.
func offeringState() *State {
	return &State{
		Key:           testKey,
		Phase:         PhaseAwaitingSlotChoice,
		PendingIntent: haircutIntent(),
		OfferID:       "offer1",
		OfferedSlots: []OfferedSlot{
			{ID: "1", Slot: candidate("ana", 15)},
			{ID: "2", Slot: candidate("ana", 14)},
			{ID: "3", Slot: candidate("ana", 16)},
		},
		Version: 1,
	}
}

func confirmingState() *State {
	s := offeringState()
	s.Phase = PhaseAwaitingConfirmation
	s.ChosenSlotID = "2"
	s.Version = 2
	return s
}

type stubExtractor struct {
	mu      sync.Mutex
	results []intent.BookingIntent
	err     error
	calls   int
	priors  []intent.BookingIntent
}

func (s *stubExtractor) Extract(_ context.Context, _ string, c intent.Context) (intent.BookingIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.priors = append(s.priors, c.Prior)
	if s.err != nil {
		return c.Prior, s.err
	}
	if len(s.results) == 0 {
		return c.Prior, nil
	}
	next := s.results[0]
	s.results = s.results[1:]
	return intent.Merge(c.Prior, next), nil
}

type stubFinder struct {
	mu      sync.Mutex
	results [][]slots.Candidate
	err     error
	queries []slots.Query
}

func (s *stubFinder) Find(_ context.Context, q slots.Query) ([]slots.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, q)
	if s.err != nil {
		return nil, s.err
	}
	if len(s.results) == 0 {
		return nil, nil
	}
	next := s.results[0]
	s.results = s.results[1:]
	return next, nil
}

type stubCommitter struct {
	mu    sync.Mutex
	errs  []error
	reqs  []bookings.CommitRequest
	count int
}

func (s *stubCommitter) Commit(_ context.Context, req bookings.CommitRequest) (*bookings.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	s.count++
	return &bookings.Booking{SalonID: req.SalonID, StaffID: req.StaffID, StartTime: req.Start, EndTime: req.End, Status: bookings.StatusConfirmed}, nil
}

func textEvent(id, text string) events.InboundEvent {
	return events.InboundEvent{TransportEventID: id, Key: testKey, Type: events.EventTypeText, Text: text}
}

func tapEvent(id, payload string) events.InboundEvent {
	return events.InboundEvent{TransportEventID: id, Key: testKey, Type: events.EventTypeInteractiveReply, PayloadID: payload}
}
