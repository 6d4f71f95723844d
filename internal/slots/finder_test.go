package slots

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/wolfman30/salon-concierge/internal/schedule"
	"github.com/wolfman30/salon-concierge/pkg/clock"
)

type staticBusy struct {
	booked []schedule.BookedInterval
	err    error
	calls  int
}

func (s *staticBusy) ConfirmedBetween(_ context.Context, _ string, from, to time.Time) ([]schedule.BookedInterval, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	var out []schedule.BookedInterval
	for _, b := range s.booked {
		if b.Overlaps(schedule.Interval{Start: from, End: to}) {
			out = append(out, b)
		}
	}
	return out, nil
}

var tuesday = schedule.Date{Year: 2026, Month: time.October, Day: 20}

func at(h, m int) time.Time {
	return tuesday.At(schedule.TimeOfDay{Hour: h, Minute: m}, time.UTC)
}

func nineToFive(days ...time.Weekday) []schedule.WorkingHours {
	var out []schedule.WorkingHours
	for _, d := range days {
		out = append(out, schedule.WorkingHours{Weekday: d, Start: schedule.TimeOfDay{Hour: 9}, End: schedule.TimeOfDay{Hour: 17}})
	}
	return out
}

func newCatalog(t *testing.T, staff ...schedule.Staff) *schedule.MemoryStore {
	t.Helper()
	store, err := schedule.NewMemoryStore(schedule.Catalog{
		Salon:    schedule.Salon{ID: "salon-1", Timezone: "UTC"},
		Services: []schedule.Service{{ID: "cut", Name: "Haircut", DurationMinutes: 30}},
		Staff:    staff,
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return store
}

func newFinder(t *testing.T, busy *staticBusy, staff ...schedule.Staff) *Finder {
	t.Helper()
	now := clock.NewMock(time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC))
	return NewFinder(newCatalog(t, staff...), busy, nil, WithClock(now), WithMinLeadTime(30*time.Minute))
}

func starts(cands []Candidate) []string {
	out := make([]string, 0, len(cands))
	for _, c := range cands {
		out = append(out, c.StaffID+"@"+c.Start.Format("15:04"))
	}
	return out
}

func exactQuery(h int) Query {
	pref := schedule.TimeOfDay{Hour: h}
	return Query{SalonID: "salon-1", ServiceID: "cut", From: tuesday, To: tuesday, Preferred: &pref}
}

func TestFindNearestToPreferredTime(t *testing.T) {
	busy := &staticBusy{booked: []schedule.BookedInterval{
		{StaffID: "ana", Interval: schedule.Interval{Start: at(15, 0), End: at(15, 30)}},
	}}
	f := newFinder(t, busy, schedule.Staff{ID: "ana", ServiceIDs: []string{"cut"}, Hours: nineToFive(time.Tuesday)})

	got, err := f.Find(context.Background(), exactQuery(15))
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	want := []string{"ana@14:30", "ana@15:30", "ana@14:00"}
	if diff := cmp.Diff(want, starts(got)); diff != "" {
		t.Fatalf("unexpected ranking (-want +got):\n%s", diff)
	}
}

func TestFindPrefersAnyStaffAtExactTime(t *testing.T) {
	busy := &staticBusy{booked: []schedule.BookedInterval{
		{StaffID: "ana", Interval: schedule.Interval{Start: at(15, 0), End: at(15, 30)}},
	}}
	f := newFinder(t, busy,
		schedule.Staff{ID: "cho", ServiceIDs: []string{"cut"}, Hours: nineToFive(time.Tuesday)},
		schedule.Staff{ID: "ana", ServiceIDs: []string{"cut"}, Hours: nineToFive(time.Tuesday)},
		schedule.Staff{ID: "bo", ServiceIDs: []string{"cut"}, Hours: nineToFive(time.Tuesday)},
	)

	got, err := f.Find(context.Background(), exactQuery(15))
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	// 15:00 once (lowest free staff id), then the two 30-minute neighbours.
	want := []string{"bo@15:00", "ana@14:30", "ana@15:30"}
	if diff := cmp.Diff(want, starts(got)); diff != "" {
		t.Fatalf("unexpected ranking (-want +got):\n%s", diff)
	}
}

func TestFindFlexibleReturnsEarliest(t *testing.T) {
	busy := &staticBusy{booked: []schedule.BookedInterval{
		{StaffID: "ana", Interval: schedule.Interval{Start: at(9, 0), End: at(10, 0)}},
	}}
	f := newFinder(t, busy, schedule.Staff{ID: "ana", ServiceIDs: []string{"cut"}, Hours: nineToFive(time.Tuesday)})

	got, err := f.Find(context.Background(), Query{SalonID: "salon-1", ServiceID: "cut", From: tuesday, To: tuesday, Flexible: true})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	want := []string{"ana@10:00", "ana@10:30", "ana@11:00"}
	if diff := cmp.Diff(want, starts(got)); diff != "" {
		t.Fatalf("unexpected ranking (-want +got):\n%s", diff)
	}
}

func TestFindDropsStartsInsideLeadTime(t *testing.T) {
	now := clock.NewMock(at(10, 10))
	f := NewFinder(newCatalog(t, schedule.Staff{ID: "ana", ServiceIDs: []string{"cut"}, Hours: nineToFive(time.Tuesday)}),
		&staticBusy{}, nil, WithClock(now), WithMinLeadTime(30*time.Minute))

	got, err := f.Find(context.Background(), Query{SalonID: "salon-1", ServiceID: "cut", From: tuesday, To: tuesday, Flexible: true, MaxResults: 1})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if diff := cmp.Diff([]string{"ana@11:00"}, starts(got)); diff != "" {
		t.Fatalf("unexpected result (-want +got):\n%s", diff)
	}
}

func TestFindNoEligibleStaffIsEmpty(t *testing.T) {
	f := newFinder(t, &staticBusy{},
		schedule.Staff{ID: "ana", ServiceIDs: []string{"color"}, Hours: nineToFive(time.Tuesday)},
		schedule.Staff{ID: "bo", ServiceIDs: []string{"cut"}, Hours: nineToFive(time.Monday)},
	)
	got, err := f.Find(context.Background(), exactQuery(15))
	if err != nil {
		t.Fatalf("expected empty result, got error %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no candidates, got %v", starts(got))
	}
}

func TestFindExcludesLostSlot(t *testing.T) {
	f := newFinder(t, &staticBusy{}, schedule.Staff{ID: "ana", ServiceIDs: []string{"cut"}, Hours: nineToFive(time.Tuesday)})
	q := exactQuery(15)
	q.Exclude = []Candidate{{StaffID: "ana", Start: at(15, 0)}}
	got, err := f.Find(context.Background(), q)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	for _, c := range got {
		if c.Start.Equal(at(15, 0)) {
			t.Fatalf("excluded slot offered again: %v", starts(got))
		}
	}
}

func TestFindErrors(t *testing.T) {
	f := newFinder(t, &staticBusy{err: errors.New("db down")}, schedule.Staff{ID: "ana", ServiceIDs: []string{"cut"}, Hours: nineToFive(time.Tuesday)})
	if _, err := f.Find(context.Background(), exactQuery(15)); err == nil {
		t.Fatalf("expected busy lister error")
	}
	q := exactQuery(15)
	q.ServiceID = "nope"
	if _, err := f.Find(context.Background(), q); err == nil {
		t.Fatalf("expected unknown service error")
	}
	q = exactQuery(15)
	q.SalonID = "other"
	if _, err := f.Find(context.Background(), q); !errors.Is(err, schedule.ErrSalonNotFound) {
		t.Fatalf("expected wrapped ErrSalonNotFound, got %v", err)
	}
}

func TestFindIsDeterministic(t *testing.T) {
	busy := &staticBusy{}
	f := newFinder(t, busy,
		schedule.Staff{ID: "bo", ServiceIDs: []string{"cut"}, Hours: nineToFive(time.Tuesday, time.Wednesday)},
		schedule.Staff{ID: "ana", ServiceIDs: []string{"cut"}, Hours: nineToFive(time.Tuesday, time.Wednesday)},
	)
	q := exactQuery(12)
	q.To = tuesday.AddDays(1)
	first, err := f.Find(context.Background(), q)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := f.Find(context.Background(), q)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("search not deterministic:\n%s", diff)
		}
	}
}

// Every candidate lies inside its staff member's hours and overlaps none of
// that staff member's confirmed bookings, whatever the booking layout.
func TestExpandNeverOverlapsBookings(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	store := newCatalog(t,
		schedule.Staff{ID: "ana", ServiceIDs: []string{"cut"}, Hours: nineToFive(time.Tuesday)},
		schedule.Staff{ID: "bo", ServiceIDs: []string{"cut"}, Hours: []schedule.WorkingHours{
			{Weekday: time.Tuesday, Start: schedule.TimeOfDay{Hour: 10, Minute: 15}, End: schedule.TimeOfDay{Hour: 13}},
			{Weekday: time.Tuesday, Start: schedule.TimeOfDay{Hour: 14}, End: schedule.TimeOfDay{Hour: 19, Minute: 45}},
		}},
	)
	cat, _ := store.Catalog(context.Background(), "salon-1")
	svc, _ := cat.Service("cut")

	for round := 0; round < 200; round++ {
		var booked []schedule.BookedInterval
		for i := 0; i < rng.Intn(8); i++ {
			start := at(8, 0).Add(time.Duration(rng.Intn(12*60)) * time.Minute)
			end := start.Add(time.Duration(5+rng.Intn(120)) * time.Minute)
			staff := "ana"
			if rng.Intn(2) == 0 {
				staff = "bo"
			}
			booked = append(booked, schedule.BookedInterval{StaffID: staff, Interval: schedule.Interval{Start: start, End: end}})
		}
		for _, c := range Expand(cat, svc, tuesday, tuesday, booked, time.Time{}) {
			if c.End.Sub(c.Start) != 30*time.Minute {
				t.Fatalf("round %d: wrong duration %v", round, c)
			}
			for _, b := range booked {
				if b.StaffID == c.StaffID && b.Overlaps(c.Interval()) {
					t.Fatalf("round %d: candidate %v overlaps booking %v", round, c, b)
				}
			}
			inside := false
			for _, st := range cat.Staff {
				if st.ID != c.StaffID {
					continue
				}
				for _, h := range st.HoursOn(tuesday, time.UTC) {
					if !c.Start.Before(h.Start) && !c.End.After(h.End) {
						inside = true
					}
				}
			}
			if !inside {
				t.Fatalf("round %d: candidate %v outside working hours", round, c)
			}
		}
	}
}
