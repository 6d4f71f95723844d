package bookings

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wolfman30/salon-concierge/internal/schedule"
	"github.com/wolfman30/salon-concierge/pkg/clock"
)

// MemoryRepository keeps bookings in process. The overlap check and the
// insert happen under one mutex, which gives the same guarantee as the
// staff row lock in Postgres.
type MemoryRepository struct {
	mu       sync.Mutex
	clock    clock.Clock
	bookings []Booking
	staff    map[string]map[string]struct{}
}

func NewMemoryRepository(c clock.Clock) *MemoryRepository {
	if c == nil {
		c = clock.New()
	}
	return &MemoryRepository{clock: c}
}

// RegisterStaff restricts inserts to known staff of salonID. Until a salon
// has registered staff any staff id is accepted.
func (r *MemoryRepository) RegisterStaff(salonID string, staffIDs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.staff == nil {
		r.staff = make(map[string]map[string]struct{})
	}
	set, ok := r.staff[salonID]
	if !ok {
		set = make(map[string]struct{})
		r.staff[salonID] = set
	}
	for _, id := range staffIDs {
		set[id] = struct{}{}
	}
}

func (r *MemoryRepository) Insert(_ context.Context, b Booking) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if set, ok := r.staff[b.SalonID]; ok {
		if _, known := set[b.StaffID]; !known {
			return nil, fmt.Errorf("%w: %s", ErrUnknownStaff, b.StaffID)
		}
	}
	for _, existing := range r.bookings {
		if existing.SalonID == b.SalonID && existing.Status == StatusConfirmed && existing.Overlaps(b) {
			return nil, ErrSlotConflict
		}
	}
	b.Status = StatusConfirmed
	b.CreatedAt = r.clock.Now().UTC()
	r.bookings = append(r.bookings, b)
	return &b, nil
}

func (r *MemoryRepository) ConfirmedBetween(_ context.Context, salonID string, from, to time.Time) ([]schedule.BookedInterval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	window := schedule.Interval{Start: from, End: to}
	var out []schedule.BookedInterval
	for _, b := range r.bookings {
		if b.SalonID != salonID || b.Status != StatusConfirmed {
			continue
		}
		iv := schedule.Interval{Start: b.StartTime, End: b.EndTime}
		if iv.Overlaps(window) {
			out = append(out, schedule.BookedInterval{StaffID: b.StaffID, Interval: iv})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StaffID != out[j].StaffID {
			return out[i].StaffID < out[j].StaffID
		}
		return out[i].Start.Before(out[j].Start)
	})
	return out, nil
}

// All returns a copy of every stored booking.
func (r *MemoryRepository) All() []Booking {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Booking(nil), r.bookings...)
}
