package slots

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/wolfman30/salon-concierge/internal/schedule"
	"github.com/wolfman30/salon-concierge/pkg/clock"
	"github.com/wolfman30/salon-concierge/pkg/logging"
)

// DefaultMaxResults is the most options a chat card can carry.
const DefaultMaxResults = 3

// Candidate is a bookable (staff, service, start) combination.
type Candidate struct {
	StaffID   string    `json:"staff_id"`
	ServiceID string    `json:"service_id"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
}

func (c Candidate) Interval() schedule.Interval {
	return schedule.Interval{Start: c.Start, End: c.End}
}

// Same reports whether two candidates describe the same staff/start pair.
func (c Candidate) Same(o Candidate) bool {
	return c.StaffID == o.StaffID && c.Start.Equal(o.Start)
}

// Query describes one search. From and To are inclusive salon-local dates.
type Query struct {
	SalonID    string
	ServiceID  string
	From       schedule.Date
	To         schedule.Date
	Preferred  *schedule.TimeOfDay
	Flexible   bool
	MaxResults int
	Exclude    []Candidate
}

// BusyLister returns CONFIRMED bookings that overlap [from, to).
type BusyLister interface {
	ConfirmedBetween(ctx context.Context, salonID string, from, to time.Time) ([]schedule.BookedInterval, error)
}

// Finder computes ranked candidate slots. It never writes.
type Finder struct {
	catalog  schedule.CatalogReader
	busy     BusyLister
	clock    clock.Clock
	leadTime time.Duration
	logger   *logging.Logger
}

type Option func(*Finder)

// WithClock overrides the wall clock used to drop past starts.
func WithClock(c clock.Clock) Option {
	return func(f *Finder) {
		if c != nil {
			f.clock = c
		}
	}
}

// WithMinLeadTime drops starts closer than d to now.
func WithMinLeadTime(d time.Duration) Option {
	return func(f *Finder) {
		if d >= 0 {
			f.leadTime = d
		}
	}
}

func NewFinder(catalog schedule.CatalogReader, busy BusyLister, logger *logging.Logger, opts ...Option) *Finder {
	if catalog == nil {
		panic("slots: catalog reader required")
	}
	if busy == nil {
		panic("slots: busy lister required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	f := &Finder{
		catalog: catalog,
		busy:    busy,
		clock:   clock.New(),
		logger:  logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Find returns up to MaxResults ranked candidates. An empty result is not an error.
func (f *Finder) Find(ctx context.Context, q Query) ([]Candidate, error) {
	if q.To.Before(q.From) {
		return nil, errors.New("slots: window ends before it starts")
	}
	cat, err := f.catalog.Catalog(ctx, q.SalonID)
	if err != nil {
		return nil, fmt.Errorf("slots: load catalog: %w", err)
	}
	svc, ok := cat.Service(q.ServiceID)
	if !ok || svc.Duration() <= 0 {
		return nil, fmt.Errorf("slots: unknown service %q", q.ServiceID)
	}

	loc := cat.Location()
	windowStart := q.From.At(schedule.TimeOfDay{}, loc)
	windowEnd := q.To.AddDays(1).At(schedule.TimeOfDay{}, loc)
	booked, err := f.busy.ConfirmedBetween(ctx, q.SalonID, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("slots: load bookings: %w", err)
	}

	notBefore := f.clock.Now().Add(f.leadTime)
	all := Expand(cat, svc, q.From, q.To, booked, notBefore)
	all = exclude(all, q.Exclude)

	limit := q.MaxResults
	if limit <= 0 || limit > DefaultMaxResults {
		limit = DefaultMaxResults
	}
	var preferred *time.Time
	if q.Preferred != nil && !q.Flexible {
		p := q.From.At(*q.Preferred, loc)
		preferred = &p
	}
	ranked := Rank(all, preferred, limit)

	f.logger.Debug("slot search complete",
		"salon_id", q.SalonID,
		"service_id", q.ServiceID,
		"from", q.From.String(),
		"to", q.To.String(),
		"candidates", len(all),
		"returned", len(ranked),
	)
	return ranked, nil
}

// Expand lists every candidate start on the service-duration grid inside each
// eligible staff member's free time between from and to (inclusive dates).
func Expand(cat *schedule.Catalog, svc schedule.Service, from, to schedule.Date, booked []schedule.BookedInterval, notBefore time.Time) []Candidate {
	step := svc.Duration()
	if step <= 0 {
		return nil
	}
	loc := cat.Location()
	var out []Candidate
	for _, st := range cat.StaffFor(svc.ID) {
		busy := schedule.BusyFor(st.ID, booked)
		for d := from; !d.After(to); d = d.AddDays(1) {
			free := schedule.Subtract(st.HoursOn(d, loc), busy)
			for _, iv := range free {
				for start := iv.Start; !start.Add(step).After(iv.End); start = start.Add(step) {
					if start.Before(notBefore) {
						continue
					}
					out = append(out, Candidate{
						StaffID:   st.ID,
						ServiceID: svc.ID,
						Start:     start,
						End:       start.Add(step),
					})
				}
			}
		}
	}
	return out
}

// Rank orders candidates by distance to preferred (or chronologically when
// preferred is nil), keeps one candidate per start instant and truncates.
// Ties are broken by start and then staff id, so the result is stable.
func Rank(cands []Candidate, preferred *time.Time, limit int) []Candidate {
	sorted := append([]Candidate(nil), cands...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if preferred != nil {
			da, db := distance(a.Start, *preferred), distance(b.Start, *preferred)
			if da != db {
				return da < db
			}
		}
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		return a.StaffID < b.StaffID
	})

	out := make([]Candidate, 0, limit)
	seen := make(map[int64]struct{}, len(sorted))
	for _, c := range sorted {
		if len(out) == limit {
			break
		}
		key := c.Start.Unix()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}

func distance(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}

func exclude(cands []Candidate, excluded []Candidate) []Candidate {
	if len(excluded) == 0 {
		return cands
	}
	out := cands[:0]
	for _, c := range cands {
		skip := false
		for _, e := range excluded {
			if c.Same(e) {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, c)
		}
	}
	return out
}
