package schedule

import (
	"sort"
	"time"
)

// Interval is a half-open [Start, End) range of time.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether two half-open intervals share any instant.
// Back-to-back intervals do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

func (i Interval) Empty() bool {
	return !i.End.After(i.Start)
}

// BookedInterval is a CONFIRMED booking reduced to what conflict checks need.
type BookedInterval struct {
	StaffID string `json:"staff_id"`
	Interval
}

// Subtract removes every busy interval from the free intervals and returns
// the remaining pieces in chronological order.
func Subtract(free []Interval, busy []Interval) []Interval {
	if len(busy) == 0 {
		return append([]Interval(nil), free...)
	}
	sorted := append([]Interval(nil), busy...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	var out []Interval
	for _, f := range free {
		cur := f
		for _, b := range sorted {
			if cur.Empty() {
				break
			}
			if !b.Overlaps(cur) {
				continue
			}
			if b.Start.After(cur.Start) {
				out = append(out, Interval{Start: cur.Start, End: b.Start})
			}
			if b.End.After(cur.Start) {
				cur.Start = b.End
			}
		}
		if !cur.Empty() {
			out = append(out, cur)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// BusyFor filters booked intervals down to one staff member.
func BusyFor(staffID string, booked []BookedInterval) []Interval {
	var out []Interval
	for _, b := range booked {
		if b.StaffID == staffID {
			out = append(out, b.Interval)
		}
	}
	return out
}
