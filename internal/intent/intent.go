package intent

import (
	"github.com/wolfman30/salon-concierge/internal/schedule"
)

// Fact names reported by Missing.
const (
	FactService = "service"
	FactDate    = "date"
	FactTime    = "time"
)

// BookingIntent is what the customer has told us so far. Every field is
// optional until the intent is complete.
type BookingIntent struct {
	ServiceName string              `json:"service_name,omitempty"`
	ServiceID   string              `json:"service_id,omitempty"`
	Date        *schedule.Date      `json:"date,omitempty"`
	Time        *schedule.TimeOfDay `json:"time,omitempty"`
	IsFlexible  bool                `json:"is_flexible,omitempty"`
	Language    string              `json:"language,omitempty"`
}

// Complete reports whether a slot search can run: a resolved service, a
// date, and either an exact time or flexibility.
func (i BookingIntent) Complete() bool {
	return len(i.Missing()) == 0
}

// Missing lists the facts still needed, in the order we ask for them.
func (i BookingIntent) Missing() []string {
	var out []string
	if i.ServiceID == "" {
		out = append(out, FactService)
	}
	if i.Date == nil {
		out = append(out, FactDate)
	}
	if i.Time == nil && !i.IsFlexible {
		out = append(out, FactTime)
	}
	return out
}

// Merge applies update on top of prior. Facts present in update win; absent
// facts are inherited. An exact time clears flexibility and an explicit
// flexible flag clears a previously stated time.
func Merge(prior, update BookingIntent) BookingIntent {
	out := prior
	if update.ServiceID != "" {
		out.ServiceID = update.ServiceID
		out.ServiceName = update.ServiceName
	}
	if update.Date != nil {
		d := *update.Date
		out.Date = &d
	}
	switch {
	case update.Time != nil:
		t := *update.Time
		out.Time = &t
		out.IsFlexible = false
	case update.IsFlexible:
		out.Time = nil
		out.IsFlexible = true
	}
	if update.Language != "" {
		out.Language = update.Language
	}
	return out
}

// WithoutDate drops the date so the next turn can supply a different day.
func (i BookingIntent) WithoutDate() BookingIntent {
	i.Date = nil
	return i
}
