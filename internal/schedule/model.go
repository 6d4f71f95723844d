package schedule

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrSalonNotFound is returned by catalog readers for unknown salon ids.
var ErrSalonNotFound = errors.New("schedule: salon not found")

// CatalogReader loads a salon's bookable services, staff and working hours.
type CatalogReader interface {
	Catalog(ctx context.Context, salonID string) (*Catalog, error)
}

type Salon struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Timezone string `json:"timezone"`

	Location *time.Location `json:"-"`
}

func (s *Salon) resolveLocation() error {
	if s.Location != nil {
		return nil
	}
	tz := strings.TrimSpace(s.Timezone)
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("schedule: salon %s timezone %q: %w", s.ID, s.Timezone, err)
	}
	s.Location = loc
	return nil
}

type Service struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Aliases         []string `json:"aliases,omitempty"`
	DurationMinutes int      `json:"duration_minutes"`
}

func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// WorkingHours is one contiguous shift on a weekday. A staff member may have
// several per weekday (split shifts).
type WorkingHours struct {
	Weekday time.Weekday `json:"weekday"`
	Start   TimeOfDay    `json:"start"`
	End     TimeOfDay    `json:"end"`
}

type Staff struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	ServiceIDs []string       `json:"service_ids"`
	Hours      []WorkingHours `json:"hours"`
}

// Offers reports whether the staff member performs the service.
func (s Staff) Offers(serviceID string) bool {
	for _, id := range s.ServiceIDs {
		if id == serviceID {
			return true
		}
	}
	return false
}

// HoursOn expands the staff member's weekly hours into concrete intervals on d.
func (s Staff) HoursOn(d Date, loc *time.Location) []Interval {
	var out []Interval
	for _, wh := range s.Hours {
		if wh.Weekday != d.Weekday() || wh.End.Minutes() <= wh.Start.Minutes() {
			continue
		}
		out = append(out, Interval{Start: d.At(wh.Start, loc), End: d.At(wh.End, loc)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}

// Catalog is the read model the assistant needs for one salon.
type Catalog struct {
	Salon    Salon     `json:"salon"`
	Services []Service `json:"services"`
	Staff    []Staff   `json:"staff"`
}

// Normalize resolves the salon time zone and orders staff by id so slot
// search is deterministic.
func (c *Catalog) Normalize() error {
	if c == nil {
		return errors.New("schedule: nil catalog")
	}
	if err := c.Salon.resolveLocation(); err != nil {
		return err
	}
	sort.Slice(c.Staff, func(i, j int) bool { return c.Staff[i].ID < c.Staff[j].ID })
	return nil
}

func (c *Catalog) Location() *time.Location {
	if c == nil || c.Salon.Location == nil {
		return time.UTC
	}
	return c.Salon.Location
}

func (c *Catalog) Service(id string) (Service, bool) {
	for _, svc := range c.Services {
		if svc.ID == id {
			return svc, true
		}
	}
	return Service{}, false
}

// ServiceNames lists the names shown to the intent extractor.
func (c *Catalog) ServiceNames() []string {
	names := make([]string, 0, len(c.Services))
	for _, svc := range c.Services {
		names = append(names, svc.Name)
	}
	return names
}

// ResolveService maps a free-form service mention onto the catalog. Exact
// name or alias matches win; otherwise a unique partial match is accepted.
func (c *Catalog) ResolveService(name string) (Service, bool) {
	needle := normalizeName(name)
	if needle == "" {
		return Service{}, false
	}
	for _, svc := range c.Services {
		if normalizeName(svc.Name) == needle {
			return svc, true
		}
		for _, alias := range svc.Aliases {
			if normalizeName(alias) == needle {
				return svc, true
			}
		}
	}

	var match Service
	matches := 0
	for _, svc := range c.Services {
		candidate := normalizeName(svc.Name)
		if strings.Contains(candidate, needle) || strings.Contains(needle, candidate) {
			match = svc
			matches++
		}
	}
	if matches == 1 {
		return match, true
	}
	return Service{}, false
}

// StaffFor returns the staff members who perform the service, ordered by id.
func (c *Catalog) StaffFor(serviceID string) []Staff {
	var out []Staff
	for _, st := range c.Staff {
		if st.Offers(serviceID) {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("-", " ", "_", " ", "'", "").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}
