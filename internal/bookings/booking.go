package bookings

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrSlotConflict means another confirmed booking of the same staff
	// member overlaps the requested interval.
	ErrSlotConflict = errors.New("bookings: slot conflict")
	// ErrUnknownStaff means the staff member does not belong to the salon.
	ErrUnknownStaff   = errors.New("bookings: unknown staff")
	ErrInvalidRequest = errors.New("bookings: invalid request")
)

type Status string

const (
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
)

// CreatedViaAssistant tags bookings made through the chat flow.
const CreatedViaAssistant = "assistant"

type Booking struct {
	ID             uuid.UUID `json:"id"`
	SalonID        string    `json:"salon_id"`
	StaffID        string    `json:"staff_id"`
	ServiceID      string    `json:"service_id"`
	CustomerHandle string    `json:"customer_handle"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Status         Status    `json:"status"`
	CreatedVia     string    `json:"created_via"`
	CreatedAt      time.Time `json:"created_at"`
}

// Overlaps reports whether b and o hold the same staff member at the same
// time. Intervals are half-open, so back-to-back bookings do not overlap.
func (b Booking) Overlaps(o Booking) bool {
	return b.StaffID == o.StaffID && b.StartTime.Before(o.EndTime) && o.StartTime.Before(b.EndTime)
}

// CommitRequest is one customer-confirmed slot.
type CommitRequest struct {
	SalonID        string
	StaffID        string
	ServiceID      string
	CustomerHandle string
	Start          time.Time
	End            time.Time
}

func (r CommitRequest) validate() error {
	switch {
	case strings.TrimSpace(r.SalonID) == "":
		return fmt.Errorf("%w: salon id required", ErrInvalidRequest)
	case strings.TrimSpace(r.StaffID) == "":
		return fmt.Errorf("%w: staff id required", ErrInvalidRequest)
	case strings.TrimSpace(r.ServiceID) == "":
		return fmt.Errorf("%w: service id required", ErrInvalidRequest)
	case strings.TrimSpace(r.CustomerHandle) == "":
		return fmt.Errorf("%w: customer handle required", ErrInvalidRequest)
	case !r.Start.Before(r.End):
		return fmt.Errorf("%w: start must be before end", ErrInvalidRequest)
	}
	return nil
}
