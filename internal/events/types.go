package events

import "time"

// EventTypeBookingConfirmed is the outbox type written with every committed booking.
const EventTypeBookingConfirmed = "booking.confirmed.v1"

type BookingConfirmedV1 struct {
	EventID        string    `json:"event_id"`
	SalonID        string    `json:"salon_id"`
	BookingID      string    `json:"booking_id"`
	StaffID        string    `json:"staff_id"`
	ServiceID      string    `json:"service_id"`
	CustomerHandle string    `json:"customer_handle"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	CreatedVia     string    `json:"created_via"`
	OccurredAt     time.Time `json:"occurred_at"`
}
