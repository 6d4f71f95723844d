// Package audit keeps a durable trail of conversation turns.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Turn is one handled inbound event and what it did to the conversation.
type Turn struct {
	ID               string    `json:"id"`
	TransportEventID string    `json:"transport_event_id"`
	SalonID          string    `json:"salon_id"`
	CustomerHandle   string    `json:"customer_handle"`
	EventType        string    `json:"event_type"`
	FromPhase        string    `json:"from_phase"`
	ToPhase          string    `json:"to_phase"`
	Outcome          string    `json:"outcome"`
	OfferedSlotIDs   []string  `json:"offered_slot_ids,omitempty"`
	BookingID        string    `json:"booking_id,omitempty"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// Recorder writes turns to conversation_audit.
type Recorder struct {
	db *sql.DB
}

func NewRecorder(db *sql.DB) *Recorder {
	if db == nil {
		panic("audit: db required")
	}
	return &Recorder{db: db}
}

func (r *Recorder) RecordTurn(ctx context.Context, t Turn) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.OccurredAt.IsZero() {
		t.OccurredAt = time.Now().UTC()
	}

	query := `
		INSERT INTO conversation_audit (
			id, transport_event_id, salon_id, customer_handle, event_type,
			from_phase, to_phase, outcome, offered_slot_ids, booking_id, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query,
		t.ID,
		t.TransportEventID,
		t.SalonID,
		t.CustomerHandle,
		t.EventType,
		t.FromPhase,
		t.ToPhase,
		t.Outcome,
		pq.Array(t.OfferedSlotIDs),
		nullString(t.BookingID),
		t.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("audit: failed to record turn: %w", err)
	}
	return nil
}

// Recent returns the latest turns of one conversation, newest first.
func (r *Recorder) Recent(ctx context.Context, salonID, customerHandle string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, transport_event_id, salon_id, customer_handle, event_type,
		       from_phase, to_phase, outcome, offered_slot_ids, booking_id, occurred_at
		FROM conversation_audit
		WHERE salon_id = $1 AND customer_handle = $2
		ORDER BY occurred_at DESC
		LIMIT $3
	`
	rows, err := r.db.QueryContext(ctx, query, salonID, customerHandle, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to query turns: %w", err)
	}
	defer rows.Close()

	var out []Turn
	for rows.Next() {
		var t Turn
		var booking sql.NullString
		if err := rows.Scan(&t.ID, &t.TransportEventID, &t.SalonID, &t.CustomerHandle, &t.EventType,
			&t.FromPhase, &t.ToPhase, &t.Outcome, pq.Array(&t.OfferedSlotIDs), &booking, &t.OccurredAt); err != nil {
			return nil, fmt.Errorf("audit: failed to scan turn: %w", err)
		}
		t.BookingID = booking.String
		out = append(out, t)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
