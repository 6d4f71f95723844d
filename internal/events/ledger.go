package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Admission is the ledger's answer for one transport event id.
type Admission struct {
	// Admitted is true for the first delivery (or a re-claim of a stale claim).
	Admitted bool
	// Finalized is true when a previous delivery already produced Reply.
	Finalized bool
	Reply     json.RawMessage
}

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresLedger records which inbound events were handled and the reply sent.
type PostgresLedger struct {
	pool  rowQuerier
	lease time.Duration
}

// NewPostgresLedger returns a ledger whose pending claims can be taken over
// after lease (a worker crashed mid-turn).
func NewPostgresLedger(pool *pgxpool.Pool, lease time.Duration) *PostgresLedger {
	if pool == nil {
		panic("events: pgx pool required")
	}
	return newPostgresLedgerWithExec(pool, lease)
}

func newPostgresLedgerWithExec(exec rowQuerier, lease time.Duration) *PostgresLedger {
	if exec == nil {
		panic("events: exec required")
	}
	if lease <= 0 {
		lease = 2 * time.Minute
	}
	return &PostgresLedger{pool: exec, lease: lease}
}

// Admit atomically claims eventID. Exactly one concurrent caller is admitted.
func (l *PostgresLedger) Admit(ctx context.Context, eventID string, key ConversationKey) (Admission, error) {
	query := `
		INSERT INTO inbound_events (transport_event_id, salon_id, customer_handle, status, claimed_at)
		VALUES ($1, $2, $3, 'pending', now())
		ON CONFLICT (transport_event_id) DO UPDATE
			SET claimed_at = now()
			WHERE inbound_events.status = 'pending'
			  AND inbound_events.claimed_at < now() - make_interval(secs => $4)
	`
	ct, err := l.pool.Exec(ctx, query, eventID, key.SalonID, key.CustomerHandle, l.lease.Seconds())
	if err != nil {
		return Admission{}, fmt.Errorf("events: admit: %w", err)
	}
	if ct.RowsAffected() > 0 {
		return Admission{Admitted: true}, nil
	}

	var status string
	var reply []byte
	err = l.pool.QueryRow(ctx, `SELECT status, reply FROM inbound_events WHERE transport_event_id = $1`, eventID).Scan(&status, &reply)
	if err != nil {
		// Purged between the insert and the lookup; treat as in flight.
		if errors.Is(err, pgx.ErrNoRows) {
			return Admission{}, nil
		}
		return Admission{}, fmt.Errorf("events: load admission: %w", err)
	}
	return Admission{Finalized: status == "done", Reply: append(json.RawMessage(nil), reply...)}, nil
}

// Finalize stores the reply for eventID so redeliveries can replay it.
func (l *PostgresLedger) Finalize(ctx context.Context, eventID string, reply json.RawMessage) error {
	query := `
		UPDATE inbound_events
		SET status = 'done', reply = $2, processed_at = now()
		WHERE transport_event_id = $1
	`
	if _, err := l.pool.Exec(ctx, query, eventID, []byte(reply)); err != nil {
		return fmt.Errorf("events: finalize: %w", err)
	}
	return nil
}

// Release drops an unfinished claim so the next delivery is processed again.
func (l *PostgresLedger) Release(ctx context.Context, eventID string) error {
	query := `DELETE FROM inbound_events WHERE transport_event_id = $1 AND status = 'pending'`
	if _, err := l.pool.Exec(ctx, query, eventID); err != nil {
		return fmt.Errorf("events: release: %w", err)
	}
	return nil
}

// Purge deletes entries claimed before cutoff and returns how many went.
func (l *PostgresLedger) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	ct, err := l.pool.Exec(ctx, `DELETE FROM inbound_events WHERE claimed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("events: purge: %w", err)
	}
	return ct.RowsAffected(), nil
}
