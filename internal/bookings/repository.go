package bookings

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wolfman30/salon-concierge/internal/events"
	"github.com/wolfman30/salon-concierge/internal/schedule"
	"github.com/wolfman30/salon-concierge/pkg/logging"
)

const (
	pgErrCodeSerializationFailure = "40001"
	pgErrCodeDeadlockDetected     = "40P01"
	pgErrCodeExclusionViolation   = "23P01"
	pgErrCodeUniqueViolation      = "23505"

	maxTxRetries = 3
)

type txBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repository persists bookings in Postgres.
type Repository struct {
	db          txBeginner
	logger      *logging.Logger
	backoffBase time.Duration
}

// NewRepository creates a repository backed by pgx pool.
func NewRepository(pool *pgxpool.Pool, logger *logging.Logger) *Repository {
	if pool == nil {
		panic("bookings: pgx pool required")
	}
	return newRepositoryWithDB(pool, logger)
}

func newRepositoryWithDB(db txBeginner, logger *logging.Logger) *Repository {
	if logger == nil {
		logger = logging.Default()
	}
	return &Repository{db: db, logger: logger, backoffBase: 50 * time.Millisecond}
}

// Insert stores b as CONFIRMED together with its outbox event. The staff row
// is locked for the duration of the transaction, so concurrent commits for
// the same staff member run one after another and the second sees the first.
func (r *Repository) Insert(ctx context.Context, b Booking) (*Booking, error) {
	var out *Booking
	err := r.withRetry(ctx, func(ctx context.Context, tx pgx.Tx) error {
		row, err := insertInTx(ctx, tx, b)
		if err != nil {
			return err
		}
		out = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func insertInTx(ctx context.Context, tx pgx.Tx, b Booking) (*Booking, error) {
	var staffID string
	err := tx.QueryRow(ctx, `SELECT id FROM staff WHERE salon_id = $1 AND id = $2 FOR UPDATE`, b.SalonID, b.StaffID).Scan(&staffID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownStaff, b.StaffID)
		}
		return nil, fmt.Errorf("bookings: lock staff: %w", err)
	}

	var taken bool
	overlap := `
		SELECT EXISTS (
			SELECT 1 FROM bookings
			WHERE staff_id = $1 AND status = 'CONFIRMED'
			  AND start_time < $3 AND end_time > $2
		)
	`
	if err := tx.QueryRow(ctx, overlap, b.StaffID, b.StartTime, b.EndTime).Scan(&taken); err != nil {
		return nil, fmt.Errorf("bookings: check overlap: %w", err)
	}
	if taken {
		return nil, ErrSlotConflict
	}

	insert := `
		INSERT INTO bookings (id, salon_id, staff_id, service_id, customer_handle, start_time, end_time, status, created_via)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`
	err = tx.QueryRow(ctx, insert,
		b.ID, b.SalonID, b.StaffID, b.ServiceID, b.CustomerHandle,
		b.StartTime, b.EndTime, string(StatusConfirmed), b.CreatedVia,
	).Scan(&b.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("bookings: insert: %w", err)
	}
	b.Status = StatusConfirmed

	evt := events.BookingConfirmedV1{
		EventID:        b.ID.String(),
		SalonID:        b.SalonID,
		BookingID:      b.ID.String(),
		StaffID:        b.StaffID,
		ServiceID:      b.ServiceID,
		CustomerHandle: b.CustomerHandle,
		StartTime:      b.StartTime,
		EndTime:        b.EndTime,
		CreatedVia:     b.CreatedVia,
		OccurredAt:     b.CreatedAt,
	}
	if _, err := events.InsertOutbox(ctx, tx, b.SalonID, events.EventTypeBookingConfirmed, evt); err != nil {
		return nil, err
	}
	return &b, nil
}

// ConfirmedBetween lists CONFIRMED bookings overlapping [from, to).
func (r *Repository) ConfirmedBetween(ctx context.Context, salonID string, from, to time.Time) ([]schedule.BookedInterval, error) {
	query := `
		SELECT staff_id, start_time, end_time
		FROM bookings
		WHERE salon_id = $1 AND status = 'CONFIRMED'
		  AND start_time < $3 AND end_time > $2
		ORDER BY staff_id, start_time
	`
	rows, err := r.db.Query(ctx, query, salonID, from, to)
	if err != nil {
		return nil, fmt.Errorf("bookings: list confirmed: %w", err)
	}
	defer rows.Close()

	var out []schedule.BookedInterval
	for rows.Next() {
		var bi schedule.BookedInterval
		if err := rows.Scan(&bi.StaffID, &bi.Start, &bi.End); err != nil {
			return nil, fmt.Errorf("bookings: scan confirmed: %w", err)
		}
		out = append(out, bi)
	}
	return out, rows.Err()
}

func (r *Repository) withRetry(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	for attempt := 0; ; attempt++ {
		tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
		if err != nil {
			return fmt.Errorf("bookings: begin tx: %w", err)
		}

		err = fn(ctx, tx)
		if err == nil {
			if err = tx.Commit(ctx); err == nil {
				return nil
			}
			err = fmt.Errorf("bookings: commit: %w", err)
		}
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			r.logger.Warn("booking rollback failed", "attempt", attempt+1, "error", rbErr)
		}

		if constraintViolation(err) {
			return fmt.Errorf("%w: %v", ErrSlotConflict, err)
		}
		if !retryable(err) || attempt >= maxTxRetries {
			return err
		}

		wait := backoff(attempt, r.backoffBase)
		r.logger.Warn("retrying booking transaction", "attempt", attempt+1, "wait_ms", wait.Milliseconds(), "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func backoff(attempt int, base time.Duration) time.Duration {
	wait := time.Duration(1<<attempt) * base
	if j := int64(wait / 5); j > 0 {
		wait += time.Duration(rand.Int64N(j))
	}
	return wait
}

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgErrCodeSerializationFailure || pgErr.Code == pgErrCodeDeadlockDetected
}

func constraintViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgErrCodeExclusionViolation || pgErr.Code == pgErrCodeUniqueViolation
}
