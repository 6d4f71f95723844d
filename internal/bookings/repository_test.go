package bookings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
)

var (
	slotStart = time.Date(2026, 10, 19, 15, 0, 0, 0, time.UTC)
	slotEnd   = slotStart.Add(45 * time.Minute)
)

func testBooking() Booking {
	return Booking{
		ID:             uuid.MustParse("7f1c2a9e-4a47-4a0f-9d6b-8b8e2f0c1a11"),
		SalonID:        "salon-1",
		StaffID:        "ana",
		ServiceID:      "haircut",
		CustomerHandle: "+15551234567",
		StartTime:      slotStart,
		EndTime:        slotEnd,
		CreatedVia:     CreatedViaAssistant,
	}
}

func newMockRepo(t *testing.T) (*Repository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	t.Cleanup(mock.Close)
	repo := newRepositoryWithDB(mock, nil)
	repo.backoffBase = time.Millisecond
	return repo, mock
}

func expectHappyTx(mock pgxmock.PgxPoolIface, b Booking, createdAt time.Time) {
	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectQuery("SELECT id FROM staff").
		WithArgs(b.SalonID, b.StaffID).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(b.StaffID))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(b.StaffID, b.StartTime, b.EndTime).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("INSERT INTO bookings").
		WithArgs(b.ID, b.SalonID, b.StaffID, b.ServiceID, b.CustomerHandle, b.StartTime, b.EndTime, "CONFIRMED", CreatedViaAssistant).
		WillReturnRows(pgxmock.NewRows([]string{"created_at"}).AddRow(createdAt))
	mock.ExpectExec("INSERT INTO outbox").
		WithArgs(pgxmock.AnyArg(), b.SalonID, "booking.confirmed.v1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
}

func TestRepositoryInsertCommitsBookingAndOutbox(t *testing.T) {
	repo, mock := newMockRepo(t)
	b := testBooking()
	createdAt := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	expectHappyTx(mock, b, createdAt)

	got, err := repo.Insert(context.Background(), b)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if got.Status != StatusConfirmed || !got.CreatedAt.Equal(createdAt) {
		t.Fatalf("unexpected booking: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepositoryInsertOverlapIsConflict(t *testing.T) {
	repo, mock := newMockRepo(t)
	b := testBooking()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectQuery("SELECT id FROM staff").
		WithArgs(b.SalonID, b.StaffID).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(b.StaffID))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(b.StaffID, b.StartTime, b.EndTime).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	if _, err := repo.Insert(context.Background(), b); !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("expected ErrSlotConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepositoryInsertUnknownStaff(t *testing.T) {
	repo, mock := newMockRepo(t)
	b := testBooking()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectQuery("SELECT id FROM staff").
		WithArgs(b.SalonID, b.StaffID).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	if _, err := repo.Insert(context.Background(), b); !errors.Is(err, ErrUnknownStaff) {
		t.Fatalf("expected ErrUnknownStaff, got %v", err)
	}
}

func TestRepositoryExclusionViolationIsConflict(t *testing.T) {
	repo, mock := newMockRepo(t)
	b := testBooking()

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectQuery("SELECT id FROM staff").
		WithArgs(b.SalonID, b.StaffID).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(b.StaffID))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(b.StaffID, b.StartTime, b.EndTime).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("INSERT INTO bookings").
		WillReturnError(&pgconn.PgError{Code: pgErrCodeExclusionViolation})
	mock.ExpectRollback()

	if _, err := repo.Insert(context.Background(), b); !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("expected ErrSlotConflict, got %v", err)
	}
}

func TestRepositoryRetriesSerializationFailure(t *testing.T) {
	repo, mock := newMockRepo(t)
	b := testBooking()
	createdAt := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	mock.ExpectBeginTx(pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	mock.ExpectQuery("SELECT id FROM staff").
		WithArgs(b.SalonID, b.StaffID).
		WillReturnError(&pgconn.PgError{Code: pgErrCodeDeadlockDetected})
	mock.ExpectRollback()
	expectHappyTx(mock, b, createdAt)

	if _, err := repo.Insert(context.Background(), b); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRepositoryConfirmedBetween(t *testing.T) {
	repo, mock := newMockRepo(t)
	from := time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	mock.ExpectQuery("SELECT staff_id, start_time, end_time").
		WithArgs("salon-1", from, to).
		WillReturnRows(pgxmock.NewRows([]string{"staff_id", "start_time", "end_time"}).
			AddRow("ana", slotStart, slotEnd).
			AddRow("ben", slotStart, slotEnd))

	got, err := repo.ConfirmedBetween(context.Background(), "salon-1", from, to)
	if err != nil {
		t.Fatalf("confirmed between: %v", err)
	}
	if len(got) != 2 || got[0].StaffID != "ana" || !got[1].Start.Equal(slotStart) {
		t.Fatalf("unexpected intervals: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestBackoffGrows(t *testing.T) {
	base := 10 * time.Millisecond
	for attempt := 0; attempt < 3; attempt++ {
		min := time.Duration(1<<attempt) * base
		got := backoff(attempt, base)
		if got < min || got > min+min/5 {
			t.Fatalf("attempt %d: backoff %s outside [%s, %s]", attempt, got, min, min+min/5)
		}
	}
}
