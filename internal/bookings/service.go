package bookings

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/salon-concierge/internal/observability/metrics"
	"github.com/wolfman30/salon-concierge/internal/schedule"
	"github.com/wolfman30/salon-concierge/pkg/logging"
)

var bookingsTracer = otel.Tracer("salon.internal.bookings")

// Store is implemented by Repository and MemoryRepository.
type Store interface {
	Insert(ctx context.Context, b Booking) (*Booking, error)
	ConfirmedBetween(ctx context.Context, salonID string, from, to time.Time) ([]schedule.BookedInterval, error)
}

// Service is the only path that creates bookings.
type Service struct {
	store   Store
	logger  *logging.Logger
	metrics *metrics.BookingMetrics
	timeout time.Duration
}

type ServiceOption func(*Service)

func WithMetrics(m *metrics.BookingMetrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithCommitTimeout bounds a single Commit call including retries.
func WithCommitTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewService constructs a bookings service.
func NewService(store Store, logger *logging.Logger, opts ...ServiceOption) *Service {
	if store == nil {
		panic("bookings: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{store: store, logger: logger, timeout: 5 * time.Second}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Commit books the slot if it is still free. ErrSlotConflict means it is not.
func (s *Service) Commit(ctx context.Context, req CommitRequest) (*Booking, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	ctx, span := bookingsTracer.Start(ctx, "bookings.commit")
	defer span.End()
	span.SetAttributes(
		attribute.String("salon.salon_id", req.SalonID),
		attribute.String("salon.staff_id", req.StaffID),
		attribute.String("salon.service_id", req.ServiceID),
	)

	b, err := s.store.Insert(ctx, Booking{
		ID:             uuid.New(),
		SalonID:        req.SalonID,
		StaffID:        req.StaffID,
		ServiceID:      req.ServiceID,
		CustomerHandle: req.CustomerHandle,
		StartTime:      req.Start.UTC(),
		EndTime:        req.End.UTC(),
		CreatedVia:     CreatedViaAssistant,
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrSlotConflict) {
			s.metrics.ObserveCommit("conflict")
			s.logger.Info("booking slot already taken", "salon_id", req.SalonID, "staff_id", req.StaffID, "start", req.Start)
			return nil, err
		}
		s.metrics.ObserveCommit("error")
		return nil, err
	}
	s.metrics.ObserveCommit("confirmed")
	s.logger.Info("booking confirmed", "salon_id", b.SalonID, "staff_id", b.StaffID, "booking_id", b.ID, "start", b.StartTime)
	return b, nil
}

// ConfirmedBetween lets the slot finder read committed bookings.
func (s *Service) ConfirmedBetween(ctx context.Context, salonID string, from, to time.Time) ([]schedule.BookedInterval, error) {
	return s.store.ConfirmedBetween(ctx, salonID, from, to)
}
