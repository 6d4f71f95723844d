package events

import (
	"context"
	"time"

	"github.com/wolfman30/salon-concierge/internal/observability/metrics"
	"github.com/wolfman30/salon-concierge/pkg/clock"
	"github.com/wolfman30/salon-concierge/pkg/logging"
)

// Purger is implemented by both ledgers.
type Purger interface {
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

// Janitor periodically drops ledger entries older than the retention period.
type Janitor struct {
	ledger    Purger
	retention time.Duration
	interval  time.Duration
	clock     clock.Clock
	logger    *logging.Logger
	metrics   *metrics.BookingMetrics
}

// NewJanitor builds a janitor. Retention is raised to redeliveryWindow when
// shorter, otherwise a late redelivery could be processed twice.
func NewJanitor(ledger Purger, retention, redeliveryWindow, interval time.Duration, logger *logging.Logger) *Janitor {
	if ledger == nil {
		panic("events: ledger required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if retention < redeliveryWindow {
		retention = redeliveryWindow
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &Janitor{
		ledger:    ledger,
		retention: retention,
		interval:  interval,
		clock:     clock.New(),
		logger:    logger,
	}
}

func (j *Janitor) WithClock(c clock.Clock) *Janitor {
	if c != nil {
		j.clock = c
	}
	return j
}

func (j *Janitor) WithMetrics(m *metrics.BookingMetrics) *Janitor {
	j.metrics = m
	return j
}

// Retention reports the effective retention period.
func (j *Janitor) Retention() time.Duration {
	return j.retention
}

// Start purges once immediately and then on every tick until ctx is done.
func (j *Janitor) Start(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		if _, err := j.RunOnce(ctx); err != nil && ctx.Err() == nil {
			j.logger.Error("ledger purge failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce purges entries claimed before now minus retention.
func (j *Janitor) RunOnce(ctx context.Context) (int64, error) {
	cutoff := j.clock.Now().Add(-j.retention)
	n, err := j.ledger.Purge(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	j.metrics.ObservePurged(n)
	if n > 0 {
		j.logger.Info("purged ledger entries", "count", n, "cutoff", cutoff)
	}
	return n, nil
}
