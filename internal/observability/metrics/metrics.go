package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BookingMetrics exposes counters/histograms for the booking conversation flow.
type BookingMetrics struct {
	inboundTotal      *prometheus.CounterVec
	duplicatesTotal   prometheus.Counter
	turnLatency       *prometheus.HistogramVec
	extractionLatency *prometheus.HistogramVec
	offeredSlots      prometheus.Histogram
	commitsTotal      *prometheus.CounterVec
	ledgerPurged      prometheus.Counter
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salon",
			Subsystem: "assistant",
			Name:      "inbound_events_total",
			Help:      "Inbound chat events by type and turn outcome",
		}, []string{"event_type", "outcome"}),
		duplicatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "salon",
			Subsystem: "assistant",
			Name:      "duplicate_events_total",
			Help:      "Inbound events dropped by the dedup ledger",
		}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "salon",
			Subsystem: "assistant",
			Name:      "turn_latency_seconds",
			Help:      "Latency of one conversation turn",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event_type"}),
		extractionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "salon",
			Subsystem: "assistant",
			Name:      "intent_extraction_seconds",
			Help:      "Latency of language-model intent extraction attempts",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8},
		}, []string{"status"}),
		offeredSlots: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "salon",
			Subsystem: "assistant",
			Name:      "offered_slots",
			Help:      "Number of slots offered per search",
			Buckets:   []float64{0, 1, 2, 3},
		}),
		commitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salon",
			Subsystem: "bookings",
			Name:      "commits_total",
			Help:      "Booking commit attempts by result",
		}, []string{"result"}),
		ledgerPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "salon",
			Subsystem: "assistant",
			Name:      "ledger_purged_total",
			Help:      "Dedup ledger entries removed by retention",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.duplicatesTotal, m.turnLatency, m.extractionLatency, m.offeredSlots, m.commitsTotal, m.ledgerPurged)
	return m
}

func (m *BookingMetrics) ObserveInbound(eventType, outcome string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(eventType, outcome).Inc()
}

func (m *BookingMetrics) ObserveDuplicate() {
	if m == nil {
		return
	}
	m.duplicatesTotal.Inc()
}

func (m *BookingMetrics) ObserveTurn(eventType string, d time.Duration) {
	if m == nil {
		return
	}
	m.turnLatency.WithLabelValues(eventType).Observe(d.Seconds())
}

func (m *BookingMetrics) ObserveExtraction(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.extractionLatency.WithLabelValues(status).Observe(d.Seconds())
}

func (m *BookingMetrics) ObserveOffered(n int) {
	if m == nil {
		return
	}
	m.offeredSlots.Observe(float64(n))
}

func (m *BookingMetrics) ObserveCommit(result string) {
	if m == nil {
		return
	}
	m.commitsTotal.WithLabelValues(result).Inc()
}

func (m *BookingMetrics) ObservePurged(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.ledgerPurged.Add(float64(n))
}
