package metrics

import "github.com/prometheus/client_golang/prometheus"

// Allocation outcomes
const (
	OutcomeConfirmed = "confirmed"
	OutcomeSlotFull  = "slot_full"
	OutcomeInvalid   = "invalid"
	OutcomeError     = "error"
)

// BookingMetrics exposes counters/histograms for registration flows.
// A nil *BookingMetrics is valid and records nothing.
type BookingMetrics struct {
	allocationsTotal  *prometheus.CounterVec
	allocationLatency prometheus.Histogram
	turnsTotal        *prometheus.CounterVec
	sessionsExpired   prometheus.Counter
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		allocationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hospital",
			Subsystem: "booking",
			Name:      "allocations_total",
			Help:      "Slot allocation attempts by outcome",
		}, []string{"outcome"}),
		allocationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "hospital",
			Subsystem: "booking",
			Name:      "allocation_latency_seconds",
			Help:      "Latency of slot allocation including lock wait and retries",
			Buckets:   prometheus.DefBuckets,
		}),
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hospital",
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Inbound conversation turns by step and result",
		}, []string{"step", "result"}),
		sessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hospital",
			Subsystem: "conversation",
			Name:      "sessions_expired_total",
			Help:      "Sessions purged on read after idling past the TTL",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.allocationsTotal, m.allocationLatency, m.turnsTotal, m.sessionsExpired)
	return m
}

func (m *BookingMetrics) ObserveAllocation(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.allocationsTotal.WithLabelValues(outcome).Inc()
	m.allocationLatency.Observe(seconds)
}

func (m *BookingMetrics) ObserveTurn(step, result string) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(step, result).Inc()
}

func (m *BookingMetrics) ObserveSessionExpired() {
	if m == nil {
		return
	}
	m.sessionsExpired.Inc()
}
