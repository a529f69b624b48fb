package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OutboxMetrics tracks what the outbox publisher does with billing events.
type OutboxMetrics struct {
	events        *prometheus.CounterVec
	batchDuration prometheus.Histogram
}

// NewOutboxMetrics registers outbox publisher metrics on reg. A nil registerer
// yields a no-op recorder.
func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sherlocker_outbox_events_total",
		Help: "Outbox rows handled by the publisher by event type and outcome.",
	}, []string{"event_type", "outcome"})
	batchDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sherlocker_outbox_batch_duration_seconds",
		Help:    "Time spent publishing one outbox batch.",
		Buckets: prometheus.DefBuckets,
	})
	reg.MustRegister(events, batchDuration)
	return &OutboxMetrics{events: events, batchDuration: batchDuration}
}

// IncEvent counts one outbox row (published, retry, deferred, dead).
func (m *OutboxMetrics) IncEvent(eventType, outcome string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// ObserveBatch records the duration of a non-empty batch.
func (m *OutboxMetrics) ObserveBatch(duration time.Duration) {
	if m == nil || m.batchDuration == nil {
		return
	}
	m.batchDuration.Observe(duration.Seconds())
}
