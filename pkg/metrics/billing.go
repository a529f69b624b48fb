package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// BillingMetrics counts charges, webhook outcomes and gateway latency.
type BillingMetrics struct {
	chargesCreated  *prometheus.CounterVec
	webhookEvents   *prometheus.CounterVec
	sweepItems      *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
}

// NewBillingMetrics registers billing metrics on reg. A nil registerer yields
// a no-op recorder.
func NewBillingMetrics(reg prometheus.Registerer) *BillingMetrics {
	if reg == nil {
		return &BillingMetrics{}
	}
	chargesCreated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sherlocker_pix_charges_created_total",
		Help: "Pix charges issued through the payment gateway.",
	}, []string{"kind"})
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sherlocker_payment_webhooks_total",
		Help: "Payment webhook deliveries by gateway status and outcome.",
	}, []string{"status", "outcome"})
	sweepItems := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sherlocker_billing_sweep_items_total",
		Help: "Items visited by billing sweeps by outcome.",
	}, []string{"sweep", "outcome"})
	gatewayDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sherlocker_gateway_request_duration_seconds",
		Help:    "Latency of payment gateway calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"outcome"})
	reg.MustRegister(chargesCreated, webhookEvents, sweepItems, gatewayDuration)
	return &BillingMetrics{
		chargesCreated:  chargesCreated,
		webhookEvents:   webhookEvents,
		sweepItems:      sweepItems,
		gatewayDuration: gatewayDuration,
	}
}

// IncChargeCreated counts a charge of the given kind (initial, recurring).
func (b *BillingMetrics) IncChargeCreated(kind string) {
	if b == nil || b.chargesCreated == nil {
		return
	}
	b.chargesCreated.WithLabelValues(normalizeLabel(kind)).Inc()
}

// IncWebhook counts a webhook delivery.
func (b *BillingMetrics) IncWebhook(status, outcome string) {
	if b == nil || b.webhookEvents == nil {
		return
	}
	b.webhookEvents.WithLabelValues(normalizeLabel(status), normalizeLabel(outcome)).Inc()
}

// AddSweepItems adds n items with the given outcome to a sweep counter.
func (b *BillingMetrics) AddSweepItems(sweep, outcome string, n int) {
	if b == nil || b.sweepItems == nil || n <= 0 {
		return
	}
	b.sweepItems.WithLabelValues(normalizeLabel(sweep), normalizeLabel(outcome)).Add(float64(n))
}

// ObserveGateway records the latency of one gateway call.
func (b *BillingMetrics) ObserveGateway(outcome string, duration time.Duration) {
	if b == nil || b.gatewayDuration == nil {
		return
	}
	b.gatewayDuration.WithLabelValues(normalizeLabel(outcome)).Observe(duration.Seconds())
}
