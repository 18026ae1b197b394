package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StoreMetrics records cart, merge and checkout activity.
// A nil *StoreMetrics is valid and records nothing.
type StoreMetrics struct {
	cartWrites       *prometheus.CounterVec
	merges           *prometheus.CounterVec
	checkouts        *prometheus.CounterVec
	checkoutDuration *prometheus.HistogramVec
}

// NewStoreMetrics registers the storefront metrics on the provided registerer.
func NewStoreMetrics(reg prometheus.Registerer) *StoreMetrics {
	if reg == nil {
		return &StoreMetrics{}
	}
	cartWrites := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "cart_writes_total",
		Help:      "Cart mutations by cart kind and operation.",
	}, []string{"kind", "op"})
	merges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "cart_merges_total",
		Help:      "Guest to account cart reconciliations by outcome.",
	}, []string{"outcome"})
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "storefront",
		Name:      "checkouts_total",
		Help:      "Checkout attempts by cart kind and outcome.",
	}, []string{"kind", "outcome"})
	checkoutDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "storefront",
		Name:      "checkout_duration_seconds",
		Help:      "Duration of checkout attempts in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind"})
	reg.MustRegister(cartWrites, merges, checkouts, checkoutDuration)
	return &StoreMetrics{
		cartWrites:       cartWrites,
		merges:           merges,
		checkouts:        checkouts,
		checkoutDuration: checkoutDuration,
	}
}

func (m *StoreMetrics) IncCartWrite(kind, op string) {
	if m == nil || m.cartWrites == nil {
		return
	}
	m.cartWrites.WithLabelValues(normalizeLabel(kind), normalizeLabel(op)).Inc()
}

// IncMerge counts one reconciliation. Outcomes are merged, noop, duplicate, conflict and error.
func (m *StoreMetrics) IncMerge(outcome string) {
	if m == nil || m.merges == nil {
		return
	}
	m.merges.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveCheckout records one finished checkout attempt.
func (m *StoreMetrics) ObserveCheckout(kind, outcome string, duration time.Duration) {
	if m == nil || m.checkouts == nil {
		return
	}
	m.checkouts.WithLabelValues(normalizeLabel(kind), normalizeLabel(outcome)).Inc()
	m.checkoutDuration.WithLabelValues(normalizeLabel(kind)).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
