// Package metrics exposes settlement counters to Prometheus. A nil *Metrics
// is valid and records nothing, so components can take one optionally.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	Verifications     *prometheus.CounterVec
	Payouts           *prometheus.CounterVec
	Claims            *prometheus.CounterVec
	RelayedTxs        prometheus.Counter
	Archived          *prometheus.CounterVec
}

// New registers the collectors on reg under namespace
func New(reg prometheus.Registerer, namespace string) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Settlement operations by kind and final status",
		}, []string{"kind", "status"}),
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Wall time of settlement operations including ledger calls",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"kind"}),
		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_verifications_total",
			Help:      "Inbound payment verifications by proof kind and result",
		}, []string{"proof", "result"}),
		Payouts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payouts_total",
			Help:      "Outbound transfers by result",
		}, []string{"result"}),
		Claims: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_total",
			Help:      "Claim lifecycle events",
		}, []string{"event"}),
		RelayedTxs: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relayed_transactions_total",
			Help:      "Solana transfers written to the relay cache",
		}),
		Archived: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archived_records_total",
			Help:      "Records moved to archive regions",
		}, []string{"region"}),
	}
}

func (m *Metrics) Operation(kind, status string, took time.Duration) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(kind, status).Inc()
	m.OperationDuration.WithLabelValues(kind).Observe(took.Seconds())
}

func (m *Metrics) Verification(proof string, ok bool) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(proof, result(ok)).Inc()
}

func (m *Metrics) Payout(ok bool) {
	if m == nil {
		return
	}
	m.Payouts.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) Claim(event string) {
	if m == nil {
		return
	}
	m.Claims.WithLabelValues(event).Inc()
}

func (m *Metrics) Relayed() {
	if m == nil {
		return
	}
	m.RelayedTxs.Inc()
}

func (m *Metrics) Archive(region string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.Archived.WithLabelValues(region).Add(float64(n))
}

func result(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}
