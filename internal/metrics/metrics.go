// Package metrics exposes Prometheus instrumentation for the lookup pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Lookup outcomes
const (
	LookupAccepted   = "accepted"
	LookupCoalesced  = "coalesced"
	LookupOutOfScope = "out_of_scope"
	LookupDropped    = "dropped"
	LookupDuplicate  = "duplicate"
	LookupClosed     = "closed"
)

// Batch statuses
const (
	BatchOK    = "ok"
	BatchError = "error"
)

// Resolution kinds
const (
	ResolvedFound    = "found"
	ResolvedNotFound = "not_found"
	ResolvedNoResult = "no_result"
	ResolvedExpired  = "expired"
	ResolvedEvicted  = "evicted"
	ResolvedError    = "error"
)

// Metrics holds the collectors for one lookup source
type Metrics struct {
	lookups       *prometheus.CounterVec
	batches       *prometheus.CounterVec
	resolved      *prometheus.CounterVec
	waiting       prometheus.Gauge
	pending       prometheus.Gauge
	batchSize     prometheus.Histogram
	batchDuration prometheus.Histogram
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vtgofer_lookups_total",
			Help: "Lookup submissions by outcome at submit time.",
		}, []string{"outcome"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vtgofer_batches_total",
			Help: "Batch queries sent to the reputation service by status.",
		}, []string{"status"}),
		resolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vtgofer_resolved_total",
			Help: "Pending keys resolved, by kind.",
		}, []string{"kind"}),
		waiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vtgofer_waiting_keys",
			Help: "Keys buffered for the next batch.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vtgofer_pending_keys",
			Help: "Keys with at least one caller awaiting a result.",
		}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vtgofer_batch_size",
			Help:    "Keys per batch query.",
			Buckets: prometheus.LinearBuckets(1, 5, 10),
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vtgofer_batch_duration_seconds",
			Help:    "Round-trip time of batch queries.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
	}

	reg.MustRegister(m.lookups, m.batches, m.resolved, m.waiting, m.pending, m.batchSize, m.batchDuration)
	return m
}

// Nop returns metrics registered with a throwaway registry
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}

// Lookup records a submission outcome
func (m *Metrics) Lookup(outcome string) {
	m.lookups.WithLabelValues(outcome).Inc()
}

// Batch records a completed batch query
func (m *Metrics) Batch(status string, size int, d time.Duration) {
	m.batches.WithLabelValues(status).Inc()
	m.batchSize.Observe(float64(size))
	m.batchDuration.Observe(d.Seconds())
}

// Resolved records n keys resolved with kind
func (m *Metrics) Resolved(kind string, n int) {
	if n <= 0 {
		return
	}
	m.resolved.WithLabelValues(kind).Add(float64(n))
}

// SetQueue publishes the waiting and pending key counts
func (m *Metrics) SetQueue(waiting, pending int) {
	m.waiting.Set(float64(waiting))
	m.pending.Set(float64(pending))
}
