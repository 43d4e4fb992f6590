// Package metrics exposes the Prometheus collectors the txnfeed core
// reports through when given a *Recorder. A nil *Recorder is a valid,
// zero-cost no-op — every method has a nil receiver guard — so wiring
// metrics in is opt-in.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder owns the collectors for one Adapter instance and registers
// them with the supplied registerer.
type Recorder struct {
	cacheHits           prometheus.Counter
	cacheMisses         prometheus.Counter
	fetchDuration       prometheus.Histogram
	fetchFailures       prometheus.Counter
	activeSubscriptions prometheus.Gauge
}

// New builds a Recorder and registers its collectors with reg. Passing
// prometheus.NewRegistry() (rather than the global DefaultRegisterer)
// keeps multiple Adapters in one process from colliding.
func New(reg prometheus.Registerer, namespace string) *Recorder {
	var r = &Recorder{
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_hits_total",
			Help: "Checkpoint cache lookups that found a successor transaction.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "cache_misses_total",
			Help: "Checkpoint cache lookups that found nothing.",
		}),
		fetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "backing_store_fetch_seconds",
			Help:    "Latency of backing-store GetFrom calls.",
			Buckets: prometheus.DefBuckets,
		}),
		fetchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "backing_store_fetch_failures_total",
			Help: "Backing-store fetches that returned an error and were swallowed.",
		}),
		activeSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "active_subscriptions",
			Help: "Number of live subscriptions.",
		}),
	}
	reg.MustRegister(r.cacheHits, r.cacheMisses, r.fetchDuration, r.fetchFailures, r.activeSubscriptions)
	return r
}

func (r *Recorder) CacheHit() {
	if r != nil {
		r.cacheHits.Inc()
	}
}

func (r *Recorder) CacheMiss() {
	if r != nil {
		r.cacheMisses.Inc()
	}
}

func (r *Recorder) FetchDuration(d time.Duration) {
	if r != nil {
		r.fetchDuration.Observe(d.Seconds())
	}
}

func (r *Recorder) FetchFailure() {
	if r != nil {
		r.fetchFailures.Inc()
	}
}

func (r *Recorder) SubscriptionsChanged(delta float64) {
	if r != nil {
		r.activeSubscriptions.Add(delta)
	}
}
