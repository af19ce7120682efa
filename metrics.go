package eventq

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the counters the runtime updates as it fetches,
// retries, and GC-paces. Each Worker gets its own private registry so
// that constructing multiple workers in the same process (including in
// tests) never collides on prometheus's default global registerer.
type Metrics struct {
	Registry        *prometheus.Registry
	Fetched         prometheus.Counter
	Errors          prometheus.Counter
	Retries         prometheus.Counter
	RetryExceeded   prometheus.Counter
	GCFlushes       prometheus.Counter
}

// NewMetrics builds a Metrics bundle registered against a fresh private
// registry, labeled by worker name for disambiguation when a process
// runs several workers.
func NewMetrics(workerName string) *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		Fetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "eventq_fetches_total",
			Help:        "Total broker fetch attempts, empty or not.",
			ConstLabels: prometheus.Labels{"worker": workerName},
		}),
		Errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "eventq_errors_total",
			Help:        "Total errors reported through OnError.",
			ConstLabels: prometheus.Labels{"worker": workerName},
		}),
		Retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "eventq_retries_total",
			Help:        "Total reject-for-retry dispositions.",
			ConstLabels: prometheus.Labels{"worker": workerName},
		}),
		RetryExceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "eventq_retry_exceeded_total",
			Help:        "Total messages that reached max_retry_attempts.",
			ConstLabels: prometheus.Labels{"worker": workerName},
		}),
		GCFlushes: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "eventq_gc_flushes_total",
			Help:        "Total explicit GC-pacing hints issued.",
			ConstLabels: prometheus.Labels{"worker": workerName},
		}),
	}
	reg.MustRegister(m.Fetched, m.Errors, m.Retries, m.RetryExceeded, m.GCFlushes)
	return m
}
