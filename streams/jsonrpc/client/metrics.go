package client

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	states     *prometheus.CounterVec
	latency    prometheus.Histogram
	resyncs    prometheus.Counter
	reconnects prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		states: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dex",
			Subsystem: "client",
			Name:      "states_applied_total",
			Help:      "States reconstructed from the stream, by event type.",
		}, []string{"type"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dex",
			Subsystem: "client",
			Name:      "state_latency_seconds",
			Help:      "Time from the server sending an event to the state being applied.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		resyncs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dex",
			Subsystem: "client",
			Name:      "resyncs_total",
			Help:      "Resubscriptions caused by a gap in the diff sequence.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dex",
			Subsystem: "client",
			Name:      "reconnects_total",
			Help:      "Failed connection or subscription attempts that were retried.",
		}),
	}
	reg.MustRegister(m.states, m.latency, m.resyncs, m.reconnects)
	return m
}
