package publisher

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	published     *prometheus.CounterVec
	buildDuration prometheus.Histogram
	subscribers   prometheus.Gauge
	dropped       prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dex",
			Subsystem: "publisher",
			Name:      "events_published_total",
			Help:      "State events broadcast to subscribers, by type.",
		}, []string{"type"}),
		buildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dex",
			Subsystem: "publisher",
			Name:      "state_build_duration_seconds",
			Help:      "Time spent reading a full state snapshot from the ledger.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}),
		subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dex",
			Subsystem: "publisher",
			Name:      "subscribers",
			Help:      "Currently attached subscribers.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dex",
			Subsystem: "publisher",
			Name:      "dropped_subscribers_total",
			Help:      "Subscribers disconnected because their buffer was full.",
		}),
	}
	reg.MustRegister(m.published, m.buildDuration, m.subscribers, m.dropped)
	return m
}
