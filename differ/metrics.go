package differ

import "github.com/prometheus/client_golang/prometheus"

const allSchemas = "all"

type Metrics struct {
	diffDuration *prometheus.HistogramVec
	unchanged    prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		diffDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dex",
			Subsystem: "differ",
			Name:      "diff_duration_seconds",
			Help:      "Time spent diffing states, per schema and in total.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"schema"}),
		unchanged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dex",
			Subsystem: "differ",
			Name:      "unchanged_protocols_total",
			Help:      "Protocol diffs dropped because nothing changed.",
		}),
	}
	reg.MustRegister(m.diffDuration, m.unchanged)
	return m
}
