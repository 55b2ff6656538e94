package host

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	calls        *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	logsEmitted  prometheus.Counter
	height       prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dex",
			Subsystem: "host",
			Name:      "calls_total",
			Help:      "Top-level calls by kind and outcome.",
		}, []string{"kind", "outcome"}),
		callDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dex",
			Subsystem: "host",
			Name:      "call_duration_seconds",
			Help:      "Time spent executing top-level calls.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"kind"}),
		logsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dex",
			Subsystem: "host",
			Name:      "logs_emitted_total",
			Help:      "Events emitted by committed calls.",
		}),
		height: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dex",
			Subsystem: "host",
			Name:      "height",
			Help:      "Latest committed height.",
		}),
	}
	reg.MustRegister(m.calls, m.callDuration, m.logsEmitted, m.height)
	return m
}
