package scrubber

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricPrefix = "scrubber_"

	resultSuccess = "success"
	resultSkipped = "skipped"
	resultError   = "error"
)

// Metrics holds the collectors updated by pollers
type Metrics struct {
	registry *prometheus.Registry

	pulls          *prometheus.CounterVec
	recordsWritten *prometheus.CounterVec
	pullDuration   *prometheus.HistogramVec
}

// NewMetrics registers the scrubber collectors on a private registry
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pulls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "pulls_total",
				Help: "Total endpoint pulls by source and result",
			},
			[]string{"source", "result"},
		),
		recordsWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "records_written_total",
				Help: "Total records handed to the sink by source",
			},
			[]string{"source"},
		),
		pullDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "pull_duration_seconds",
				Help:    "Pull duration in seconds, including the sink write",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source"},
		),
	}

	m.registry.MustRegister(m.pulls, m.recordsWritten, m.pullDuration)

	return m
}

// Handler exposes the registry in the prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) observePull(source Source, result string, seconds float64) {
	if m == nil {
		return
	}
	m.pulls.WithLabelValues(string(source), result).Inc()
	m.pullDuration.WithLabelValues(string(source)).Observe(seconds)
}

func (m *Metrics) observeWritten(source Source, n int) {
	if m == nil {
		return
	}
	m.recordsWritten.WithLabelValues(string(source)).Add(float64(n))
}
