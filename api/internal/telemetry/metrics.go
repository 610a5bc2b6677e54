package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "karidc"

// Metrics are the controller's Prometheus collectors.
type Metrics struct {
	Batches         *prometheus.CounterVec
	Updates         *prometheus.CounterVec
	Rollbacks       *prometheus.CounterVec
	RestartRequired prometheus.Counter
	FlattenSeconds  prometheus.Histogram
	BootedServers   prometheus.Gauge
	ModelVersion    *prometheus.GaugeVec
}

// NewMetrics builds the collectors and registers them with reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "batch",
			Name:      "total",
			Help:      "Server update batches by terminal state.",
		}, []string{"state"}),
		Updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "update",
			Name:      "total",
			Help:      "Server model updates by outcome.",
		}, []string{"outcome"}),
		Rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "update",
			Name:      "rollbacks_total",
			Help:      "Compensating updates by outcome.",
		}, []string{"outcome"}),
		RestartRequired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "update",
			Name:      "restart_required_total",
			Help:      "Updates left waiting for the next server start.",
		}),
		FlattenSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "flatten_seconds",
			Help:      "Time spent composing server models.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		BootedServers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "runtime",
			Name:      "booted_servers",
			Help:      "Servers currently running under this controller.",
		}),
		ModelVersion: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "model",
			Name:      "version",
			Help:      "Stored snapshot version per model.",
		}, []string{"kind", "name"}),
	}
	if reg != nil {
		reg.MustRegister(m.Batches, m.Updates, m.Rollbacks, m.RestartRequired,
			m.FlattenSeconds, m.BootedServers, m.ModelVersion)
	}
	return m
}

// ObserveBatch records a finished batch. Nil receivers are ignored.
func (m *Metrics) ObserveBatch(state string, outcomes, rollbacks []string, restartRequired int) {
	if m == nil {
		return
	}
	m.Batches.WithLabelValues(state).Inc()
	for _, o := range outcomes {
		m.Updates.WithLabelValues(o).Inc()
	}
	for _, o := range rollbacks {
		m.Rollbacks.WithLabelValues(o).Inc()
	}
	m.RestartRequired.Add(float64(restartRequired))
}

// ObserveFlatten records the duration of one flatten since start.
func (m *Metrics) ObserveFlatten(start time.Time) {
	if m == nil {
		return
	}
	m.FlattenSeconds.Observe(time.Since(start).Seconds())
}

func (m *Metrics) SetBooted(n int) {
	if m == nil {
		return
	}
	m.BootedServers.Set(float64(n))
}

func (m *Metrics) SetVersion(kind, name string, version int) {
	if m == nil {
		return
	}
	m.ModelVersion.WithLabelValues(kind, name).Set(float64(version))
}
