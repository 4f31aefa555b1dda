package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"popengine/internal/eventbus"
	"popengine/internal/popup"
)

const namespace = "popup"

// Metrics implements popup.Observer on a private Prometheus registry.
type Metrics struct {
	reg *prometheus.Registry

	attempts *prometheus.CounterVec
	opens    prometheus.Counter
	closes   prometheus.Counter
	armed    prometheus.Gauge
	skipped  *prometheus.CounterVec
}

var _ popup.Observer = (*Metrics)(nil)

// NewMetrics registers the popup collectors plus the Go and process
// collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		attempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trigger_attempts_total",
			Help:      "Trigger attempts by source and arbiter outcome.",
		}, []string{"source", "outcome"}),
		opens: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "opens_total",
			Help:      "Popups that completed their open transition.",
		}),
		closes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "closes_total",
			Help:      "Popups closed by any means.",
		}),
		armed: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "armed_instances",
			Help:      "Instances currently waiting for a trigger.",
		}),
		skipped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "skipped_total",
			Help:      "Configured popups not armed at init, by reason.",
		}, []string{"reason"}),
	}
}

// Registry exposes the registry for the HTTP handler and tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

func (m *Metrics) Armed(string) { m.armed.Inc() }

func (m *Metrics) Disarmed(string) { m.armed.Dec() }

func (m *Metrics) TriggerAttempt(_ string, src popup.Source, out popup.Outcome) {
	m.attempts.WithLabelValues(string(src), string(out)).Inc()
}

func (m *Metrics) Opened(string) { m.opens.Inc() }

func (m *Metrics) Closed(string) { m.closes.Inc() }

// Skipped counts a popup the engine did not arm.
func (m *Metrics) Skipped(reason string) {
	if reason == "" {
		reason = "unknown"
	}
	m.skipped.WithLabelValues(reason).Inc()
}

// WatchBus exports the drop counter of b.
func (m *Metrics) WatchBus(b eventbus.Bus) error {
	return m.reg.Register(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bus_dropped_total",
		Help:      "Event deliveries dropped because a subscriber was slow.",
	}, func() float64 { return float64(b.Dropped()) }))
}
