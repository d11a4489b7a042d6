package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "commwatch"
	subsystem = "monitor"
)

// Label names for monitor metrics.
const (
	labelKind  = "kind"
	labelEvent = "event"
	labelSink  = "sink"
)

// -------------------------------------------------------------------------
// Collector — Prometheus Monitor Metrics
// -------------------------------------------------------------------------

// Collector holds all monitor Prometheus metrics.
//
// Metrics are designed for shore-side mission monitoring:
//   - Line counters track comm log volume by record kind.
//   - Dispatch counters track notifications per event kind and sink.
//   - Error counters flag failing sinks and a misbehaving log file.
//   - The session gauge shows whether the glider is on the phone right now.
type Collector struct {
	// LinesParsed counts comm log lines by classified record kind.
	LinesParsed *prometheus.CounterVec

	// ParseErrors counts recognized lines that failed to parse cleanly.
	ParseErrors prometheus.Counter

	// EventsDispatched counts notifications handed to a sink, per event
	// kind and sink kind.
	EventsDispatched *prometheus.CounterVec

	// SinkErrors counts failed sink sends per event kind and sink kind.
	// Failures are isolated, so this counter is the only trace they leave
	// beyond the log.
	SinkErrors *prometheus.CounterVec

	// TailerFailures counts failed tailer passes.
	TailerFailures prometheus.Counter

	// SessionOpen is 1 while a call is in progress, 0 otherwise.
	SessionOpen prometheus.Gauge

	// SessionsClosed counts completed call sessions.
	SessionsClosed prometheus.Counter
}

// NewCollector creates a Collector with all monitor metrics registered
// against the provided prometheus.Registerer. If reg is nil,
// prometheus.DefaultRegisterer is used.
//
// All metrics are created with the "commwatch_monitor_" prefix
// (namespace_subsystem) to avoid collisions with other exporters.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.LinesParsed,
		c.ParseErrors,
		c.EventsDispatched,
		c.SinkErrors,
		c.TailerFailures,
		c.SessionOpen,
		c.SessionsClosed,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	return &Collector{
		LinesParsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "lines_parsed_total",
			Help:      "Total comm log lines classified, by record kind.",
		}, []string{labelKind}),

		ParseErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "parse_errors_total",
			Help:      "Total recognized comm log lines that failed to parse.",
		}),

		EventsDispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_dispatched_total",
			Help:      "Total notifications handed to a sink adapter.",
		}, []string{labelEvent, labelSink}),

		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sink_errors_total",
			Help:      "Total failed sink sends.",
		}, []string{labelEvent, labelSink}),

		TailerFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "tailer_failures_total",
			Help:      "Total failed comm log read passes.",
		}),

		SessionOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "session_open",
			Help:      "Whether a call session is currently in progress.",
		}),

		SessionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "sessions_closed_total",
			Help:      "Total completed call sessions.",
		}),
	}
}

// -------------------------------------------------------------------------
// Recording
// -------------------------------------------------------------------------

// IncLine increments the line counter for a classified record kind.
func (c *Collector) IncLine(kind string) {
	c.LinesParsed.WithLabelValues(kind).Inc()
}

// IncParseError increments the parse error counter.
func (c *Collector) IncParseError() {
	c.ParseErrors.Inc()
}

// IncDispatched increments the dispatch counter for one (event, sink) pair.
func (c *Collector) IncDispatched(event, sink string) {
	c.EventsDispatched.WithLabelValues(event, sink).Inc()
}

// IncSinkError increments the sink failure counter for one (event, sink)
// pair.
func (c *Collector) IncSinkError(event, sink string) {
	c.SinkErrors.WithLabelValues(event, sink).Inc()
}

// IncTailerFailure increments the tailer failure counter.
func (c *Collector) IncTailerFailure() {
	c.TailerFailures.Inc()
}

// SessionOpened marks a call session in progress.
func (c *Collector) SessionOpened() {
	c.SessionOpen.Set(1)
}

// SessionClosed marks the call session finished and counts it.
func (c *Collector) SessionClosed() {
	c.SessionOpen.Set(0)
	c.SessionsClosed.Inc()
}
