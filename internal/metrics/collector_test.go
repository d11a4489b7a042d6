package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/seaglider-ops/commwatch/internal/metrics"
)

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	if c.LinesParsed == nil {
		t.Error("LinesParsed is nil")
	}
	if c.ParseErrors == nil {
		t.Error("ParseErrors is nil")
	}
	if c.EventsDispatched == nil {
		t.Error("EventsDispatched is nil")
	}
	if c.SinkErrors == nil {
		t.Error("SinkErrors is nil")
	}
	if c.TailerFailures == nil {
		t.Error("TailerFailures is nil")
	}
	if c.SessionOpen == nil {
		t.Error("SessionOpen is nil")
	}
	if c.SessionsClosed == nil {
		t.Error("SessionsClosed is nil")
	}

	// Verify all metrics are registered by gathering them.
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}

	// No data yet, so families may be empty -- but registration must not panic.
	_ = families
}

func TestLineCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.IncLine("connected")
	c.IncLine("counter_line")
	c.IncLine("counter_line")

	if val := counterValue(t, c.LinesParsed, "counter_line"); val != 2 {
		t.Errorf("LinesParsed(counter_line) = %v, want 2", val)
	}
	if val := counterValue(t, c.LinesParsed, "connected"); val != 1 {
		t.Errorf("LinesParsed(connected) = %v, want 1", val)
	}
}

func TestDispatchAndSinkErrorCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.IncDispatched("gps", "email")
	c.IncDispatched("gps", "email")
	c.IncDispatched("recov", "ntfy")
	c.IncSinkError("gps", "email")

	if val := counterValue(t, c.EventsDispatched, "gps", "email"); val != 2 {
		t.Errorf("EventsDispatched(gps, email) = %v, want 2", val)
	}
	if val := counterValue(t, c.EventsDispatched, "recov", "ntfy"); val != 1 {
		t.Errorf("EventsDispatched(recov, ntfy) = %v, want 1", val)
	}
	if val := counterValue(t, c.SinkErrors, "gps", "email"); val != 1 {
		t.Errorf("SinkErrors(gps, email) = %v, want 1", val)
	}
}

func TestSessionGauge(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	c.SessionOpened()
	if val := gaugeValue(t, c.SessionOpen); val != 1 {
		t.Errorf("SessionOpen after open = %v, want 1", val)
	}

	c.SessionClosed()
	if val := gaugeValue(t, c.SessionOpen); val != 0 {
		t.Errorf("SessionOpen after close = %v, want 0", val)
	}
	if val := plainCounterValue(t, c.SessionsClosed); val != 1 {
		t.Errorf("SessionsClosed = %v, want 1", val)
	}
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

// gaugeValue reads the current value of a Gauge.
func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()

	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

// plainCounterValue reads the current value of an unlabeled Counter.
func plainCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()

	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

// counterValue reads the current value of a CounterVec with the given labels.
func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()

	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetCounter().GetValue()
}
