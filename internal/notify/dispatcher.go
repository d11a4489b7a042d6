// Package notify turns reducer callbacks into delivered notifications: it
// builds the subject and body for an event, resolves the subscription table,
// and fans out to the sink adapters with per-sink fault isolation.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/seaglider-ops/commwatch/internal/comms"
	"github.com/seaglider-ops/commwatch/internal/metrics"
	"github.com/seaglider-ops/commwatch/internal/sink"
	"github.com/seaglider-ops/commwatch/internal/subs"
)

// bodyFunc renders the notification body in a target's coordinate format.
type bodyFunc func(comms.LatLonFormat) string

// Options wires a Dispatcher.
type Options struct {
	// Loader reads the subscription layers. Loaded fresh per event so live
	// edits take effect immediately.
	Loader *subs.Loader

	// Sinks is the adapter registry.
	Sinks *sink.Registry

	// Log is the session history the bodies draw on.
	Log *comms.CommLog

	// Collector records dispatch metrics. Nil disables recording.
	Collector *metrics.Collector

	// Viz is the visualization sidechannel. Nil disables it.
	Viz *Viz

	// Prefix is appended to subject lines, typically the mission name.
	Prefix string

	// Timeout bounds one sink send.
	Timeout time.Duration

	// Logger is the parent logger.
	Logger *slog.Logger
}

// Dispatcher fans events out to subscribed endpoints. It implements
// comms.Visitor so it plugs straight into the reducer; scan-back suppression
// happens upstream, in the reducer itself.
type Dispatcher struct {
	ctx       context.Context
	loader    *subs.Loader
	sinks     *sink.Registry
	log       *comms.CommLog
	collector *metrics.Collector
	viz       *Viz
	prefix    string
	timeout   time.Duration
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher. ctx bounds the lifetime of every send
// it will ever make; cancel it to stop outbound traffic.
func NewDispatcher(ctx context.Context, opts Options) *Dispatcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = sink.DefaultTimeout
	}
	return &Dispatcher{
		ctx:       ctx,
		loader:    opts.Loader,
		sinks:     opts.Sinks,
		log:       opts.Log,
		collector: opts.Collector,
		viz:       opts.Viz,
		prefix:    opts.Prefix,
		timeout:   timeout,
		logger:    opts.Logger.With(slog.String("component", "dispatcher")),
	}
}

var _ comms.Visitor = (*Dispatcher)(nil)

// -------------------------------------------------------------------------
// Reducer callbacks
// -------------------------------------------------------------------------

// Connected marks the session open. No subscription event fires on connect;
// the fix has not arrived yet.
func (d *Dispatcher) Connected(s comms.Session) {
	if d.collector != nil {
		d.collector.SessionOpened()
	}
	d.vizNotify(s, "connected")
}

// Reconnected is a carrier hiccup inside one session; nothing to tell anyone.
func (d *Dispatcher) Reconnected(s comms.Session) {}

// Disconnected closes the session and, when enough history exists, sends the
// drift prediction to drift subscribers.
func (d *Dispatcher) Disconnected(s comms.Session) {
	if d.collector != nil {
		d.collector.SessionClosed()
	}
	d.vizNotify(s, "disconnected")

	est, err := d.log.PredictDrift(time.Now().UTC())
	if err != nil {
		d.logger.Debug("no drift prediction", slog.String("reason", err.Error()))
		return
	}
	d.Dispatch(subs.EventDrift, s, func(f comms.LatLonFormat) string {
		return driftBody(s, est, f)
	})
}

// CounterLine carries the session's first fix: the gps event.
func (d *Dispatcher) CounterLine(s comms.Session) {
	d.vizNotify(s, "gps")
	d.Dispatch(subs.EventGPS, s, func(f comms.LatLonFormat) string {
		return fixBody(s, f)
	})
}

// Recovery fires the recov event, and additionally critical when the glider
// is in a recovery it was not commanded into.
func (d *Dispatcher) Recovery(s comms.Session) {
	d.vizNotify(s, "recovery")
	d.Dispatch(subs.EventRecov, s, func(f comms.LatLonFormat) string {
		return recoveryBody(s, f)
	})
	if s.RecovCode != "" && s.RecovCode != "QUIT_COMMAND" {
		d.Dispatch(subs.EventCritical, s, func(f comms.LatLonFormat) string {
			return recoveryBody(s, f)
		})
	}
}

// Transferred and Received are upload traffic: the network event.
func (d *Dispatcher) Transferred(s comms.Session, f comms.FileTransfer) {
	d.Dispatch(subs.EventUpload, s, plainBody(
		fmt.Sprintf("transferred %s (%d bytes)", f.Name, f.Bytes)))
}

func (d *Dispatcher) Received(s comms.Session, f comms.FileTransfer) {
	d.Dispatch(subs.EventUpload, s, plainBody(
		fmt.Sprintf("received %s (%d bytes)", f.Name, f.Bytes)))
}

// Iridium geolocations are coarse backup positions; logged, not dispatched.
func (d *Dispatcher) Iridium(s comms.Session, geo comms.IridiumFix) {
	d.logger.Info("iridium geolocation",
		slog.Float64("lat", geo.Lat),
		slog.Float64("lon", geo.Lon),
		slog.Float64("cep", geo.CEP))
}

// -------------------------------------------------------------------------
// Processing-side events
// -------------------------------------------------------------------------

// LateGPS reports that no fix arrived within the expected window.
func (d *Dispatcher) LateGPS(s comms.Session) {
	d.Dispatch(subs.EventLateGPS, s, func(f comms.LatLonFormat) string {
		return "no fix this session; last known: " + d.log.FormatLastFix(f)
	})
}

// ProcessingComplete, DiveTarballs, ConversionErrors, Traceback and Alerts
// carry bodies produced outside the comm log, by the file conversion chain.
// An empty body suppresses the dispatch.

func (d *Dispatcher) ProcessingComplete(s comms.Session, body string) {
	d.Dispatch(subs.EventComp, s, plainBody(body))
}

func (d *Dispatcher) DiveTarballs(s comms.Session, body string) {
	d.Dispatch(subs.EventDiveTar, s, plainBody(body))
}

func (d *Dispatcher) ConversionErrors(s comms.Session, body string) {
	d.Dispatch(subs.EventErrors, s, plainBody(body))
}

func (d *Dispatcher) Traceback(s comms.Session, body string) {
	d.Dispatch(subs.EventTraceback, s, plainBody(body))
}

func (d *Dispatcher) Alerts(s comms.Session, body string) {
	d.Dispatch(subs.EventAlerts, s, plainBody(body))
}

// -------------------------------------------------------------------------
// Core dispatch
// -------------------------------------------------------------------------

// Dispatch resolves the subscription table for event and sends to every
// resolved endpoint. Per-sink failures are logged and counted; they never
// affect sibling sends. A nil subject (no relevant session state) suppresses
// the whole dispatch.
func (d *Dispatcher) Dispatch(event subs.EventKind, sess comms.Session, body bodyFunc) {
	probe := body(comms.FormatDDMM)
	subject, effective, ok := d.subject(event, sess, probe)
	if !ok {
		d.logger.Debug("dispatch suppressed",
			slog.String("event", string(event)))
		return
	}

	table, err := d.loader.Load()
	if err != nil {
		d.logger.Error("subscription table load failed",
			slog.String("event", string(event)),
			slog.String("error", err.Error()))
		return
	}

	items := subs.Resolve(table, event, d.logger)
	for _, item := range items {
		d.send(item, effective, subject, body(item.LatLon), sess)
	}
}

// send delivers to one endpoint, absorbing errors and panics so siblings are
// untouched.
func (d *Dispatcher) send(item subs.Item, effective subs.EventKind, subject, body string, sess comms.Session) {
	adapter, ok := d.sinks.For(item.Endpoint.Kind)
	if !ok {
		d.logger.Error("no adapter for sink kind",
			slog.String("sink", string(item.Endpoint.Kind)))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("sink panicked",
				slog.String("sink", adapter.Name()),
				slog.String("user", item.User),
				slog.Any("panic", r))
			if d.collector != nil {
				d.collector.IncSinkError(string(effective), adapter.Name())
			}
		}
	}()

	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	defer cancel()

	msg := sink.Message{
		GliderID: d.log.ResolveGliderID(),
		Event:    effective,
		Subject:  subject,
		Body:     body,
		Fix:      sess.Fix,
	}

	if d.collector != nil {
		d.collector.IncDispatched(string(effective), adapter.Name())
	}
	if err := adapter.Send(ctx, item.Endpoint, msg); err != nil {
		d.logger.Error("sink send failed",
			slog.String("sink", adapter.Name()),
			slog.String("user", item.User),
			slog.String("event", string(effective)),
			slog.String("error", err.Error()))
		if d.collector != nil {
			d.collector.IncSinkError(string(effective), adapter.Name())
		}
	}
}

// -------------------------------------------------------------------------
// Subject decision table
// -------------------------------------------------------------------------

// subject builds the subject line for event against the session state. The
// returned event kind is the effective one after elevation (alerts whose
// body reports a critical capture failure count as critical for tag and
// priority selection). ok=false suppresses the dispatch.
func (d *Dispatcher) subject(event subs.EventKind, sess comms.Session, body string) (string, subs.EventKind, bool) {
	sg := fmt.Sprintf("SG%03d", d.log.ResolveGliderID())

	var subj string
	effective := event

	switch event {
	case subs.EventGPS, subs.EventLateGPS:
		subj = "GPS " + sg

	case subs.EventRecov:
		switch {
		case sess.Rebooted:
			subj = "REBOOTED " + sg
		case sess.RecovCode != "":
			subj = "IN RECOVERY " + sg
		case sess.EscapeReason != "":
			subj = "IN ESCAPE " + sg
		}

	case subs.EventCritical:
		switch {
		case sess.Rebooted:
			subj = "REBOOTED " + sg
		case sess.RecovCode != "" && sess.RecovCode != "QUIT_COMMAND":
			subj = "IN NON-QUIT RECOVERY " + sg
		}

	case subs.EventDrift:
		subj = "Drift " + sg

	case subs.EventAlerts:
		if body == "" {
			break
		}
		if strings.Contains(strings.ToLower(body), "critical") {
			subj = "CRITICAL ERROR IN CAPTURE " + sg
			effective = subs.EventCritical
		} else {
			subj = "ALERTS " + sg
		}

	case subs.EventComp:
		if body != "" {
			subj = "Processing Complete " + sg
		}

	case subs.EventDiveTar:
		if body != "" {
			subj = "New Dive Tarball(s) " + sg
		}

	case subs.EventErrors, subs.EventTraceback:
		if body != "" {
			subj = "Warnings and Errors from " + sg + " conversion"
		}

	case subs.EventUpload:
		if body != "" {
			subj = sg + " NETWORK EVENT"
		}
	}

	if subj == "" {
		return "", event, false
	}
	if d.prefix != "" {
		subj += " " + d.prefix
	}
	return subj, effective, true
}

// -------------------------------------------------------------------------
// Bodies
// -------------------------------------------------------------------------

// plainBody ignores the coordinate format; used for text produced outside
// the comm log.
func plainBody(text string) bodyFunc {
	return func(comms.LatLonFormat) string { return text }
}

// fixBody renders the session's fix in the target's coordinate format.
func fixBody(s comms.Session, f comms.LatLonFormat) string {
	var b strings.Builder
	fmt.Fprintf(&b, "dive %d at %s", s.Dive, s.Fix.Render(f))
	if s.Fix.Valid {
		fmt.Fprintf(&b, " %s", s.Fix.Time.Format(time.RFC3339))
	}
	if s.Depth != 0 {
		fmt.Fprintf(&b, "\ndepth %.1f m, pitch %.1f deg", s.Depth, s.Pitch)
	}
	if s.Volts10 != 0 || s.Volts24 != 0 {
		fmt.Fprintf(&b, "\nbattery %.1fV/%.1fV", s.Volts10, s.Volts24)
	}
	return b.String()
}

// recoveryBody names the recovery or escape cause, then the position.
func recoveryBody(s comms.Session, f comms.LatLonFormat) string {
	cause := s.RecovCode
	if cause == "" {
		cause = s.EscapeReason
	}
	return cause + "\n" + fixBody(s, f)
}

// driftBody renders the dead-reckoned estimate.
func driftBody(s comms.Session, est comms.DriftEstimate, f comms.LatLonFormat) string {
	pos := comms.FixFromDegrees(est.Lat, est.Lon, s.Fix.Time)
	return fmt.Sprintf("%.1f kt on %03.0f deg over %s\nestimated position %s",
		est.SpeedKts, est.BearingDeg, est.Since.Round(time.Minute), pos.Render(f))
}
