package comms

// Visitor receives session state transitions from the Reducer.
//
// The notification layer implements Visitor to fan events out to subscribed
// endpoints; tests implement it to record transitions. Callbacks are invoked
// synchronously on the reducer's goroutine, in log order, and receive a
// read-only Session snapshot — long-running work should be bounded (the sink
// adapters enforce per-call transport timeouts).
//
// During scan-back (a monitor launched mid-session replaying the log tail to
// reconstruct state) the Reducer suppresses all callbacks; NopVisitor exists
// for callers that want the suppression explicit in the wiring.
type Visitor interface {
	// Connected fires when a session opens.
	Connected(s Session)

	// Reconnected fires when the link re-establishes within a session.
	Reconnected(s Session)

	// Disconnected fires when the session closes, observed or synthetic.
	Disconnected(s Session)

	// Transferred fires per file sent to the glider.
	Transferred(s Session, f FileTransfer)

	// Received fires per file received from the glider.
	Received(s Session, f FileTransfer)

	// Recovery fires when an In Recovery line sets the recovery code or
	// escape reason.
	Recovery(s Session)

	// CounterLine fires for the first counter line of a session only; the
	// second counter line's GPS and dive are suppressed to avoid duplicate
	// notification.
	CounterLine(s Session)

	// Iridium fires per Iridium geolocation record.
	Iridium(s Session, geo IridiumFix)
}

// NopVisitor is a Visitor that does nothing. Used for scan-back and as an
// embedding base for tests that only care about some callbacks.
type NopVisitor struct{}

func (NopVisitor) Connected(Session)                  {}
func (NopVisitor) Reconnected(Session)                {}
func (NopVisitor) Disconnected(Session)               {}
func (NopVisitor) Transferred(Session, FileTransfer)  {}
func (NopVisitor) Received(Session, FileTransfer)     {}
func (NopVisitor) Recovery(Session)                   {}
func (NopVisitor) CounterLine(Session)                {}
func (NopVisitor) Iridium(Session, IridiumFix)        {}

var _ Visitor = NopVisitor{}
