package comms

// This file implements the session reducer: a fold of classified comm-log
// records into the evolving Session value, with callback emission on state
// transitions.
//
// State machine per open session:
//
//	(none) --Connected-----> Open
//	Open   --Reconnected---> Open   (reconnect count++)
//	Open   --CounterLine---> Open   (first line sets fields; second sets flags only)
//	Open   --InRecovery----> Open   (recovery code / escape reason)
//	Open   --File*---------> Open   (transfer lists)
//	Open   --Disconnected--> Closed (terminal)
//
// The reducer is deterministic over the record stream: replaying any prefix
// split of the log yields the same Session value, which is what makes the
// tailer's remembered-offset restart safe.

import "log/slog"

// Reducer folds records into the open Session and the backing CommLog.
//
// Not safe for concurrent use; the monitor is single-threaded by design and
// drives the reducer from the tailer loop only.
type Reducer struct {
	log     *CommLog
	visitor Visitor
	logger  *slog.Logger

	sess         *Session
	counterLines int

	// firstTime suppresses callbacks during scan-back. The controller sets
	// it for the first tailer pass and clears it afterwards.
	firstTime bool
}

// NewReducer creates a reducer folding into log and emitting callbacks to
// visitor. A nil visitor is replaced with NopVisitor.
func NewReducer(log *CommLog, visitor Visitor, logger *slog.Logger) *Reducer {
	if visitor == nil {
		visitor = NopVisitor{}
	}
	return &Reducer{
		log:     log,
		visitor: visitor,
		logger:  logger.With(slog.String("component", "comms.reducer")),
	}
}

// SetFirstTime toggles scan-back mode: while true, records mutate the
// Session but fire no callbacks.
func (r *Reducer) SetFirstTime(v bool) { r.firstTime = v }

// FirstTime reports whether callback suppression is active.
func (r *Reducer) FirstTime() bool { return r.firstTime }

// Session returns a snapshot of the open session, if any.
func (r *Reducer) Session() (Session, bool) {
	if r.sess == nil {
		return Session{}, false
	}
	return r.sess.Snapshot(), true
}

// SetGliderID sets the glider id on the open session when it is still
// unknown. Used by the controller after resolving the id externally.
func (r *Reducer) SetGliderID(id int) {
	if r.sess != nil && r.sess.GliderID == 0 {
		r.sess.GliderID = id
	}
	if r.log.GliderID == 0 {
		r.log.GliderID = id
	}
}

// Apply folds one record into the state. Ignored and Ver records are no-ops.
func (r *Reducer) Apply(rec Record) {
	switch rec.Kind {
	case KindConnected:
		r.applyConnected(rec)
	case KindReconnected:
		r.applyReconnected(rec)
	case KindDisconnected:
		r.applyDisconnected(rec)
	case KindFileTransferred:
		r.applyTransferred(rec)
	case KindFileReceived:
		r.applyReceived(rec)
	case KindInRecovery:
		r.applyRecovery(rec)
	case KindCounterLine:
		r.applyCounter(rec)
	case KindIridium:
		r.applyIridium(rec)
	case KindIgnored, KindVer:
		// Nothing to fold.
	}
}

// applyConnected opens a new session. A Connected record while a session is
// still open means the writer died without logging a disconnect; the stale
// session is closed silently (its true end state is unknown, so no
// disconnect callback fires for it).
func (r *Reducer) applyConnected(rec Record) {
	if r.sess != nil {
		r.logger.Warn("Connected with session still open, closing stale session",
			slog.Time("stale_connect", r.sess.ConnectedAt),
			slog.Time("new_connect", rec.Time),
		)
		r.sess.DisconnectedAt = rec.Time
		r.log.Append(r.sess.Snapshot())
	}

	r.sess = &Session{
		GliderID:    r.log.GliderID,
		ConnectedAt: rec.Time,
	}
	r.counterLines = 0

	r.emit(func(s Session) { r.visitor.Connected(s) })
}

func (r *Reducer) applyReconnected(rec Record) {
	if r.sess == nil {
		r.logger.Warn("Reconnected with no open session, ignoring",
			slog.Time("ts", rec.Time))
		return
	}
	r.sess.Reconnects++
	r.emit(func(s Session) { r.visitor.Reconnected(s) })
}

func (r *Reducer) applyDisconnected(rec Record) {
	if r.sess == nil {
		r.logger.Warn("Disconnected with no open session, ignoring",
			slog.Time("ts", rec.Time))
		return
	}

	r.sess.DisconnectedAt = rec.Time
	r.sess.LogoutSeen = rec.LogoutSeen

	snap := r.sess.Snapshot()
	r.log.Append(snap)
	r.sess = nil

	r.emit(func(Session) { r.visitor.Disconnected(snap) })
}

func (r *Reducer) applyTransferred(rec Record) {
	if r.sess == nil {
		return
	}
	r.sess.Transferred = append(r.sess.Transferred, rec.File)
	r.emit(func(s Session) { r.visitor.Transferred(s, rec.File) })
}

func (r *Reducer) applyReceived(rec Record) {
	if r.sess == nil {
		return
	}
	r.sess.Received = append(r.sess.Received, rec.File)
	r.emit(func(s Session) { r.visitor.Received(s, rec.File) })
}

func (r *Reducer) applyRecovery(rec Record) {
	if r.sess == nil {
		return
	}
	if isEscapeReason(rec.Reason) {
		r.sess.EscapeReason = rec.Reason
	} else {
		r.sess.RecovCode = rec.Reason
	}
	r.emit(func(s Session) { r.visitor.Recovery(s) })
}

// applyCounter folds a counter line. Two counter lines bracket the data
// exchange: the first wins for dive number and GPS fix; the second only
// contributes the logout-adjacent flags and its GPS/dive are suppressed
// from downstream callbacks to avoid duplicate notification.
func (r *Reducer) applyCounter(rec Record) {
	if r.sess == nil {
		return
	}

	cf := rec.Counter
	r.counterLines++

	if r.counterLines == 1 {
		r.sess.Dive = cf.Dive
		r.sess.Fix = cf.Fix
		if cf.ID != 0 {
			r.sess.GliderID = cf.ID
			if r.log.GliderID == 0 {
				r.log.GliderID = cf.ID
			}
		}
		r.sess.Depth = cf.Depth
		r.sess.Pitch = cf.Pitch
		r.sess.Temp = cf.Temp
		r.sess.Volts10 = cf.Volts10
		r.sess.Volts24 = cf.Volts24
		if cf.RecovCode != "" {
			r.sess.RecovCode = cf.RecovCode
		}
		if cf.EscapeReason != "" {
			r.sess.EscapeReason = cf.EscapeReason
		}
		r.sess.Rebooted = r.sess.Rebooted || cf.Reboot

		r.warnOnDiveRegression()
		r.emit(func(s Session) { r.visitor.CounterLine(s) })
		return
	}

	// Second (or later) counter line: flags only.
	r.sess.Rebooted = r.sess.Rebooted || cf.Reboot
	r.sess.LogoutSeen = r.sess.LogoutSeen || cf.Logout
	if cf.RecovCode != "" && r.sess.RecovCode == "" {
		r.sess.RecovCode = cf.RecovCode
	}

	if cf.Fix.Valid && r.sess.Fix.Valid &&
		(cf.Fix.Lat != r.sess.Fix.Lat || cf.Fix.Lon != r.sess.Fix.Lon) {
		r.logger.Warn("counter lines disagree on GPS fix, keeping first",
			slog.Float64("first_lat", r.sess.Fix.Lat),
			slog.Float64("first_lon", r.sess.Fix.Lon),
			slog.Float64("second_lat", cf.Fix.Lat),
			slog.Float64("second_lon", cf.Fix.Lon),
		)
	}
}

func (r *Reducer) applyIridium(rec Record) {
	if r.sess == nil {
		return
	}
	r.sess.Iridium = rec.Geo
	r.sess.HasIridium = true
	r.emit(func(s Session) { r.visitor.Iridium(s, rec.Geo) })
}

// warnOnDiveRegression logs when the new session's dive number decreases
// against the last closed session. Dive numbers increment across sessions;
// zero (unknown) is skipped on either side.
func (r *Reducer) warnOnDiveRegression() {
	last, ok := r.log.Last()
	if !ok || last.Dive == 0 || r.sess.Dive == 0 {
		return
	}
	if r.sess.Dive < last.Dive {
		r.logger.Warn("dive number regressed",
			slog.Int("previous", last.Dive),
			slog.Int("current", r.sess.Dive),
		)
	}
}

// emit invokes fn with a fresh snapshot unless scan-back suppression is on.
func (r *Reducer) emit(fn func(Session)) {
	if r.firstTime {
		return
	}
	var snap Session
	if r.sess != nil {
		snap = r.sess.Snapshot()
	}
	fn(snap)
}

// isEscapeReason distinguishes escape reasons from recovery codes on the
// In Recovery line.
func isEscapeReason(reason string) bool {
	return len(reason) >= 6 && reason[:6] == "ESCAPE"
}
