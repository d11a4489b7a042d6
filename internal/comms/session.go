package comms

import "time"

// -------------------------------------------------------------------------
// Session — one radio contact from Connected to Disconnected
// -------------------------------------------------------------------------

// Session is one glider connection, created on Connected and closed on
// Disconnected (observed or synthetic). It is mutated only by the Reducer;
// everything else sees value copies via Snapshot. A closed session is never
// revived.
type Session struct {
	// GliderID is the glider serial number. Zero means not yet known — it
	// may stay unknown until a counter line carries an id field or the
	// controller resolves it from the mission directory.
	GliderID int

	// Dive is the dive number. Zero means unknown until the counter line.
	Dive int

	// ConnectedAt is the session open instant (UTC).
	ConnectedAt time.Time

	// Reconnects counts Reconnected records within this session.
	Reconnects int

	// DisconnectedAt is the session close instant (UTC). Zero while open.
	DisconnectedAt time.Time

	// LogoutSeen is true when the disconnect reason indicated a clean logout.
	LogoutSeen bool

	// Fix is the most recent GPS fix. Fix.Valid is false until a counter
	// line carried a complete one.
	Fix GPSFix

	// RecovCode is the recovery code, empty when the glider is not in
	// recovery.
	RecovCode string

	// EscapeReason is the escape reason, empty when not escaping.
	EscapeReason string

	// Rebooted is true when a counter line carried the reboot flag.
	Rebooted bool

	// Drift prediction inputs from the counter line.
	Depth   float64
	Pitch   float64
	Temp    float64
	Volts10 float64
	Volts24 float64

	// Transferred lists files sent to the glider, in log order.
	Transferred []FileTransfer

	// Received lists files received from the glider, in log order.
	Received []FileTransfer

	// Iridium is the most recent Iridium geolocation estimate.
	Iridium IridiumFix

	// HasIridium is true once an Iridium geolocation record was observed.
	HasIridium bool
}

// Closed reports whether the session has been disconnected.
func (s *Session) Closed() bool { return !s.DisconnectedAt.IsZero() }

// InRecovery reports whether the glider declared a recovery or escape state.
func (s *Session) InRecovery() bool { return s.RecovCode != "" || s.EscapeReason != "" }

// Snapshot returns a read-only value copy of the session. The transfer
// slices are cloned so callbacks cannot alias the reducer's state.
func (s *Session) Snapshot() Session {
	cp := *s
	if len(s.Transferred) > 0 {
		cp.Transferred = append([]FileTransfer(nil), s.Transferred...)
	}
	if len(s.Received) > 0 {
		cp.Received = append([]FileTransfer(nil), s.Received...)
	}
	return cp
}
