package comms

import "time"

// -------------------------------------------------------------------------
// Record — one classified comm-log line
// -------------------------------------------------------------------------

// Kind tags the variant of a classified comm-log line.
type Kind uint8

const (
	// KindIgnored is any line the lexer does not recognize, and any
	// recognized line whose payload failed to parse.
	KindIgnored Kind = iota

	// KindConnected is "Connected at <ts>": a new session opens.
	KindConnected

	// KindReconnected is "Reconnected at <ts>": the radio link dropped and
	// re-established within the same session.
	KindReconnected

	// KindDisconnected is "Disconnected at <ts>[ (<reason>)]": the session
	// closes. Terminal for the open session.
	KindDisconnected

	// KindFileTransferred is "Transferred <n> bytes of <name>": a file was
	// sent to the glider.
	KindFileTransferred

	// KindFileReceived is "Received file <name> (<n> bytes)": a file was
	// received from the glider.
	KindFileReceived

	// KindInRecovery is "In Recovery: <reason>": the glider entered its
	// recovery or escape state.
	KindInRecovery

	// KindCounterLine is "Counter: <k=v, …>": the dive counter line carrying
	// dive number, GPS fix and status flags. Two of these bracket the data
	// exchange of a normal session.
	KindCounterLine

	// KindIridium is "Iridium geolocation: <lat>,<lon>,<cep>": a coarse
	// position estimate from the Iridium gateway.
	KindIridium

	// KindVer is the version banner the glider prints at login.
	KindVer
)

// String returns the human-readable name of the record kind.
func (k Kind) String() string {
	switch k {
	case KindConnected:
		return "Connected"
	case KindReconnected:
		return "Reconnected"
	case KindDisconnected:
		return "Disconnected"
	case KindFileTransferred:
		return "FileTransferred"
	case KindFileReceived:
		return "FileReceived"
	case KindInRecovery:
		return "InRecovery"
	case KindCounterLine:
		return "CounterLine"
	case KindIridium:
		return "IridiumGeolocation"
	case KindVer:
		return "Ver"
	default:
		return "Ignored"
	}
}

// FileTransfer describes one file moved over the radio link, in either
// direction.
type FileTransfer struct {
	// Name is the file name as printed in the log.
	Name string

	// Bytes is the transfer size in bytes.
	Bytes int64
}

// CounterFields holds the key=value payload of a Counter line. Fields that
// were absent from the line are left at their zero value with the matching
// Has* flag false where ambiguity matters.
type CounterFields struct {
	// Dive is the dive number. Zero means unknown (the counter line did not
	// carry a dive field).
	Dive int

	// ID is the glider serial number, when the line carries an id field.
	ID int

	// Fix is the GPS fix assembled from the gps= and ts= fields.
	// Fix.Valid is false unless both were present and parsed.
	Fix GPSFix

	// RecovCode is the recovery code (recov_code=), empty when absent.
	RecovCode string

	// EscapeReason is the escape reason (escape_reason=), empty when absent.
	EscapeReason string

	// Drift prediction inputs.
	Depth   float64
	Pitch   float64
	Temp    float64
	Volts10 float64
	Volts24 float64

	// Reboot is set by the bare "reboot" flag: the glider restarted since
	// the previous session.
	Reboot bool

	// Logout is set by the bare "logout" flag on the second counter line.
	Logout bool
}

// IridiumFix is a coarse geolocation estimate from the Iridium gateway,
// in decimal degrees with a circular error probable radius in kilometers.
type IridiumFix struct {
	Lat float64
	Lon float64
	CEP float64
}

// Record is one classified comm-log line. Kind selects which payload fields
// are meaningful; the rest are zero.
type Record struct {
	// Kind tags the variant.
	Kind Kind

	// Time is the normalized UTC instant for Connected, Reconnected and
	// Disconnected records.
	Time time.Time

	// Reason is the parenthesized disconnect reason or the recovery reason.
	Reason string

	// LogoutSeen is set on Disconnected records whose reason indicates a
	// clean logout (empty reason or "logout").
	LogoutSeen bool

	// File is the payload for FileTransferred and FileReceived.
	File FileTransfer

	// Counter is the payload for CounterLine.
	Counter CounterFields

	// Geo is the payload for IridiumGeolocation.
	Geo IridiumFix
}
