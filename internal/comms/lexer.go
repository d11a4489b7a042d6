package comms

// This file implements the comm-log line lexer. Classification is driven by
// the line prefix; every input line maps to exactly one Record. The lexer is
// pure: it does no I/O and holds no state. Malformed payloads on recognized
// prefixes are reported through the returned error and the line degrades to
// an Ignored record — the stream is never aborted by a bad line.

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Sentinel errors for recognized-but-malformed lines.
var (
	// ErrBadTimestamp indicates a timestamp matched neither accepted form.
	ErrBadTimestamp = errors.New("unparsable timestamp")

	// ErrBadTransfer indicates a file transfer line with an unparsable size.
	ErrBadTransfer = errors.New("malformed file transfer line")

	// ErrBadIridium indicates a malformed Iridium geolocation triple.
	ErrBadIridium = errors.New("malformed iridium geolocation")
)

// Line prefixes of the comm-log grammar.
const (
	prefixConnected    = "Connected at "
	prefixReconnected  = "Reconnected at "
	prefixDisconnected = "Disconnected at "
	prefixReceived     = "Received file "
	prefixTransferred  = "Transferred "
	prefixCounter      = "Counter: "
	prefixIridium      = "Iridium geolocation: "
	prefixRecovery     = "In Recovery: "
	prefixVer          = "Ver:"
)

// timestampForms are the two accepted timestamp encodings, tried in order.
// Everything is normalized to UTC on input.
var timestampForms = []string{time.RFC3339, time.UnixDate}

// ParseTimestamp parses one of the two accepted timestamp forms and
// normalizes the result to UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampForms {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("timestamp %q: %w", s, ErrBadTimestamp)
}

// ParseLine classifies one comm-log line (trailing newline already stripped)
// into exactly one Record.
//
// Unrecognized lines return an Ignored record with a nil error. Recognized
// lines with malformed payloads return an Ignored record with a non-nil
// error so the caller can report them; reducer state is unaffected either
// way.
func ParseLine(line string) (Record, error) {
	switch {
	case strings.HasPrefix(line, prefixConnected):
		return parseTimestamped(KindConnected, line[len(prefixConnected):])

	case strings.HasPrefix(line, prefixReconnected):
		return parseTimestamped(KindReconnected, line[len(prefixReconnected):])

	case strings.HasPrefix(line, prefixDisconnected):
		return parseDisconnected(line[len(prefixDisconnected):])

	case strings.HasPrefix(line, prefixReceived):
		return parseReceived(line[len(prefixReceived):])

	case strings.HasPrefix(line, prefixTransferred):
		return parseTransferred(line[len(prefixTransferred):])

	case strings.HasPrefix(line, prefixCounter):
		return parseCounter(line[len(prefixCounter):])

	case strings.HasPrefix(line, prefixIridium):
		return parseIridium(line[len(prefixIridium):])

	case strings.HasPrefix(line, prefixRecovery):
		return Record{Kind: KindInRecovery, Reason: strings.TrimSpace(line[len(prefixRecovery):])}, nil

	case strings.HasPrefix(line, prefixVer):
		return Record{Kind: KindVer}, nil

	default:
		return Record{Kind: KindIgnored}, nil
	}
}

// parseTimestamped handles the Connected and Reconnected payloads, which are
// a bare timestamp.
func parseTimestamped(kind Kind, rest string) (Record, error) {
	ts, err := ParseTimestamp(rest)
	if err != nil {
		return Record{Kind: KindIgnored}, fmt.Errorf("%s: %w", kind, err)
	}
	return Record{Kind: kind, Time: ts}, nil
}

// parseDisconnected handles "…<ts>[ (<reason>)]". An empty reason or an
// explicit "logout" reason marks a clean logout; synthetic reasons such as
// "shell_disappeared" do not.
func parseDisconnected(rest string) (Record, error) {
	reason := ""
	if i := strings.Index(rest, " ("); i >= 0 && strings.HasSuffix(rest, ")") {
		reason = rest[i+2 : len(rest)-1]
		rest = rest[:i]
	}

	ts, err := ParseTimestamp(rest)
	if err != nil {
		return Record{Kind: KindIgnored}, fmt.Errorf("Disconnected: %w", err)
	}

	return Record{
		Kind:       KindDisconnected,
		Time:       ts,
		Reason:     reason,
		LogoutSeen: reason == "" || reason == "logout",
	}, nil
}

// parseReceived handles "<name> (<n> bytes)".
func parseReceived(rest string) (Record, error) {
	i := strings.LastIndex(rest, " (")
	if i < 0 || !strings.HasSuffix(rest, " bytes)") {
		return Record{Kind: KindIgnored}, fmt.Errorf("received %q: %w", rest, ErrBadTransfer)
	}

	name := rest[:i]
	sizeTok := rest[i+2 : len(rest)-len(" bytes)")]
	size, err := strconv.ParseInt(sizeTok, 10, 64)
	if err != nil {
		return Record{Kind: KindIgnored}, fmt.Errorf("received %q: %w", rest, ErrBadTransfer)
	}

	return Record{Kind: KindFileReceived, File: FileTransfer{Name: name, Bytes: size}}, nil
}

// parseTransferred handles "<n> bytes of <name>".
func parseTransferred(rest string) (Record, error) {
	sizeTok, name, ok := strings.Cut(rest, " bytes of ")
	if !ok {
		return Record{Kind: KindIgnored}, fmt.Errorf("transferred %q: %w", rest, ErrBadTransfer)
	}

	size, err := strconv.ParseInt(strings.TrimSpace(sizeTok), 10, 64)
	if err != nil {
		return Record{Kind: KindIgnored}, fmt.Errorf("transferred %q: %w", rest, ErrBadTransfer)
	}

	return Record{Kind: KindFileTransferred, File: FileTransfer{Name: name, Bytes: size}}, nil
}

// parseIridium handles "<lat>,<lon>,<cep>" in decimal degrees / kilometers.
func parseIridium(rest string) (Record, error) {
	parts := strings.Split(rest, ",")
	if len(parts) != 3 {
		return Record{Kind: KindIgnored}, fmt.Errorf("iridium %q: %w", rest, ErrBadIridium)
	}

	vals := make([]float64, 3)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Record{Kind: KindIgnored}, fmt.Errorf("iridium %q: %w", rest, ErrBadIridium)
		}
		vals[i] = v
	}

	return Record{Kind: KindIridium, Geo: IridiumFix{Lat: vals[0], Lon: vals[1], CEP: vals[2]}}, nil
}

// parseCounter handles the "k=v, …" payload of a Counter line.
//
// Pairs are separated by ", " (comma-space). The gps= value itself contains
// a comma with no following space ("4730.1234N,12215.5678W"), so the split
// is unambiguous. Bare tokens without "=" are flags (reboot, logout).
// Unknown keys are skipped; a counter line never fails as a whole, but a
// malformed gps or ts field is reported and leaves the fix invalid.
func parseCounter(rest string) (Record, error) {
	var cf CounterFields
	var fixErr error
	var gpsSeen, tsSeen bool
	var fixTime time.Time

	for _, tok := range strings.Split(rest, ", ") {
		key, val, isPair := strings.Cut(tok, "=")
		key = strings.TrimSpace(key)

		if !isPair {
			switch key {
			case "reboot":
				cf.Reboot = true
			case "logout":
				cf.Logout = true
			}
			continue
		}

		switch key {
		case "dive":
			cf.Dive, _ = strconv.Atoi(val)
		case "id":
			cf.ID, _ = strconv.Atoi(val)
		case "gps":
			lat, lon, err := ParseDDMMPair(val)
			if err != nil {
				fixErr = err
				continue
			}
			cf.Fix.Lat, cf.Fix.Lon = lat, lon
			gpsSeen = true
		case "ts":
			ts, err := ParseTimestamp(val)
			if err != nil {
				fixErr = err
				continue
			}
			fixTime = ts
			tsSeen = true
		case "recov_code":
			cf.RecovCode = val
		case "escape_reason":
			cf.EscapeReason = val
		case "depth":
			cf.Depth, _ = strconv.ParseFloat(val, 64)
		case "pitch":
			cf.Pitch, _ = strconv.ParseFloat(val, 64)
		case "temp":
			cf.Temp, _ = strconv.ParseFloat(val, 64)
		case "volts":
			// "10.1/24.0" pair: 10V bus / 24V bus.
			v10, v24, ok := strings.Cut(val, "/")
			if ok {
				cf.Volts10, _ = strconv.ParseFloat(v10, 64)
				cf.Volts24, _ = strconv.ParseFloat(v24, 64)
			}
		}
	}

	// A fix without all of lat/lon/time is absent, never zero.
	if gpsSeen && tsSeen {
		cf.Fix.Time = fixTime
		cf.Fix.Valid = true
	}

	rec := Record{Kind: KindCounterLine, Counter: cf}
	if fixErr != nil {
		return rec, fmt.Errorf("counter line: %w", fixErr)
	}
	return rec, nil
}
