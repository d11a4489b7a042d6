package comms_test

import (
	"testing"
	"time"

	"github.com/seaglider-ops/commwatch/internal/comms"
)

func TestParseLineConnected(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		line string
		want time.Time
	}{
		{
			name: "rfc3339",
			line: "Connected at 2024-01-15T00:00:00Z",
			want: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "unixdate",
			line: "Connected at Mon Jan 15 00:00:00 UTC 2024",
			want: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec, err := comms.ParseLine(tt.line)
			if err != nil {
				t.Fatalf("ParseLine error: %v", err)
			}
			if rec.Kind != comms.KindConnected {
				t.Fatalf("Kind = %v, want Connected", rec.Kind)
			}
			if !rec.Time.Equal(tt.want) {
				t.Errorf("Time = %v, want %v", rec.Time, tt.want)
			}
		})
	}
}

func TestParseLineDisconnected(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		line       string
		reason     string
		logoutSeen bool
	}{
		{"bare", "Disconnected at 2024-01-15T00:05:00Z", "", true},
		{"logout", "Disconnected at 2024-01-15T00:05:00Z (logout)", "logout", true},
		{"synthetic", "Disconnected at 2024-01-15T00:05:00Z (shell_disappeared)", "shell_disappeared", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec, err := comms.ParseLine(tt.line)
			if err != nil {
				t.Fatalf("ParseLine error: %v", err)
			}
			if rec.Kind != comms.KindDisconnected {
				t.Fatalf("Kind = %v, want Disconnected", rec.Kind)
			}
			if rec.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q", rec.Reason, tt.reason)
			}
			if rec.LogoutSeen != tt.logoutSeen {
				t.Errorf("LogoutSeen = %v, want %v", rec.LogoutSeen, tt.logoutSeen)
			}
		})
	}
}

func TestParseLineFileTransfers(t *testing.T) {
	t.Parallel()

	rec, err := comms.ParseLine("Received file sg0042dz.x00 (10240 bytes)")
	if err != nil {
		t.Fatalf("ParseLine error: %v", err)
	}
	if rec.Kind != comms.KindFileReceived {
		t.Fatalf("Kind = %v, want FileReceived", rec.Kind)
	}
	if rec.File.Name != "sg0042dz.x00" || rec.File.Bytes != 10240 {
		t.Errorf("File = %+v, want {sg0042dz.x00 10240}", rec.File)
	}

	rec, err = comms.ParseLine("Transferred 512 bytes of cmdfile")
	if err != nil {
		t.Fatalf("ParseLine error: %v", err)
	}
	if rec.Kind != comms.KindFileTransferred {
		t.Fatalf("Kind = %v, want FileTransferred", rec.Kind)
	}
	if rec.File.Name != "cmdfile" || rec.File.Bytes != 512 {
		t.Errorf("File = %+v, want {cmdfile 512}", rec.File)
	}
}

func TestParseLineCounter(t *testing.T) {
	t.Parallel()

	line := "Counter: dive=42, gps=4730.1234N,12215.5678W, ts=2024-01-15T00:00:10Z, " +
		"depth=990.5, pitch=-12.3, temp=4.2, volts=10.1/24.0, id=236, reboot"

	rec, err := comms.ParseLine(line)
	if err != nil {
		t.Fatalf("ParseLine error: %v", err)
	}
	if rec.Kind != comms.KindCounterLine {
		t.Fatalf("Kind = %v, want CounterLine", rec.Kind)
	}

	cf := rec.Counter
	if cf.Dive != 42 {
		t.Errorf("Dive = %d, want 42", cf.Dive)
	}
	if cf.ID != 236 {
		t.Errorf("ID = %d, want 236", cf.ID)
	}
	if !cf.Fix.Valid {
		t.Fatal("Fix.Valid = false, want true")
	}
	if cf.Fix.Lat != 4730.1234 || cf.Fix.Lon != -12215.5678 {
		t.Errorf("Fix = %v, %v, want 4730.1234, -12215.5678", cf.Fix.Lat, cf.Fix.Lon)
	}
	wantTS := time.Date(2024, 1, 15, 0, 0, 10, 0, time.UTC)
	if !cf.Fix.Time.Equal(wantTS) {
		t.Errorf("Fix.Time = %v, want %v", cf.Fix.Time, wantTS)
	}
	if cf.Depth != 990.5 || cf.Pitch != -12.3 || cf.Temp != 4.2 {
		t.Errorf("drift inputs = %v/%v/%v, want 990.5/-12.3/4.2", cf.Depth, cf.Pitch, cf.Temp)
	}
	if cf.Volts10 != 10.1 || cf.Volts24 != 24.0 {
		t.Errorf("volts = %v/%v, want 10.1/24.0", cf.Volts10, cf.Volts24)
	}
	if !cf.Reboot {
		t.Error("Reboot = false, want true")
	}
}

func TestParseLineCounterIncompleteFix(t *testing.T) {
	t.Parallel()

	// gps without ts: the fix must be absent, not half-populated.
	rec, err := comms.ParseLine("Counter: dive=7, gps=4730.1234N,12215.5678W")
	if err != nil {
		t.Fatalf("ParseLine error: %v", err)
	}
	if rec.Counter.Dive != 7 {
		t.Errorf("Dive = %d, want 7", rec.Counter.Dive)
	}
	if rec.Counter.Fix.Valid {
		t.Error("Fix.Valid = true for fix without timestamp, want false")
	}
}

func TestParseLineCounterBadGPSReported(t *testing.T) {
	t.Parallel()

	// A malformed gps field is reported but the rest of the line survives.
	rec, err := comms.ParseLine("Counter: dive=7, gps=garbage")
	if err == nil {
		t.Fatal("ParseLine with bad gps: error = nil, want non-nil")
	}
	if rec.Kind != comms.KindCounterLine {
		t.Fatalf("Kind = %v, want CounterLine", rec.Kind)
	}
	if rec.Counter.Dive != 7 {
		t.Errorf("Dive = %d, want 7", rec.Counter.Dive)
	}
	if rec.Counter.Fix.Valid {
		t.Error("Fix.Valid = true after parse failure, want false")
	}
}

func TestParseLineIridium(t *testing.T) {
	t.Parallel()

	rec, err := comms.ParseLine("Iridium geolocation: 47.51,-122.25,4.5")
	if err != nil {
		t.Fatalf("ParseLine error: %v", err)
	}
	if rec.Kind != comms.KindIridium {
		t.Fatalf("Kind = %v, want IridiumGeolocation", rec.Kind)
	}
	if rec.Geo.Lat != 47.51 || rec.Geo.Lon != -122.25 || rec.Geo.CEP != 4.5 {
		t.Errorf("Geo = %+v, want {47.51 -122.25 4.5}", rec.Geo)
	}
}

func TestParseLineRecovery(t *testing.T) {
	t.Parallel()

	rec, err := comms.ParseLine("In Recovery: DEEP_PRESSURE")
	if err != nil {
		t.Fatalf("ParseLine error: %v", err)
	}
	if rec.Kind != comms.KindInRecovery {
		t.Fatalf("Kind = %v, want InRecovery", rec.Kind)
	}
	if rec.Reason != "DEEP_PRESSURE" {
		t.Errorf("Reason = %q, want DEEP_PRESSURE", rec.Reason)
	}
}

func TestParseLineMalformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		line string
	}{
		{"bad timestamp", "Connected at yesterday"},
		{"bad transfer size", "Transferred some bytes of cmdfile"},
		{"bad received", "Received file foo (xyz bytes)"},
		{"bad iridium", "Iridium geolocation: 47.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec, err := comms.ParseLine(tt.line)
			if err == nil {
				t.Fatal("error = nil, want non-nil for malformed line")
			}
			if rec.Kind != comms.KindIgnored {
				t.Errorf("Kind = %v, want Ignored", rec.Kind)
			}
		})
	}
}

func TestParseLineUnrecognized(t *testing.T) {
	t.Parallel()

	// Unrecognized structure is Ignored without an error: the log carries
	// plenty of free-form writer output between the structured lines.
	for _, line := range []string{"", "raw modem noise", "100.0% done", "sg0042: hello"} {
		rec, err := comms.ParseLine(line)
		if err != nil {
			t.Errorf("ParseLine(%q) error = %v, want nil", line, err)
		}
		if rec.Kind != comms.KindIgnored {
			t.Errorf("ParseLine(%q) Kind = %v, want Ignored", line, rec.Kind)
		}
	}
}

func TestParseLineVer(t *testing.T) {
	t.Parallel()

	rec, err := comms.ParseLine("Ver: 66.12 rev 2345")
	if err != nil {
		t.Fatalf("ParseLine error: %v", err)
	}
	if rec.Kind != comms.KindVer {
		t.Errorf("Kind = %v, want Ver", rec.Kind)
	}
}
