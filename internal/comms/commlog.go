package comms

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// -------------------------------------------------------------------------
// CommLog — ordered session history plus the open session
// -------------------------------------------------------------------------

// ErrInsufficientFixes indicates drift prediction needs at least two valid
// surfacing fixes.
var ErrInsufficientFixes = errors.New("drift prediction requires two valid fixes")

// earthRadiusKm is the mean Earth radius used for great-circle math.
const earthRadiusKm = 6371.0

// CommLog is the append-only ordered sequence of completed sessions for one
// mission. Sessions are strictly time-ordered by connect instant; the
// currently open session is owned by the Reducer and is not part of the
// history until it closes.
type CommLog struct {
	// GliderID is the glider serial number once known.
	GliderID int

	sessions []Session
}

// NewCommLog creates an empty comm log. Zero gliderID means unknown.
func NewCommLog(gliderID int) *CommLog {
	return &CommLog{GliderID: gliderID}
}

// Append adds a closed session to the history.
func (c *CommLog) Append(s Session) {
	c.sessions = append(c.sessions, s)
}

// Len returns the number of completed sessions.
func (c *CommLog) Len() int { return len(c.sessions) }

// Last returns the most recently completed session.
func (c *CommLog) Last() (Session, bool) {
	if len(c.sessions) == 0 {
		return Session{}, false
	}
	return c.sessions[len(c.sessions)-1], true
}

// Sessions returns a copy of the completed session history, oldest first.
func (c *CommLog) Sessions() []Session {
	return append([]Session(nil), c.sessions...)
}

// MonotoneDives reports whether dive numbers never decrease across the
// completed sessions. Zero (unknown) dive numbers are skipped.
func (c *CommLog) MonotoneDives() bool {
	prev := 0
	for _, s := range c.sessions {
		if s.Dive == 0 {
			continue
		}
		if prev != 0 && s.Dive < prev {
			return false
		}
		prev = s.Dive
	}
	return true
}

// LastSurfacing returns the most recent valid GPS fix in the history,
// searching newest to oldest.
func (c *CommLog) LastSurfacing() (GPSFix, bool) {
	for i := len(c.sessions) - 1; i >= 0; i-- {
		if c.sessions[i].Fix.Valid {
			return c.sessions[i].Fix, true
		}
	}
	return GPSFix{}, false
}

// Rebooted reports whether the most recent session observed a glider reboot.
func (c *CommLog) Rebooted() bool {
	last, ok := c.Last()
	return ok && last.Rebooted
}

// ResolveGliderID returns the glider id from the history when the comm log
// itself has not learned it yet.
func (c *CommLog) ResolveGliderID() int {
	if c.GliderID != 0 {
		return c.GliderID
	}
	for i := len(c.sessions) - 1; i >= 0; i-- {
		if c.sessions[i].GliderID != 0 {
			return c.sessions[i].GliderID
		}
	}
	return 0
}

// FormatLastFix renders the last surfacing position and any recovery state
// in the requested coordinate encoding. This is the body text used for GPS
// and recovery notifications.
func (c *CommLog) FormatLastFix(format LatLonFormat) string {
	fix, ok := c.LastSurfacing()
	if !ok {
		return "no GPS fix on record"
	}

	text := fmt.Sprintf("%s at %s",
		fix.Render(format),
		fix.Time.UTC().Format(time.RFC3339),
	)

	if last, lok := c.Last(); lok {
		if last.RecovCode != "" {
			text += " recovery " + last.RecovCode
		}
		if last.EscapeReason != "" {
			text += " escape " + last.EscapeReason
		}
	}
	return text
}

// -------------------------------------------------------------------------
// Drift Prediction — dead reckoning between surfacings
// -------------------------------------------------------------------------

// DriftEstimate is a surface drift prediction: the speed and bearing made
// good between the last two surfacings, extrapolated from the latest fix to
// the given instant.
type DriftEstimate struct {
	// SpeedKts is the speed made good in knots.
	SpeedKts float64

	// BearingDeg is the true bearing of travel in degrees.
	BearingDeg float64

	// Lat and Lon are the projected position in decimal degrees.
	Lat float64
	Lon float64

	// Since is the elapsed time from the latest fix to the projection.
	Since time.Duration
}

// PredictDrift dead-reckons the glider's surface position at now from the
// last two valid surfacing fixes. Returns ErrInsufficientFixes when fewer
// than two valid fixes exist or they are not separated in time.
func (c *CommLog) PredictDrift(now time.Time) (DriftEstimate, error) {
	var newest, older GPSFix
	found := 0
	for i := len(c.sessions) - 1; i >= 0 && found < 2; i-- {
		if !c.sessions[i].Fix.Valid {
			continue
		}
		if found == 0 {
			newest = c.sessions[i].Fix
		} else {
			older = c.sessions[i].Fix
		}
		found++
	}
	if found < 2 {
		return DriftEstimate{}, ErrInsufficientFixes
	}

	dt := newest.Time.Sub(older.Time)
	if dt <= 0 {
		return DriftEstimate{}, ErrInsufficientFixes
	}

	lat1, lon1 := older.LatDegrees(), older.LonDegrees()
	lat2, lon2 := newest.LatDegrees(), newest.LonDegrees()

	distKm := haversineKm(lat1, lon1, lat2, lon2)
	bearing := initialBearingDeg(lat1, lon1, lat2, lon2)
	speedKmh := distKm / dt.Hours()

	since := now.Sub(newest.Time)
	if since < 0 {
		since = 0
	}

	projLat, projLon := projectDeg(lat2, lon2, bearing, speedKmh*since.Hours())

	return DriftEstimate{
		SpeedKts:   speedKmh / 1.852,
		BearingDeg: bearing,
		Lat:        projLat,
		Lon:        projLon,
		Since:      since,
	}, nil
}

// haversineKm returns the great-circle distance between two points in
// decimal degrees.
func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLam := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLam/2)*math.Sin(dLam/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

// initialBearingDeg returns the initial great-circle bearing from point 1
// to point 2, normalized to [0, 360).
func initialBearingDeg(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dLam := (lon2 - lon1) * math.Pi / 180

	y := math.Sin(dLam) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLam)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// projectDeg moves from (lat, lon) along bearing for distKm and returns the
// destination in decimal degrees.
func projectDeg(lat, lon, bearingDeg, distKm float64) (float64, float64) {
	phi := lat * math.Pi / 180
	lam := lon * math.Pi / 180
	theta := bearingDeg * math.Pi / 180
	delta := distKm / earthRadiusKm

	phi2 := math.Asin(math.Sin(phi)*math.Cos(delta) +
		math.Cos(phi)*math.Sin(delta)*math.Cos(theta))
	lam2 := lam + math.Atan2(
		math.Sin(theta)*math.Sin(delta)*math.Cos(phi),
		math.Cos(delta)-math.Sin(phi)*math.Sin(phi2),
	)

	return phi2 * 180 / math.Pi, lam2 * 180 / math.Pi
}
