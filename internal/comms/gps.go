package comms

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// -------------------------------------------------------------------------
// GPS Fix — historical ddmm.mmmm representation
// -------------------------------------------------------------------------

// Sentinel errors for GPS parsing.
var (
	// ErrBadCoordinate indicates a coordinate token could not be parsed.
	ErrBadCoordinate = errors.New("malformed ddmm.mmmm coordinate")

	// ErrBadHemisphere indicates an unrecognized hemisphere suffix.
	ErrBadHemisphere = errors.New("hemisphere suffix must be N, S, E or W")
)

// GPSFix is one glider surface position in the historical ddmm.mmmm form:
// degrees*100 + decimal minutes, signed (negative = south/west).
//
// A fix is only Valid when latitude, longitude and the UTC instant are all
// present. A fix missing any of the three is treated as absent, never as
// zero — callers must check Valid before using the coordinates.
type GPSFix struct {
	// Lat is the latitude as ddmm.mmmm (e.g. 4730.1234 for 47°30.1234'N).
	Lat float64

	// Lon is the longitude as dddmm.mmmm (e.g. -12215.5678 for 122°15.5678'W).
	Lon float64

	// Time is the UTC instant of the fix.
	Time time.Time

	// Valid is true only when Lat, Lon and Time were all present on input.
	Valid bool
}

// LatDegrees returns the latitude in decimal degrees (dd.dddd).
func (f GPSFix) LatDegrees() float64 { return ddmmToDegrees(f.Lat) }

// LonDegrees returns the longitude in decimal degrees (dd.dddd).
func (f GPSFix) LonDegrees() float64 { return ddmmToDegrees(f.Lon) }

// ddmmToDegrees converts a signed ddmm.mmmm value to decimal degrees.
func ddmmToDegrees(v float64) float64 {
	sign := 1.0
	if v < 0 {
		sign = -1.0
		v = -v
	}
	deg := math.Trunc(v / 100)
	minutes := v - deg*100
	return sign * (deg + minutes/60)
}

// FixFromDegrees builds a valid fix from decimal-degree coordinates.
func FixFromDegrees(lat, lon float64, ts time.Time) GPSFix {
	return GPSFix{
		Lat:   degreesToDDMM(lat),
		Lon:   degreesToDDMM(lon),
		Time:  ts,
		Valid: true,
	}
}

// degreesToDDMM converts decimal degrees to the signed ddmm.mmmm form.
func degreesToDDMM(v float64) float64 {
	sign := 1.0
	if v < 0 {
		sign = -1.0
		v = -v
	}
	deg := math.Trunc(v)
	return sign * (deg*100 + (v-deg)*60)
}

// -------------------------------------------------------------------------
// Coordinate parsing
// -------------------------------------------------------------------------

// ParseDDMM parses one coordinate token of the form "4730.1234N" or
// "12215.5678W": an unsigned ddmm.mmmm value with a hemisphere suffix.
// S and W yield negative values.
func ParseDDMM(tok string) (float64, error) {
	tok = strings.TrimSpace(tok)
	if len(tok) < 2 {
		return 0, fmt.Errorf("coordinate %q: %w", tok, ErrBadCoordinate)
	}

	hemi := tok[len(tok)-1]
	val, err := strconv.ParseFloat(tok[:len(tok)-1], 64)
	if err != nil {
		return 0, fmt.Errorf("coordinate %q: %w", tok, ErrBadCoordinate)
	}

	switch hemi {
	case 'N', 'E':
		return val, nil
	case 'S', 'W':
		return -val, nil
	default:
		return 0, fmt.Errorf("coordinate %q: %w", tok, ErrBadHemisphere)
	}
}

// ParseDDMMPair parses a "lat,lon" pair of hemisphere-suffixed ddmm.mmmm
// tokens, e.g. "4730.1234N,12215.5678W".
func ParseDDMMPair(s string) (lat, lon float64, err error) {
	latTok, lonTok, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, fmt.Errorf("pair %q: %w", s, ErrBadCoordinate)
	}
	lat, err = ParseDDMM(latTok)
	if err != nil {
		return 0, 0, err
	}
	lon, err = ParseDDMM(lonTok)
	if err != nil {
		return 0, 0, err
	}
	return lat, lon, nil
}

// -------------------------------------------------------------------------
// Rendering — per-user coordinate formats
// -------------------------------------------------------------------------

// LatLonFormat selects the textual coordinate encoding for a user.
type LatLonFormat string

// The three permitted coordinate encodings.
const (
	// FormatDDMM renders degrees*100 + decimal minutes, the log's native form.
	FormatDDMM LatLonFormat = "ddmm"

	// FormatDDDD renders decimal degrees.
	FormatDDDD LatLonFormat = "dddd"

	// FormatDDMMSS renders degrees, minutes and decimal seconds.
	FormatDDMMSS LatLonFormat = "ddmmss"
)

// ValidLatLonFormat reports whether s is one of the permitted tokens.
func ValidLatLonFormat(s string) bool {
	switch LatLonFormat(s) {
	case FormatDDMM, FormatDDDD, FormatDDMMSS:
		return true
	default:
		return false
	}
}

// Render formats the fix's coordinates in the requested encoding.
// Returns "no fix" when the fix is not valid.
func (f GPSFix) Render(format LatLonFormat) string {
	if !f.Valid {
		return "no fix"
	}
	switch format {
	case FormatDDDD:
		return fmt.Sprintf("%.4f %.4f", f.LatDegrees(), f.LonDegrees())
	case FormatDDMMSS:
		return renderDDMMSS(f.Lat) + " " + renderDDMMSS(f.Lon)
	default: // FormatDDMM and anything unrecognized falls back to native.
		return fmt.Sprintf("%.4f %.4f", f.Lat, f.Lon)
	}
}

// renderDDMMSS formats one signed ddmm.mmmm coordinate as "dd mm ss.ss".
func renderDDMMSS(v float64) string {
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	deg := math.Trunc(v / 100)
	minutes := v - deg*100
	wholeMin := math.Trunc(minutes)
	seconds := (minutes - wholeMin) * 60
	return fmt.Sprintf("%s%.0f %02.0f %05.2f", sign, deg, wholeMin, seconds)
}
