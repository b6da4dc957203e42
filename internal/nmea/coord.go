package nmea

import (
	"strconv"
	"strings"
)

// DecimalDegrees converts an NMEA degrees+minutes token (ddmm.mmmm or
// dddmm.mmmm) and its hemisphere letter to signed decimal degrees.
// The minutes begin two characters before the decimal point.
//
// An empty or undecodable token yields 0. Callers must not read 0 as the
// equator or prime meridian; use ParseCoordinate when validity matters.
func DecimalDegrees(value, hemisphere string) float64 {
	v, _ := parseDegrees(value, hemisphere)
	return v
}

func parseDegrees(value, hemisphere string) (float64, bool) {
	value = strings.TrimSpace(value)
	hemisphere = strings.ToUpper(strings.TrimSpace(hemisphere))
	if value == "" {
		return 0, false
	}
	switch hemisphere {
	case "N", "S", "E", "W":
	default:
		return 0, false
	}

	dot := strings.IndexByte(value, '.')
	if dot < 3 {
		return 0, false
	}
	deg, err := strconv.ParseUint(value[:dot-2], 10, 16)
	if err != nil {
		return 0, false
	}
	mins, err := strconv.ParseFloat(value[dot-2:], 64)
	if err != nil || mins < 0 || mins >= 60 {
		return 0, false
	}

	dec := float64(deg) + mins/60.0
	if hemisphere == "S" || hemisphere == "W" {
		dec = -dec
	}
	return dec, true
}

// ParseCoordinate decodes a lat/lon pair. If either half is malformed or out
// of range the result is the zero Coordinate.
func ParseCoordinate(lat, latHemi, lon, lonHemi string) Coordinate {
	la, ok := parseDegrees(lat, latHemi)
	if !ok || la < -90 || la > 90 {
		return Coordinate{}
	}
	switch strings.ToUpper(strings.TrimSpace(latHemi)) {
	case "N", "S":
	default:
		return Coordinate{}
	}
	lo, ok := parseDegrees(lon, lonHemi)
	if !ok || lo < -180 || lo > 180 {
		return Coordinate{}
	}
	switch strings.ToUpper(strings.TrimSpace(lonHemi)) {
	case "E", "W":
	default:
		return Coordinate{}
	}
	return Coordinate{Lat: la, Lon: lo, Valid: true}
}

func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseInt(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

func field(f []string, i int) string {
	if i < 0 || i >= len(f) {
		return ""
	}
	return strings.TrimSpace(f[i])
}
