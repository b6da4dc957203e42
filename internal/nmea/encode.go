package nmea

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// EncodeGGA renders r as a checksummed $GPGGA sentence without a line
// terminator. Casters serving virtual reference stations expect one of these
// from the rover.
func EncodeGGA(r FixQualityReport) string {
	var b strings.Builder
	b.WriteString("GPGGA,")
	if !r.Time.IsZero() {
		t := r.Time.UTC()
		fmt.Fprintf(&b, "%02d%02d%02d.%02d", t.Hour(), t.Minute(), t.Second(), t.Nanosecond()/1e7)
	}
	b.WriteByte(',')
	if r.Position.Valid {
		b.WriteString(formatDegrees(r.Position.Lat, 2, "N", "S"))
		b.WriteByte(',')
		b.WriteString(formatDegrees(r.Position.Lon, 3, "E", "W"))
	} else {
		b.WriteString(",,,")
	}
	b.WriteByte(',')

	q := 0
	switch r.Quality {
	case FixGPS:
		q = 1
	case FixDGPS:
		q = 2
	}
	fmt.Fprintf(&b, "%d,%02d,%s,%s,%s,%s,%s,", q, r.Satellites,
		formatFloat(r.HDOP), formatFloat(r.Altitude), r.AltitudeUnits,
		formatFloat(r.GeoidHeight), r.GeoidUnits)
	if r.DGPSAge > 0 {
		b.WriteString(formatFloat(r.DGPSAge))
	}
	b.WriteByte(',')
	b.WriteString(r.DGPSStation)

	payload := b.String()
	return "$" + payload + "*" + Checksum(payload)
}

// Minutes carry at least minMinuteDigits decimals and at most
// maxMinuteDigits, with trailing zeros past the minimum trimmed.
const (
	minMinuteDigits = 4
	maxMinuteDigits = 6
)

// formatDegrees renders v as d..dmm.mmmm[mm],H with degWidth degree digits.
func formatDegrees(v float64, degWidth int, pos, neg string) string {
	hemi := pos
	if v < 0 {
		hemi = neg
		v = -v
	}
	deg := math.Floor(v)
	mins := math.Round((v-deg)*60*1e6) / 1e6
	if mins >= 60 {
		deg++
		mins -= 60
	}
	m := fmt.Sprintf("%0*.*f", maxMinuteDigits+3, maxMinuteDigits, mins)
	for n := maxMinuteDigits; n > minMinuteDigits && strings.HasSuffix(m, "0"); n-- {
		m = m[:len(m)-1]
	}
	return fmt.Sprintf("%0*d%s,%s", degWidth, int(deg), m, hemi)
}

// formatFloat uses the shortest form that parses back to v.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
