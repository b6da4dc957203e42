package nmea

import (
	"time"
)

var rmcLayouts = []string{
	"020106150405", // ddmmyy + hhmmss, fractional seconds accepted by time.Parse
	"020106",
}

// DecodeRMC decodes the Recommended Minimum sentence.
//
//	1: time (hhmmss.sss)   2: status (A=ok, V=warning)
//	3-6: lat, N/S, lon, E/W
//	7: speed (knots)       8: course (deg)
//	9: date (ddmmyy)       10-11: magnetic variation, E/W
func DecodeRMC(sentence string) PositionFix {
	f := Fields(sentence)
	out := PositionFix{Status: StatusWarning}
	if field(f, 2) == "A" {
		out.Status = StatusOK
	}
	out.Time = parseDateTime(field(f, 9), field(f, 1))
	out.Position = ParseCoordinate(field(f, 3), field(f, 4), field(f, 5), field(f, 6))
	out.SpeedKnots, _ = parseFloat(field(f, 7))
	out.CourseDeg, _ = parseFloat(field(f, 8))
	if v, ok := parseFloat(field(f, 10)); ok {
		if field(f, 11) == "W" {
			v = -v
		}
		out.MagneticVariation = v
	}
	return out
}

func parseDateTime(date, tod string) time.Time {
	if date == "" {
		return time.Time{}
	}
	for _, layout := range rmcLayouts {
		if t, err := time.Parse(layout, date+tod); err == nil {
			return t
		}
	}
	return time.Time{}
}

// parseTimeOfDay parses hhmmss[.sss] as an offset from UTC midnight.
func parseTimeOfDay(tod string) (time.Duration, bool) {
	if tod == "" {
		return 0, false
	}
	t, err := time.Parse("150405", tod)
	if err != nil {
		return 0, false
	}
	return t.Sub(time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)), true
}

// DecodeGGA decodes the fix data sentence. GGA carries only a time of day,
// so the date is taken from now.
//
//	1: time  2-5: lat, N/S, lon, E/W  6: quality  7: satellites  8: HDOP
//	9-10: altitude, units  11-12: geoid height, units
//	13: seconds since DGPS update  14: DGPS station
func DecodeGGA(sentence string, now time.Time) FixQualityReport {
	f := Fields(sentence)
	out := FixQualityReport{Quality: FixInvalid}
	if tod, ok := parseTimeOfDay(field(f, 1)); ok {
		y, m, d := now.UTC().Date()
		out.Time = time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Add(tod)
	}
	out.Position = ParseCoordinate(field(f, 2), field(f, 3), field(f, 4), field(f, 5))
	if q, ok := parseInt(field(f, 6)); ok {
		switch q {
		case 1:
			out.Quality = FixGPS
		case 2:
			out.Quality = FixDGPS
		}
	}
	out.Satellites, _ = parseInt(field(f, 7))
	out.HDOP, _ = parseFloat(field(f, 8))
	out.Altitude, _ = parseFloat(field(f, 9))
	out.AltitudeUnits = field(f, 10)
	out.GeoidHeight, _ = parseFloat(field(f, 11))
	out.GeoidUnits = field(f, 12)
	out.DGPSAge, _ = parseFloat(field(f, 13))
	out.DGPSStation = field(f, 14)
	return out
}

// DecodeGLL decodes the geographic position sentence.
//
//	1-4: lat, N/S, lon, E/W  5: time  6: status (A=valid)
func DecodeGLL(sentence string) GeographicPosition {
	f := Fields(sentence)
	var out GeographicPosition
	if c := ParseCoordinate(field(f, 1), field(f, 2), field(f, 3), field(f, 4)); c.Valid {
		out.Position = &c
	}
	if tod, ok := parseTimeOfDay(field(f, 5)); ok {
		out.TimeOfSolution = &tod
	}
	out.Valid = field(f, 6) == "A"
	return out
}

// DecodeGSA decodes the DOP and active satellites sentence.
//
//	1: mode (M/A)  2: fix (1=none, 2=2D, 3=3D)  3-14: PRN slots
//	15: PDOP  16: HDOP  17: VDOP
func DecodeGSA(sentence string) ActiveSatelliteSet {
	f := Fields(sentence)
	out := ActiveSatelliteSet{FixMode: FixModeNone, PRNs: []int{}}
	switch field(f, 1) {
	case "M":
		out.Mode = SelectionManual
	case "A":
		out.Mode = SelectionAuto
	}
	switch field(f, 2) {
	case "2":
		out.FixMode = FixMode2D
	case "3":
		out.FixMode = FixMode3D
	}
	for i := 3; i <= 14; i++ {
		if prn, ok := parseInt(field(f, i)); ok {
			out.PRNs = append(out.PRNs, prn)
		}
	}
	out.PDOP, _ = parseFloat(field(f, 15))
	out.HDOP, _ = parseFloat(field(f, 16))
	out.VDOP, _ = parseFloat(field(f, 17))
	return out
}

// DecodePGRME decodes Garmin's estimated position error sentence.
//
//	1: horizontal (M)  3: vertical (M)  5: spherical (M)
func DecodePGRME(sentence string) PositionErrorEstimate {
	f := Fields(sentence)
	var out PositionErrorEstimate
	out.HorizontalM, _ = parseFloat(field(f, 1))
	out.VerticalM, _ = parseFloat(field(f, 3))
	out.SphericalM, _ = parseFloat(field(f, 5))
	return out
}
