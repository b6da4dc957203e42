package nmea

import "time"

type Status string

const (
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
)

type FixQuality string

const (
	FixInvalid FixQuality = "invalid"
	FixGPS     FixQuality = "gps"
	FixDGPS    FixQuality = "dgps"
)

type FixMode string

const (
	FixModeNone FixMode = "none"
	FixMode2D   FixMode = "2d"
	FixMode3D   FixMode = "3d"
)

type SelectionMode string

const (
	SelectionManual SelectionMode = "manual"
	SelectionAuto   SelectionMode = "auto"
)

// Coordinate is a signed decimal-degree position. A coordinate that could not
// be decoded is the zero value with Valid=false.
type Coordinate struct {
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	Valid bool    `json:"valid"`
}

// PositionFix is decoded from RMC.
type PositionFix struct {
	Time              time.Time  `json:"time"`
	Status            Status     `json:"status"`
	Position          Coordinate `json:"position"`
	SpeedKnots        float64    `json:"speed_knots"`
	CourseDeg         float64    `json:"course_deg"`
	MagneticVariation float64    `json:"magnetic_variation"`
}

// FixQualityReport is decoded from GGA.
type FixQualityReport struct {
	Time          time.Time  `json:"time"`
	Position      Coordinate `json:"position"`
	Quality       FixQuality `json:"quality"`
	Satellites    int        `json:"satellites"`
	HDOP          float64    `json:"hdop"`
	Altitude      float64    `json:"altitude"`
	AltitudeUnits string     `json:"altitude_units,omitempty"`
	GeoidHeight   float64    `json:"geoid_height"`
	GeoidUnits    string     `json:"geoid_units,omitempty"`
	// DGPSAge is the number of seconds since the last DGPS update.
	DGPSAge     float64 `json:"dgps_age"`
	DGPSStation string  `json:"dgps_station,omitempty"`
}

func (r FixQualityReport) HasFix() bool {
	return r.Quality != "" && r.Quality != FixInvalid
}

// GeographicPosition is decoded from GLL. TimeOfSolution is measured from
// UTC midnight.
type GeographicPosition struct {
	Position       *Coordinate    `json:"position,omitempty"`
	TimeOfSolution *time.Duration `json:"time_of_solution,omitempty"`
	Valid          bool           `json:"valid"`
}

// ActiveSatelliteSet is decoded from GSA and replaced wholesale on each
// sentence.
type ActiveSatelliteSet struct {
	Mode    SelectionMode `json:"mode,omitempty"`
	FixMode FixMode       `json:"fix_mode"`
	PRNs    []int         `json:"prns"`
	PDOP    float64       `json:"pdop"`
	HDOP    float64       `json:"hdop"`
	VDOP    float64       `json:"vdop"`
}

type SatelliteView struct {
	PRN       int `json:"prn"`
	Elevation int `json:"elevation"`
	Azimuth   int `json:"azimuth"`
	SNR       int `json:"snr"`
}

// PositionErrorEstimate is decoded from the Garmin PGRME sentence.
type PositionErrorEstimate struct {
	HorizontalM float64 `json:"horizontal_m"`
	VerticalM   float64 `json:"vertical_m"`
	SphericalM  float64 `json:"spherical_m"`
}
