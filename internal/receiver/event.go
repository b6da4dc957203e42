package receiver

import "time"

type Kind string

const (
	KindPosition         Kind = "position"
	KindFixQuality       Kind = "fix_quality"
	KindLatLon           Kind = "lat_lon"
	KindActiveSatellites Kind = "active_satellites"
	KindSatellitesInView Kind = "satellites_in_view"
	KindVendorError      Kind = "vendor_error"
	KindTimeout          Kind = "timeout"
	KindUnknown          Kind = "unknown"
)

// Event announces one state change. Sentence holds the raw sentence text;
// it is empty for timeouts. Detail is set for unknown sentences that could
// still be described.
//
// Events are produced on the goroutine that feeds the State (the session
// read loop) and reach consumers through a Broadcaster subscription.
type Event struct {
	Kind     Kind      `json:"kind"`
	Sentence string    `json:"sentence,omitempty"`
	Talker   string    `json:"talker,omitempty"`
	At       time.Time `json:"at"`
	Detail   string    `json:"detail,omitempty"`
}
