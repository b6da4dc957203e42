package receiver

import (
	"sort"
	"sync"
	"time"

	"gpsbridge/internal/nmea"
)

// Snapshot is an immutable copy of the receiver state.
type Snapshot struct {
	Position         nmea.PositionFix           `json:"position"`
	FixQuality       nmea.FixQualityReport      `json:"fix_quality"`
	LatLon           nmea.GeographicPosition    `json:"lat_lon"`
	ActiveSatellites nmea.ActiveSatelliteSet    `json:"active_satellites"`
	SatellitesInView []nmea.SatelliteView       `json:"satellites_in_view"`
	ErrorEstimate    nmea.PositionErrorEstimate `json:"error_estimate"`

	HasFix bool `json:"has_fix"`
	// LastSentence is nil until a sentence has been accepted.
	LastSentence *time.Time      `json:"last_sentence,omitempty"`
	Counts       map[Kind]uint64 `json:"counts"`
}

// SatelliteByPRN finds a satellite in the last completed GSV cycles. When
// several talkers report the same PRN the first one wins.
func (s Snapshot) SatelliteByPRN(prn int) (nmea.SatelliteView, bool) {
	for _, sv := range s.SatellitesInView {
		if sv.PRN == prn {
			return sv, true
		}
	}
	return nmea.SatelliteView{}, false
}

// State holds the latest decoded value per sentence kind. Apply and
// Timeout are called from a single decode goroutine; everything else may be
// called from any goroutine.
type State struct {
	mu   sync.RWMutex
	cur  Snapshot
	sats map[string]*nmea.SatelliteAssembler
	// talker -> last completed GSV cycle
	views map[string][]nmea.SatelliteView
}

func NewState() *State {
	return &State{
		cur:   initialSnapshot(),
		sats:  make(map[string]*nmea.SatelliteAssembler),
		views: make(map[string][]nmea.SatelliteView),
	}
}

func initialSnapshot() Snapshot {
	return Snapshot{
		Position:         nmea.PositionFix{Status: nmea.StatusWarning},
		FixQuality:       nmea.FixQualityReport{Quality: nmea.FixInvalid},
		ActiveSatellites: nmea.ActiveSatelliteSet{FixMode: nmea.FixModeNone, PRNs: []int{}},
		SatellitesInView: []nmea.SatelliteView{},
		Counts:           map[Kind]uint64{},
	}
}

// Classify maps a sentence tag to the event kind it produces.
func Classify(tag nmea.Tag) Kind {
	if tag.Talker == "" {
		if tag.Type == "PGRME" {
			return KindVendorError
		}
		return KindUnknown
	}
	switch tag.Type {
	case "RMC":
		return KindPosition
	case "GGA":
		return KindFixQuality
	case "GLL":
		return KindLatLon
	case "GSA":
		return KindActiveSatellites
	case "GSV":
		return KindSatellitesInView
	default:
		return KindUnknown
	}
}

// Apply decodes one accepted sentence into the state and returns the event
// to emit. It returns false only for an intermediate satellites-in-view
// part, which must not be announced.
func (s *State) Apply(now time.Time, sentence string) (Event, bool) {
	tag := nmea.ParseTag(sentence)
	kind := Classify(tag)
	ev := Event{Kind: kind, Sentence: sentence, Talker: tag.Talker, At: now}

	// Decode outside the lock; only the assembler map is touched, and that
	// belongs to the decode goroutine.
	var (
		pos  nmea.PositionFix
		gga  nmea.FixQualityReport
		gll  nmea.GeographicPosition
		gsa  nmea.ActiveSatelliteSet
		rme  nmea.PositionErrorEstimate
		view []nmea.SatelliteView
	)
	switch kind {
	case KindPosition:
		pos = nmea.DecodeRMC(sentence)
	case KindFixQuality:
		gga = nmea.DecodeGGA(sentence, now)
	case KindLatLon:
		gll = nmea.DecodeGLL(sentence)
	case KindActiveSatellites:
		gsa = nmea.DecodeGSA(sentence)
	case KindVendorError:
		rme = nmea.DecodePGRME(sentence)
	case KindSatellitesInView:
		a := s.sats[tag.Talker]
		if a == nil {
			a = &nmea.SatelliteAssembler{}
			s.sats[tag.Talker] = a
		}
		if !a.Add(sentence) {
			s.touch(now)
			return Event{}, false
		}
		view = a.Satellites()
	case KindUnknown:
		if d, ok := nmea.Describe(sentence); ok {
			ev.Detail = d
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur.LastSentence = &now
	s.cur.Counts[kind]++
	switch kind {
	case KindPosition:
		s.cur.Position = pos
	case KindFixQuality:
		s.cur.FixQuality = gga
		s.cur.HasFix = gga.HasFix()
	case KindLatLon:
		s.cur.LatLon = gll
	case KindActiveSatellites:
		s.cur.ActiveSatellites = gsa
	case KindVendorError:
		s.cur.ErrorEstimate = rme
	case KindSatellitesInView:
		s.views[tag.Talker] = view
		s.cur.SatellitesInView = mergeViews(s.views)
	}
	return ev, true
}

// Invalidate forces the fix quality to invalid. Other GGA fields keep
// their last values.
func (s *State) Invalidate() {
	s.mu.Lock()
	s.invalidateLocked()
	s.mu.Unlock()
}

// Timeout invalidates the fix and returns the timeout event.
func (s *State) Timeout(now time.Time) Event {
	s.mu.Lock()
	s.invalidateLocked()
	s.cur.Counts[KindTimeout]++
	s.mu.Unlock()
	return Event{Kind: KindTimeout, At: now}
}

func (s *State) invalidateLocked() {
	s.cur.FixQuality.Quality = nmea.FixInvalid
	s.cur.HasFix = false
}

func (s *State) HasFix() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.HasFix
}

// FixQuality returns the current GGA-derived report.
func (s *State) FixQuality() nmea.FixQualityReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur.FixQuality
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.cur
	out.ActiveSatellites.PRNs = append([]int{}, s.cur.ActiveSatellites.PRNs...)
	out.SatellitesInView = append([]nmea.SatelliteView{}, s.cur.SatellitesInView...)
	if s.cur.LatLon.Position != nil {
		p := *s.cur.LatLon.Position
		out.LatLon.Position = &p
	}
	if s.cur.LatLon.TimeOfSolution != nil {
		d := *s.cur.LatLon.TimeOfSolution
		out.LatLon.TimeOfSolution = &d
	}
	out.Counts = cloneCounts(s.cur.Counts)
	return out
}

func (s *State) touch(now time.Time) {
	s.mu.Lock()
	s.cur.LastSentence = &now
	s.mu.Unlock()
}

func cloneCounts(in map[Kind]uint64) map[Kind]uint64 {
	out := make(map[Kind]uint64, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}

func mergeViews(views map[string][]nmea.SatelliteView) []nmea.SatelliteView {
	talkers := make([]string, 0, len(views))
	for t := range views {
		talkers = append(talkers, t)
	}
	sort.Strings(talkers)
	out := []nmea.SatelliteView{}
	for _, t := range talkers {
		out = append(out, views[t]...)
	}
	return out
}
