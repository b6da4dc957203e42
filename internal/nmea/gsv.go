package nmea

// SatelliteAssembler reassembles the multi-part satellites-in-view (GSV)
// cycle. Parts accumulate in a private working buffer; Satellites only ever
// returns the last completed cycle.
//
//	1: message count  2: message index  3: satellites in view
//	4+4i .. 7+4i: PRN, elevation, azimuth, SNR of satellite i
type SatelliteAssembler struct {
	expected  int
	next      int
	firstSeen bool
	working   []SatelliteView
	complete  []SatelliteView
}

// Add feeds one GSV sentence and reports whether it completed a cycle.
func (a *SatelliteAssembler) Add(sentence string) bool {
	f := Fields(sentence)
	count, _ := parseInt(field(f, 1))
	index, _ := parseInt(field(f, 2))
	inView, _ := parseInt(field(f, 3))
	if index > count || index < 1 {
		return false
	}

	if index == 1 {
		a.working = a.working[:0]
		a.firstSeen = true
		a.expected = count
		a.next = 1
	} else if !a.firstSeen {
		return false
	}
	if index != a.next || count != a.expected {
		a.discard()
		return false
	}

	last := index == count
	n := 4
	if last {
		n = inView - 4*(index-1)
		if n < 0 {
			n = 0
		}
		if n > 4 {
			n = 4
		}
	}
	for i := 0; i < n; i++ {
		base := 4 + i*4
		if base >= len(f) {
			break
		}
		prn, _ := parseInt(field(f, base))
		elev, _ := parseInt(field(f, base+1))
		az, _ := parseInt(field(f, base+2))
		snr, _ := parseInt(field(f, base+3))
		a.working = append(a.working, SatelliteView{PRN: prn, Elevation: elev, Azimuth: az, SNR: snr})
	}
	a.next++

	if !last {
		return false
	}
	a.complete = append([]SatelliteView(nil), a.working...)
	a.discard()
	return true
}

// Satellites returns a copy of the last completed cycle.
func (a *SatelliteAssembler) Satellites() []SatelliteView {
	return append([]SatelliteView(nil), a.complete...)
}

// InProgress reports whether a cycle has started but not completed.
func (a *SatelliteAssembler) InProgress() bool {
	return a.firstSeen
}

func (a *SatelliteAssembler) discard() {
	a.working = a.working[:0]
	a.firstSeen = false
	a.expected = 0
	a.next = 0
}
