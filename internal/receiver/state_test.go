package receiver

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpsbridge/internal/nmea"
)

func nmeaLine(payload string) string {
	return "$" + payload + "*" + nmea.Checksum(payload)
}

var t0 = time.Date(2024, 5, 6, 12, 0, 0, 0, time.UTC)

func TestState_Defaults(t *testing.T) {
	s := NewState()
	snap := s.Snapshot()
	assert.False(t, snap.HasFix)
	assert.False(t, s.HasFix())
	assert.Equal(t, nmea.FixInvalid, snap.FixQuality.Quality)
	assert.Equal(t, nmea.StatusWarning, snap.Position.Status)
	assert.Equal(t, nmea.FixModeNone, snap.ActiveSatellites.FixMode)
	assert.NotNil(t, snap.SatellitesInView)
	assert.Nil(t, snap.LastSentence)

	b, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "last_sentence")
}

func TestState_ApplyEachKind(t *testing.T) {
	cases := []struct {
		payload string
		kind    Kind
	}{
		{"GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W", KindPosition},
		{"GNGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,", KindFixQuality},
		{"GPGLL,4916.45,N,12311.12,W,225444,A", KindLatLon},
		{"GPGSA,A,3,04,05,,09,12,,,24,,,,,2.5,1.3,2.1", KindActiveSatellites},
		{"PGRME,15.0,M,45.0,M,25.0,M", KindVendorError},
		{"GPGSV,1,1,01,05,10,020,30", KindSatellitesInView},
		{"GPZZZ,1,2,3", KindUnknown},
	}
	s := NewState()
	for _, tc := range cases {
		line := nmeaLine(tc.payload)
		ev, ok := s.Apply(t0, line)
		require.True(t, ok, tc.payload)
		assert.Equal(t, tc.kind, ev.Kind)
		assert.Equal(t, line, ev.Sentence)
		assert.Equal(t, t0, ev.At)
	}

	snap := s.Snapshot()
	assert.True(t, snap.HasFix)
	assert.Equal(t, nmea.StatusOK, snap.Position.Status)
	assert.Equal(t, 8, snap.FixQuality.Satellites)
	require.NotNil(t, snap.LatLon.Position)
	assert.Equal(t, []int{4, 5, 9, 12, 24}, snap.ActiveSatellites.PRNs)
	assert.Equal(t, 15.0, snap.ErrorEstimate.HorizontalM)
	assert.Len(t, snap.SatellitesInView, 1)
	require.NotNil(t, snap.LastSentence)
	assert.Equal(t, t0, *snap.LastSentence)
	assert.Equal(t, uint64(1), snap.Counts[KindUnknown])
}

func TestState_UnknownDoesNotMutate(t *testing.T) {
	s := NewState()
	before := s.Snapshot()
	ev, ok := s.Apply(t0, nmeaLine("GPVTG,054.7,T,034.4,M,005.5,N,010.2,K"))
	require.True(t, ok)
	assert.Equal(t, KindUnknown, ev.Kind)
	assert.Contains(t, ev.Detail, "VTG")

	after := s.Snapshot()
	assert.Equal(t, before.Position, after.Position)
	assert.Equal(t, before.FixQuality, after.FixQuality)
}

func TestState_SatellitesOnlyOnCompletion(t *testing.T) {
	s := NewState()
	_, ok := s.Apply(t0, nmeaLine("GPGSV,2,1,05,01,40,083,46,02,17,308,41,12,07,344,39,14,22,228,45"))
	assert.False(t, ok)
	assert.Empty(t, s.Snapshot().SatellitesInView)

	ev, ok := s.Apply(t0, nmeaLine("GPGSV,2,2,05,24,61,010,48"))
	require.True(t, ok)
	assert.Equal(t, KindSatellitesInView, ev.Kind)
	assert.Len(t, s.Snapshot().SatellitesInView, 5)

	// A second constellation is kept alongside the first.
	_, ok = s.Apply(t0, nmeaLine("GLGSV,1,1,02,65,10,020,30,66,11,021,31"))
	require.True(t, ok)
	assert.Len(t, s.Snapshot().SatellitesInView, 7)

	snap := s.Snapshot()
	sv, ok := snap.SatelliteByPRN(66)
	require.True(t, ok)
	assert.Equal(t, nmea.SatelliteView{PRN: 66, Elevation: 11, Azimuth: 21, SNR: 31}, sv)
	sv, ok = snap.SatelliteByPRN(24)
	require.True(t, ok)
	assert.Equal(t, 48, sv.SNR)
	_, ok = snap.SatelliteByPRN(99)
	assert.False(t, ok)
}

func TestState_Timeout(t *testing.T) {
	s := NewState()
	s.Apply(t0, nmeaLine("GNGGA,123519,4807.038,N,01131.000,E,2,08,0.9,545.4,M,46.9,M,,"))
	require.True(t, s.HasFix())

	ev := s.Timeout(t0.Add(time.Second))
	assert.Equal(t, KindTimeout, ev.Kind)
	assert.Empty(t, ev.Sentence)
	assert.False(t, s.HasFix())
	assert.Equal(t, nmea.FixInvalid, s.FixQuality().Quality)
	assert.Equal(t, 8, s.FixQuality().Satellites, "other fields are kept")
	assert.Equal(t, uint64(1), s.Snapshot().Counts[KindTimeout])
}

func TestState_Invalidate(t *testing.T) {
	s := NewState()
	s.Apply(t0, nmeaLine("GNGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,"))
	s.Invalidate()
	assert.False(t, s.HasFix())
	assert.Zero(t, s.Snapshot().Counts[KindTimeout])
}

func TestState_SnapshotIsACopy(t *testing.T) {
	s := NewState()
	s.Apply(t0, nmeaLine("GPGSA,A,3,04,05,,09,12,,,24,,,,,2.5,1.3,2.1"))
	snap := s.Snapshot()
	snap.ActiveSatellites.PRNs[0] = 99
	snap.Counts[KindPosition] = 42
	again := s.Snapshot()
	assert.Equal(t, 4, again.ActiveSatellites.PRNs[0])
	assert.Zero(t, again.Counts[KindPosition])
}

func TestClassify(t *testing.T) {
	assert.Equal(t, KindPosition, Classify(nmea.Tag{Talker: "GN", Type: "RMC"}))
	assert.Equal(t, KindVendorError, Classify(nmea.Tag{Type: "PGRME"}))
	assert.Equal(t, KindUnknown, Classify(nmea.Tag{Type: "PGRMZ"}))
	assert.Equal(t, KindUnknown, Classify(nmea.Tag{Type: "GPX"}))
}
