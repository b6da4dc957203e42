package main

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpsbridge/internal/nmea"
	"gpsbridge/internal/replay"
)

func nmeaLine(payload string) string {
	return "$" + payload + "*" + nmea.Checksum(payload)
}

func TestSummarizeNMEALog(t *testing.T) {
	gga := nmeaLine("GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,")
	rmc := nmeaLine("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W")
	grme := nmeaLine("PGRME,15.0,M,45.0,M,25.0,M")
	bad := "$GPGLL,4916.45,N,12311.12,W,225444,A*00"

	recs := []replay.Record{
		{},
		{At: 0, Timed: true, Sentence: gga},
		{At: 200 * time.Millisecond, Timed: true, Sentence: rmc},
		{At: 300 * time.Millisecond, Timed: true, Sentence: bad},
		{},
		{At: time.Second, Timed: true, Sentence: gga},
		{Sentence: grme},
	}

	s := summarizeNMEALog(recs)
	assert.Equal(t, 2, s.Segments)
	assert.Equal(t, 5, s.Sentences)
	assert.Equal(t, 4, s.Timed)
	assert.Equal(t, 1, s.BadChecksum)
	assert.Equal(t, map[string]int{"GPGGA": 2, "GPRMC": 1, "PGRME": 1}, s.TagCounts)
	assert.Equal(t, time.Second, s.MaxDuration)
}

func TestSummarizeNMEALog_UntimedCapture(t *testing.T) {
	s := summarizeNMEALog([]replay.Record{{Sentence: nmeaLine("GPGSA,A,3,04,05,,09,12,,,24,,,,,2.5,1.3,2.1")}})
	assert.Equal(t, 1, s.Segments)
	assert.Equal(t, 1, s.Sentences)
	assert.Zero(t, s.Timed)
	assert.Zero(t, s.MaxDuration)
}

func TestWriteLogSummary_PrintsExpectedFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "gps.nmea")

	w, err := replay.CreateWriter(logPath)
	require.NoError(t, err)
	now := time.Now()
	require.NoError(t, w.WriteSentence(now, nmeaLine("GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,")))
	require.NoError(t, w.WriteSentence(now.Add(time.Second), nmeaLine("GNGLL,4916.45,N,12311.12,W,225444,A")))
	require.NoError(t, w.Close())

	var buf bytes.Buffer
	require.NoError(t, writeLogSummary(&buf, logPath))
	out := buf.String()
	for _, want := range []string{"path: ", "segments: 1", "sentences: 2", "tag_counts:", "GPGGA: 1", "GNGLL: 1"} {
		assert.Contains(t, out, want)
	}

	assert.Error(t, writeLogSummary(&buf, " "))
}
