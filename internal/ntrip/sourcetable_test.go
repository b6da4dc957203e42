package ntrip

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSourceTable_Rows(t *testing.T) {
	body := "STR;MP1;Ident;RTCM 3;1005;2;GPS;Net;USA;40.5;-105.1;1;0;gen;none;B;N;2400;\n" +
		"garbage line\n" +
		"STRX;not;a;row\n" +
		"CAS;caster.example;2101;Id;Op;1;USA;40.00;-105.00;backup.example;2102;note\n" +
		"NET;Net;Op;B;N;http://a;http://b;http://c;none\n" +
		"ENDSOURCETABLE\n" +
		"STR;AFTER;end\n"

	table, err := ParseSourceTable(strings.NewReader(body))
	require.NoError(t, err)

	require.Len(t, table.Streams, 1)
	s := table.Streams[0]
	assert.Equal(t, "MP1", s.Mountpoint)
	assert.Equal(t, "RTCM 3", s.Format)
	assert.Equal(t, 2, s.Carrier)
	assert.Equal(t, "GPS", s.NavSystem)
	assert.InDelta(t, 40.5, s.Latitude, 1e-9)
	assert.InDelta(t, -105.1, s.Longitude, 1e-9)
	assert.True(t, s.NMEA)
	assert.Equal(t, 0, s.Solution)
	assert.Equal(t, "B", s.Authentication)
	assert.False(t, s.Fee)
	assert.Equal(t, 2400, s.Bitrate)

	require.Len(t, table.Casters, 1)
	c := table.Casters[0]
	assert.Equal(t, "caster.example", c.Host)
	assert.Equal(t, 2101, c.Port)
	assert.True(t, c.NMEA)
	assert.Equal(t, "backup.example", c.FallbackHost)
	assert.Equal(t, 2102, c.FallbackPort)
	assert.Equal(t, "note", c.Misc)

	require.Len(t, table.Networks, 1)
	n := table.Networks[0]
	assert.Equal(t, "Net", n.Identifier)
	assert.Equal(t, "http://c", n.WebRegister)
}

func TestParseSourceTable_CommaFallback(t *testing.T) {
	table := &SourceTable{}
	table.ParseLine("STR,MP2,Ident,RTCM 2.3,1(1),0,GPS,Net,DEU,50.0,8.0,0,0,gen,none,N,N,1200")
	require.Len(t, table.Streams, 1)
	assert.Equal(t, "MP2", table.Streams[0].Mountpoint)
	assert.Equal(t, "DEU", table.Streams[0].Country)
	assert.Equal(t, 1200, table.Streams[0].Bitrate)
}

func TestParseSourceTable_ShortAndMalformedRows(t *testing.T) {
	table := &SourceTable{}
	table.ParseLine("STR;ONLY")
	table.ParseLine("CAS;host;notaport")
	table.ParseLine("")
	table.ParseLine("ST")

	require.Len(t, table.Streams, 1)
	assert.Equal(t, "ONLY", table.Streams[0].Mountpoint)
	assert.Zero(t, table.Streams[0].Bitrate)
	require.Len(t, table.Casters, 1)
	assert.Zero(t, table.Casters[0].Port)
}

func TestSourceTable_Stream(t *testing.T) {
	table := &SourceTable{Streams: []Stream{{Mountpoint: "A"}, {Mountpoint: "B", NMEA: true}}}
	s, ok := table.Stream("B")
	assert.True(t, ok)
	assert.True(t, s.NMEA)
	_, ok = table.Stream("C")
	assert.False(t, ok)

	var none *SourceTable
	_, ok = none.Stream("A")
	assert.False(t, ok)
}
