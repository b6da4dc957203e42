package ntrip

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// Stream is an STR row: one mountpoint offered by the caster.
type Stream struct {
	Mountpoint     string  `json:"mountpoint"`
	Identifier     string  `json:"identifier"`
	Format         string  `json:"format"`
	FormatDetails  string  `json:"format_details"`
	Carrier        int     `json:"carrier"`
	NavSystem      string  `json:"nav_system"`
	Network        string  `json:"network"`
	Country        string  `json:"country"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	NMEA           bool    `json:"nmea"`
	Solution       int     `json:"solution"`
	Generator      string  `json:"generator"`
	Compression    string  `json:"compression"`
	Authentication string  `json:"authentication"`
	Fee            bool    `json:"fee"`
	Bitrate        int     `json:"bitrate"`
	Misc           string  `json:"misc,omitempty"`
}

// Caster is a CAS row.
type Caster struct {
	Host         string  `json:"host"`
	Port         int     `json:"port"`
	Identifier   string  `json:"identifier"`
	Operator     string  `json:"operator"`
	NMEA         bool    `json:"nmea"`
	Country      string  `json:"country"`
	Latitude     float64 `json:"latitude"`
	Longitude    float64 `json:"longitude"`
	FallbackHost string  `json:"fallback_host"`
	FallbackPort int     `json:"fallback_port"`
	Misc         string  `json:"misc,omitempty"`
}

// Network is a NET row.
type Network struct {
	Identifier     string `json:"identifier"`
	Operator       string `json:"operator"`
	Authentication string `json:"authentication"`
	Fee            bool   `json:"fee"`
	WebNet         string `json:"web_net"`
	WebStream      string `json:"web_stream"`
	WebRegister    string `json:"web_register"`
	Misc           string `json:"misc,omitempty"`
}

// SourceTable holds the rows of one source-table response in the order the
// caster sent them.
type SourceTable struct {
	Casters  []Caster  `json:"casters"`
	Networks []Network `json:"networks"`
	Streams  []Stream  `json:"streams"`
}

// ParseSourceTable reads source-table body lines until ENDSOURCETABLE or EOF.
func ParseSourceTable(r io.Reader) (*SourceTable, error) {
	t := &SourceTable{}
	s := bufio.NewScanner(r)
	for s.Scan() {
		line := strings.TrimRight(s.Text(), "\r")
		if line == endSourceTable {
			break
		}
		t.ParseLine(line)
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

// ParseLine adds one STR, CAS or NET row. Other lines are ignored.
func (t *SourceTable) ParseLine(line string) {
	f := splitRow(line)
	if len(f) == 0 {
		return
	}
	switch f[0] {
	case "STR":
		t.Streams = append(t.Streams, Stream{
			Mountpoint:     col(f, 1),
			Identifier:     col(f, 2),
			Format:         col(f, 3),
			FormatDetails:  col(f, 4),
			Carrier:        atoi(col(f, 5)),
			NavSystem:      col(f, 6),
			Network:        col(f, 7),
			Country:        col(f, 8),
			Latitude:       atof(col(f, 9)),
			Longitude:      atof(col(f, 10)),
			NMEA:           col(f, 11) == "1",
			Solution:       atoi(col(f, 12)),
			Generator:      col(f, 13),
			Compression:    col(f, 14),
			Authentication: col(f, 15),
			Fee:            col(f, 16) == "Y",
			Bitrate:        atoi(col(f, 17)),
			Misc:           rest(f, 18),
		})
	case "CAS":
		t.Casters = append(t.Casters, Caster{
			Host:         col(f, 1),
			Port:         atoi(col(f, 2)),
			Identifier:   col(f, 3),
			Operator:     col(f, 4),
			NMEA:         col(f, 5) == "1",
			Country:      col(f, 6),
			Latitude:     atof(col(f, 7)),
			Longitude:    atof(col(f, 8)),
			FallbackHost: col(f, 9),
			FallbackPort: atoi(col(f, 10)),
			Misc:         rest(f, 11),
		})
	case "NET":
		t.Networks = append(t.Networks, Network{
			Identifier:     col(f, 1),
			Operator:       col(f, 2),
			Authentication: col(f, 3),
			Fee:            col(f, 4) == "Y",
			WebNet:         col(f, 5),
			WebStream:      col(f, 6),
			WebRegister:    col(f, 7),
			Misc:           rest(f, 8),
		})
	}
}

// Stream looks up a mountpoint.
func (t *SourceTable) Stream(mount string) (Stream, bool) {
	if t == nil {
		return Stream{}, false
	}
	for _, s := range t.Streams {
		if s.Mountpoint == mount {
			return s, true
		}
	}
	return Stream{}, false
}

// splitRow splits on ';' (NTRIP) and falls back to ',' for rows that have
// no ';' at all.
func splitRow(line string) []string {
	line = strings.TrimSpace(line)
	if len(line) < 3 {
		return nil
	}
	if strings.Contains(line, ";") {
		return strings.Split(line, ";")
	}
	return strings.Split(line, ",")
}

func col(f []string, i int) string {
	if i < len(f) {
		return strings.TrimSpace(f[i])
	}
	return ""
}

func rest(f []string, i int) string {
	if i >= len(f) {
		return ""
	}
	return strings.Join(f[i:], ";")
}

func atoi(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}

func atof(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
