package nmea

import (
	"fmt"

	gonmea "github.com/adrianmo/go-nmea"
)

// Describe gives a short human-readable summary of sentences this package
// does not decode itself (VTG, ZDA, HDT, ...). It returns false when the
// sentence is not understood.
func Describe(sentence string) (string, bool) {
	s, err := gonmea.Parse(sentence)
	if err != nil {
		return "", false
	}
	switch m := s.(type) {
	case gonmea.VTG:
		return fmt.Sprintf("VTG track=%.1f speed_kph=%.1f", m.TrueTrack, m.GroundSpeedKPH), true
	case gonmea.ZDA:
		return fmt.Sprintf("ZDA %04d-%02d-%02d %s", m.Year, m.Month, m.Day, m.Time), true
	case gonmea.HDT:
		return fmt.Sprintf("HDT heading=%.1f", m.Heading), true
	case gonmea.TXT:
		return fmt.Sprintf("TXT %s", m.Message), true
	default:
		return s.DataType(), true
	}
}
