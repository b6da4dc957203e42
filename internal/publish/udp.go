package publish

import (
	"gpsbridge/internal/udp"
)

type sentenceSender interface {
	SendSentence(sentence string) error
	Close() error
}

// UDPSink forwards the raw sentence of every event. Timeouts carry no
// sentence and are skipped.
type UDPSink struct {
	out sentenceSender
}

func NewUDPSink(dest string) (*UDPSink, error) {
	b, err := udp.NewBroadcaster(dest)
	if err != nil {
		return nil, err
	}
	return &UDPSink{out: b}, nil
}

func (s *UDPSink) Name() string { return "udp" }

func (s *UDPSink) Publish(m Message) error {
	if m.Sentence == "" {
		return nil
	}
	return s.out.SendSentence(m.Sentence)
}

func (s *UDPSink) Close() error { return s.out.Close() }
