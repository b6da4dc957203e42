package publish

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

type NATSConfig struct {
	URL string
	// Subject is the prefix; each kind goes to <Subject>.<kind>.
	Subject string
}

type natsPublisher interface {
	Publish(subj string, data []byte) error
	Drain() error
}

type NATSSink struct {
	conn    natsPublisher
	subject string
}

func NewNATSSink(cfg NATSConfig) (*NATSSink, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("nats url is empty")
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name("gpsbridge"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.WithError(err).Warn("nats disconnected")
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", cfg.URL, err)
	}
	log.WithFields(log.Fields{"url": cfg.URL, "subject": cfg.Subject}).Info("nats sink connected")
	return newNATSSink(nc, cfg.Subject), nil
}

func newNATSSink(conn natsPublisher, subject string) *NATSSink {
	subject = strings.TrimRight(subject, ".")
	if subject == "" {
		subject = "gpsbridge"
	}
	return &NATSSink{conn: conn, subject: subject}
}

func (s *NATSSink) Name() string { return "nats" }

func (s *NATSSink) Publish(m Message) error {
	payload, err := m.JSON()
	if err != nil {
		return err
	}
	return s.conn.Publish(s.subject+"."+string(m.Kind), payload)
}

// Close flushes pending messages and closes the connection.
func (s *NATSSink) Close() error {
	return s.conn.Drain()
}
