package publish

import (
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

const mqttTimeout = 2 * time.Second

type MQTTConfig struct {
	Broker   string
	ClientID string
	// Topic is the prefix; each kind goes to <Topic>/<kind>.
	Topic string
}

type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTSink publishes retained QoS 0 messages so a late subscriber sees the
// latest value of every kind.
type MQTTSink struct {
	client mqttPublisher
	topic  string
}

func NewMQTTSink(cfg MQTTConfig) (*MQTTSink, error) {
	if strings.TrimSpace(cfg.Broker) == "" {
		return nil, errors.New("mqtt broker is empty")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "gpsbridge"
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(5 * time.Second)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect %s: timed out", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}
	log.WithFields(log.Fields{"broker": cfg.Broker, "topic": cfg.Topic}).Info("mqtt sink connected")
	return newMQTTSink(client, cfg.Topic), nil
}

func newMQTTSink(client mqttPublisher, topic string) *MQTTSink {
	topic = strings.TrimRight(topic, "/")
	if topic == "" {
		topic = "gpsbridge"
	}
	return &MQTTSink{client: client, topic: topic}
}

func (s *MQTTSink) Name() string { return "mqtt" }

func (s *MQTTSink) Publish(m Message) error {
	payload, err := m.JSON()
	if err != nil {
		return err
	}
	token := s.client.Publish(s.topic+"/"+string(m.Kind), 0, true, payload)
	if !token.WaitTimeout(mqttTimeout) {
		return fmt.Errorf("mqtt publish %s: timed out", m.Kind)
	}
	return token.Error()
}

func (s *MQTTSink) Close() error {
	s.client.Disconnect(250)
	return nil
}
