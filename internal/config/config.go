package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Serial  SerialConfig  `yaml:"serial"`
	Emulate EmulateConfig `yaml:"emulate"`
	Record  RecordConfig  `yaml:"record"`
	NTRIP   NTRIPConfig   `yaml:"ntrip"`
	Publish PublishConfig `yaml:"publish"`
	Web     WebConfig     `yaml:"web"`
	Log     LogConfig     `yaml:"log"`
}

type SerialConfig struct {
	// Driver is termios (default), goserial or tcp.
	Driver string `yaml:"driver"`
	// Device is the serial device; empty means auto-detect.
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
	// Addr is host:port of an NMEA TCP feed (driver tcp).
	Addr      string `yaml:"addr"`
	GPSDWatch bool   `yaml:"gpsd_watch"`

	DialTimeout  time.Duration `yaml:"dial_timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
	StopTimeout  time.Duration `yaml:"stop_timeout"`
}

type EmulateConfig struct {
	Enable  bool          `yaml:"enable"`
	Path    string        `yaml:"path"`
	Cadence time.Duration `yaml:"cadence"`
	Timed   bool          `yaml:"timed"`
	Speed   float64       `yaml:"speed"`
}

type RecordConfig struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

type NTRIPConfig struct {
	Enable     bool   `yaml:"enable"`
	Addr       string `yaml:"addr"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	Mountpoint string `yaml:"mountpoint"`
	UserAgent  string `yaml:"user_agent"`

	// SendGGA uploads the receiver position, required by VRS mountpoints.
	SendGGA     bool          `yaml:"send_gga"`
	GGAInterval time.Duration `yaml:"gga_interval"`

	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
}

type PublishConfig struct {
	MQTT MQTTConfig `yaml:"mqtt"`
	NATS NATSConfig `yaml:"nats"`
	UDP  UDPConfig  `yaml:"udp"`
}

type MQTTConfig struct {
	Enable   bool   `yaml:"enable"`
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
}

type NATSConfig struct {
	Enable  bool   `yaml:"enable"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

type UDPConfig struct {
	Enable bool   `yaml:"enable"`
	Dest   string `yaml:"dest"`
}

type WebConfig struct {
	Enable bool   `yaml:"enable"`
	Listen string `yaml:"listen"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(b)
}

// Parse decodes YAML, rejects unknown fields, then applies defaults and
// validation.
func Parse(b []byte) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		var te *yaml.TypeError
		if errors.As(err, &te) && allUnknownFields(te.Errors) {
			return Config{}, fmt.Errorf("config contains unknown fields: %s", strings.Join(stripLines(te.Errors), "; "))
		}
		return Config{}, err
	}
	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var yamlLinePrefix = regexp.MustCompile(`^line \d+: `)

func stripLines(errs []string) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, yamlLinePrefix.ReplaceAllString(e, ""))
	}
	return out
}

func allUnknownFields(errs []string) bool {
	for _, e := range errs {
		if !strings.Contains(e, "not found in type") {
			return false
		}
	}
	return len(errs) > 0
}

// DefaultAndValidate fills defaults in place and reports the first invalid
// setting.
func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	s := &cfg.Serial
	s.Driver = strings.ToLower(strings.TrimSpace(s.Driver))
	switch s.Driver {
	case "":
		s.Driver = "termios"
	case "termios", "goserial", "tcp":
	default:
		return fmt.Errorf("serial.driver must be one of termios, goserial, tcp")
	}
	if s.Baud == 0 {
		s.Baud = 4800
	}
	if s.Baud < 0 {
		return fmt.Errorf("serial.baud must be > 0")
	}
	if s.Driver == "tcp" && strings.TrimSpace(s.Addr) == "" && !cfg.Emulate.Enable {
		return fmt.Errorf("serial.addr is required when serial.driver is 'tcp'")
	}
	if s.DialTimeout <= 0 {
		s.DialTimeout = 5 * time.Second
	}
	if s.PollInterval <= 0 {
		s.PollInterval = 10 * time.Millisecond
	}
	if s.Timeout <= 0 {
		s.Timeout = 5 * time.Second
	}
	if s.StopTimeout <= 0 {
		s.StopTimeout = 2 * time.Second
	}

	e := &cfg.Emulate
	if e.Enable {
		if strings.TrimSpace(e.Path) == "" {
			return fmt.Errorf("emulate.path is required when emulate.enable is true")
		}
		if e.Speed < 0 {
			return fmt.Errorf("emulate.speed must be > 0")
		}
	}
	if e.Cadence <= 0 {
		e.Cadence = 50 * time.Millisecond
	}
	if e.Speed == 0 {
		e.Speed = 1
	}

	if cfg.Record.Enable {
		if strings.TrimSpace(cfg.Record.Path) == "" {
			return fmt.Errorf("record.path is required when record.enable is true")
		}
		if e.Enable {
			return fmt.Errorf("record and emulate cannot both be enabled")
		}
	}

	n := &cfg.NTRIP
	if n.Enable {
		if strings.TrimSpace(n.Addr) == "" {
			return fmt.Errorf("ntrip.addr is required when ntrip.enable is true")
		}
		if strings.TrimSpace(n.Mountpoint) == "" {
			return fmt.Errorf("ntrip.mountpoint is required when ntrip.enable is true")
		}
	}
	if n.GGAInterval <= 0 {
		n.GGAInterval = 15 * time.Second
	}
	if n.ReconnectDelay <= 0 {
		n.ReconnectDelay = 5 * time.Second
	}
	if n.DialTimeout <= 0 {
		n.DialTimeout = 10 * time.Second
	}
	if n.ReadTimeout <= 0 {
		n.ReadTimeout = 30 * time.Second
	}

	p := &cfg.Publish
	if p.MQTT.Enable && strings.TrimSpace(p.MQTT.Broker) == "" {
		return fmt.Errorf("publish.mqtt.broker is required when publish.mqtt.enable is true")
	}
	if p.MQTT.ClientID == "" {
		p.MQTT.ClientID = "gpsbridge"
	}
	if p.MQTT.Topic == "" {
		p.MQTT.Topic = "gpsbridge"
	}
	if p.NATS.Enable && strings.TrimSpace(p.NATS.URL) == "" {
		return fmt.Errorf("publish.nats.url is required when publish.nats.enable is true")
	}
	if p.NATS.Subject == "" {
		p.NATS.Subject = "gpsbridge"
	}
	if p.UDP.Enable && strings.TrimSpace(p.UDP.Dest) == "" {
		return fmt.Errorf("publish.udp.dest is required when publish.udp.enable is true")
	}

	if strings.TrimSpace(cfg.Web.Listen) == "" {
		cfg.Web.Listen = ":8080"
	}

	l := &cfg.Log
	l.Level = strings.ToLower(strings.TrimSpace(l.Level))
	switch l.Level {
	case "":
		l.Level = "info"
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	if l.MaxSizeMB <= 0 {
		l.MaxSizeMB = 10
	}
	if l.MaxBackups <= 0 {
		l.MaxBackups = 3
	}
	if l.MaxAgeDays <= 0 {
		l.MaxAgeDays = 28
	}

	return nil
}
