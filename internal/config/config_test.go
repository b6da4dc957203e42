package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func requireErrEq(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", want)
	}
	if err.Error() != want {
		t.Fatalf("error=%q want %q", err.Error(), want)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeTempConfig(t, "serial:\n  device: /dev/ttyUSB0\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Serial.Driver != "termios" {
		t.Fatalf("driver=%q want termios", cfg.Serial.Driver)
	}
	if cfg.Serial.Baud != 4800 {
		t.Fatalf("baud=%d want 4800", cfg.Serial.Baud)
	}
	if cfg.Serial.PollInterval != 10*time.Millisecond {
		t.Fatalf("poll_interval=%s want 10ms", cfg.Serial.PollInterval)
	}
	if cfg.Serial.Timeout != 5*time.Second {
		t.Fatalf("timeout=%s want 5s", cfg.Serial.Timeout)
	}
	if cfg.Serial.StopTimeout != 2*time.Second {
		t.Fatalf("stop_timeout=%s want 2s", cfg.Serial.StopTimeout)
	}
	if cfg.Emulate.Cadence != 50*time.Millisecond || cfg.Emulate.Speed != 1 {
		t.Fatalf("emulate defaults=%+v", cfg.Emulate)
	}
	if cfg.NTRIP.GGAInterval != 15*time.Second || cfg.NTRIP.ReconnectDelay != 5*time.Second {
		t.Fatalf("ntrip defaults=%+v", cfg.NTRIP)
	}
	if cfg.Publish.MQTT.Topic != "gpsbridge" || cfg.Publish.NATS.Subject != "gpsbridge" {
		t.Fatalf("publish defaults=%+v", cfg.Publish)
	}
	if cfg.Web.Listen != ":8080" {
		t.Fatalf("web.listen=%q want :8080", cfg.Web.Listen)
	}
	if cfg.Log.Level != "info" || cfg.Log.MaxSizeMB != 10 {
		t.Fatalf("log defaults=%+v", cfg.Log)
	}
}

func TestLoad_EmptyFileUsesDefaults(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, ""))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Serial.Driver != "termios" {
		t.Fatalf("driver=%q want termios", cfg.Serial.Driver)
	}
}

func TestLoad_FullConfig(t *testing.T) {
	body := `serial:
  driver: TCP
  addr: 127.0.0.1:2947
  gpsd_watch: true
  timeout: 3s
ntrip:
  enable: true
  addr: caster.example:2101
  mountpoint: RTCM3
  username: user
  password: pass
  send_gga: true
  gga_interval: 10s
publish:
  mqtt:
    enable: true
    broker: tcp://localhost:1883
    topic: gps/rover
  nats:
    enable: true
    url: nats://localhost:4222
  udp:
    enable: true
    dest: 192.168.10.255:10110
web:
  enable: true
  listen: 127.0.0.1:9090
log:
  level: DEBUG
  file: /tmp/gpsbridge.log
`
	cfg, err := Load(writeTempConfig(t, body))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Serial.Driver != "tcp" || !cfg.Serial.GPSDWatch || cfg.Serial.Timeout != 3*time.Second {
		t.Fatalf("serial=%+v", cfg.Serial)
	}
	if !cfg.NTRIP.SendGGA || cfg.NTRIP.GGAInterval != 10*time.Second || cfg.NTRIP.Mountpoint != "RTCM3" {
		t.Fatalf("ntrip=%+v", cfg.NTRIP)
	}
	if cfg.Publish.MQTT.Topic != "gps/rover" || cfg.Publish.MQTT.ClientID != "gpsbridge" {
		t.Fatalf("mqtt=%+v", cfg.Publish.MQTT)
	}
	if cfg.Publish.UDP.Dest != "192.168.10.255:10110" {
		t.Fatalf("udp=%+v", cfg.Publish.UDP)
	}
	if cfg.Web.Listen != "127.0.0.1:9090" {
		t.Fatalf("web=%+v", cfg.Web)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("log.level=%q want debug", cfg.Log.Level)
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "UnknownDriver",
			body: "serial:\n  driver: usb\n",
			want: "serial.driver must be one of termios, goserial, tcp",
		},
		{
			name: "NegativeBaud",
			body: "serial:\n  baud: -1\n",
			want: "serial.baud must be > 0",
		},
		{
			name: "TCPRequiresAddr",
			body: "serial:\n  driver: tcp\n",
			want: "serial.addr is required when serial.driver is 'tcp'",
		},
		{
			name: "EmulateRequiresPath",
			body: "emulate:\n  enable: true\n",
			want: "emulate.path is required when emulate.enable is true",
		},
		{
			name: "EmulateNegativeSpeed",
			body: "emulate:\n  enable: true\n  path: ./x.nmea\n  speed: -1\n",
			want: "emulate.speed must be > 0",
		},
		{
			name: "RecordRequiresPath",
			body: "record:\n  enable: true\n",
			want: "record.path is required when record.enable is true",
		},
		{
			name: "RecordAndEmulateExclusive",
			body: "record:\n  enable: true\n  path: ./a.nmea\nemulate:\n  enable: true\n  path: ./b.nmea\n",
			want: "record and emulate cannot both be enabled",
		},
		{
			name: "NTRIPRequiresAddr",
			body: "ntrip:\n  enable: true\n  mountpoint: MP\n",
			want: "ntrip.addr is required when ntrip.enable is true",
		},
		{
			name: "NTRIPRequiresMountpoint",
			body: "ntrip:\n  enable: true\n  addr: caster:2101\n",
			want: "ntrip.mountpoint is required when ntrip.enable is true",
		},
		{
			name: "MQTTRequiresBroker",
			body: "publish:\n  mqtt:\n    enable: true\n",
			want: "publish.mqtt.broker is required when publish.mqtt.enable is true",
		},
		{
			name: "NATSRequiresURL",
			body: "publish:\n  nats:\n    enable: true\n",
			want: "publish.nats.url is required when publish.nats.enable is true",
		},
		{
			name: "UDPRequiresDest",
			body: "publish:\n  udp:\n    enable: true\n",
			want: "publish.udp.dest is required when publish.udp.enable is true",
		},
		{
			name: "LogLevel",
			body: "log:\n  level: verbose\n",
			want: "log.level must be one of debug, info, warn, error",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeTempConfig(t, tc.body))
			requireErrEq(t, err, tc.want)
		})
	}
}

func TestLoad_EmulateSkipsTCPAddrCheck(t *testing.T) {
	body := "serial:\n  driver: tcp\nemulate:\n  enable: true\n  path: ./x.nmea\n"
	if _, err := Load(writeTempConfig(t, body)); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
}

func TestLoad_RejectsUnknownField(t *testing.T) {
	path := writeTempConfig(t, "serial:\n  device: /dev/ttyUSB0\n  parity: none\n")
	_, err := Load(path)
	requireErrEq(t, err, "config contains unknown fields: field parity not found in type config.SerialConfig")
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := Load(writeTempConfig(t, "serial: [\n"))
	if err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestDefaultAndValidate_Nil(t *testing.T) {
	requireErrEq(t, DefaultAndValidate(nil), "config is nil")
}

func TestLoad_ExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "gpsbridge.example.yaml"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Serial.Baud != 4800 || cfg.NTRIP.Enable || !cfg.Web.Enable {
		t.Fatalf("cfg=%+v", cfg)
	}
}
