// Package transport is the byte-level boundary to the GPS receiver: a serial
// line (termios or go-serial) or an NMEA-over-TCP feed such as gpsd.
package transport

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var ErrNotOpen = errors.New("transport: port is not open")

// OpenError reports a failure to open the port. It is distinct from a read
// that simply returned no data.
type OpenError struct {
	Device string
	Baud   int
	Err    error
}

func (e *OpenError) Error() string {
	if e.Baud > 0 {
		return fmt.Sprintf("open %s baud=%d: %v", e.Device, e.Baud, e.Err)
	}
	return fmt.Sprintf("open %s: %v", e.Device, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// Port is a byte stream to and from the receiver.
//
// ReadAvailable returns the bytes that are ready without waiting long;
// (0, nil) means "no data yet". Any error is fatal for the session.
type Port interface {
	Open() error
	Close() error
	IsOpen() bool
	ReadAvailable(buf []byte) (int, error)
	Write(p []byte) (int, error)
	Name() string
}

type Config struct {
	// Driver selects the implementation: "termios" (default), "goserial" or
	// "tcp".
	Driver string
	Device string
	Baud   int

	// Addr is host:port for Driver=="tcp".
	Addr string
	// GPSDWatch asks gpsd for raw NMEA after connecting.
	GPSDWatch   bool
	DialTimeout time.Duration
}

func New(cfg Config) (Port, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = "termios"
	}
	if cfg.Baud == 0 {
		cfg.Baud = 4800
	}

	switch driver {
	case "termios", "goserial":
		device := strings.TrimSpace(cfg.Device)
		if device == "" {
			device = AutoDetectDevice()
			if device == "" {
				return nil, fmt.Errorf("gps auto-detect failed: no /dev/ttyACM* or /dev/ttyUSB* found")
			}
		}
		if driver == "goserial" {
			return newGoSerial(device, cfg.Baud), nil
		}
		return newTermios(device, cfg.Baud), nil
	case "tcp":
		if strings.TrimSpace(cfg.Addr) == "" {
			return nil, fmt.Errorf("tcp transport requires an address")
		}
		return newTCP(cfg.Addr, cfg.GPSDWatch, cfg.DialTimeout), nil
	default:
		return nil, fmt.Errorf("unknown transport driver %q", cfg.Driver)
	}
}

func AutoDetectDevice() string {
	candidates := []string{}
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyACM%d", i))
	}
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyUSB%d", i))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Shared is the single handle to a Port used by both the session and the
// NTRIP relay. Writes are serialized so correction and command bytes never
// interleave.
type Shared struct {
	port Port
	wmu  sync.Mutex

	writes       atomic.Uint64
	bytesWritten atomic.Uint64
}

func NewShared(p Port) *Shared {
	return &Shared{port: p}
}

func (s *Shared) Open() error { return s.port.Open() }

func (s *Shared) IsOpen() bool { return s.port.IsOpen() }

func (s *Shared) Name() string { return s.port.Name() }

func (s *Shared) ReadAvailable(buf []byte) (int, error) {
	return s.port.ReadAvailable(buf)
}

func (s *Shared) Write(p []byte) (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if !s.port.IsOpen() {
		return 0, ErrNotOpen
	}
	n, err := s.port.Write(p)
	s.writes.Add(1)
	s.bytesWritten.Add(uint64(n))
	return n, err
}

// Close waits for an in-flight write before closing the port.
func (s *Shared) Close() error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.port.Close()
}

type WriteStats struct {
	Writes uint64 `json:"writes"`
	Bytes  uint64 `json:"bytes"`
}

func (s *Shared) Stats() WriteStats {
	return WriteStats{Writes: s.writes.Load(), Bytes: s.bytesWritten.Load()}
}
