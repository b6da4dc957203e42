package gps

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"gpsbridge/internal/nmea"
	"gpsbridge/internal/receiver"
	"gpsbridge/internal/transport"
)

// Config controls the session loop. Zero values select the defaults.
type Config struct {
	// PollInterval is the pause between reads of the port.
	PollInterval time.Duration
	// Timeout is how long the receiver may stay silent before the fix is
	// declared invalid.
	Timeout time.Duration
	// StopTimeout bounds how long Stop waits for the loop to exit.
	StopTimeout time.Duration
	ReadBuffer  int
}

const (
	DefaultPollInterval = 10 * time.Millisecond
	DefaultStopTimeout  = 2 * time.Second
)

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Timeout <= 0 {
		c.Timeout = receiver.DefaultTimeout
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = DefaultStopTimeout
	}
	if c.ReadBuffer <= 0 {
		c.ReadBuffer = 4096
	}
	return c
}

// Recorder receives every accepted sentence.
type Recorder interface {
	WriteSentence(now time.Time, sentence string) error
}

type Status struct {
	Port      string                  `json:"port"`
	Running   bool                    `json:"running"`
	Watch     receiver.WatchState     `json:"watch"`
	SilentSec float64                 `json:"silent_sec"`
	Sentences uint64                  `json:"sentences"`
	Framer    nmea.FramerStats        `json:"framer"`
	Writes    transport.WriteStats    `json:"writes"`
	Events    receiver.BroadcastStats `json:"events"`
	Started   string                  `json:"started_utc,omitempty"`
	LastError string                  `json:"last_error,omitempty"`
}

var ErrAlreadyRunning = errors.New("gps session already running")

// Session owns the receiver port and the read loop.
type Session struct {
	cfg    Config
	port   *transport.Shared
	state  *receiver.State
	events *receiver.Broadcaster
	now    func() time.Time

	recorder  Recorder
	watchdog  atomic.Pointer[receiver.Watchdog]
	framer    atomic.Value // nmea.FramerStats
	sentences atomic.Uint64
	stopping  atomic.Bool

	// openMu serializes Start so mu is not held while the port dials.
	openMu  sync.Mutex
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	done    chan struct{}
	started time.Time
	err     error
}

func NewSession(port transport.Port, cfg Config) *Session {
	shared, ok := port.(*transport.Shared)
	if !ok {
		shared = transport.NewShared(port)
	}
	done := make(chan struct{})
	close(done)
	s := &Session{
		cfg:    cfg.withDefaults(),
		port:   shared,
		state:  receiver.NewState(),
		events: receiver.NewBroadcaster(),
		now:    time.Now,
		done:   done,
	}
	s.framer.Store(nmea.FramerStats{})
	return s
}

// SetRecorder installs a recorder. It must be called before Start.
func (s *Session) SetRecorder(r Recorder) {
	s.recorder = r
}

func (s *Session) State() *receiver.State { return s.state }

func (s *Session) Events() *receiver.Broadcaster { return s.events }

// Port returns the shared handle that other writers (the NTRIP relay) must
// use so their bytes are serialized with Write.
func (s *Session) Port() *transport.Shared { return s.port }

// Start opens the port and starts the read loop. Open failures are returned
// as *transport.OpenError. A session that ended can be started again.
func (s *Session) Start(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("ctx is nil")
	}
	s.openMu.Lock()
	defer s.openMu.Unlock()
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()
	if running {
		return ErrAlreadyRunning
	}

	if err := s.port.Open(); err != nil {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.watchdog.Store(receiver.NewWatchdog(s.cfg.Timeout, now))
	s.stopping.Store(false)
	s.stopCh = make(chan struct{})
	s.done = make(chan struct{})
	s.started = now
	s.err = nil
	s.running = true

	log.WithFields(log.Fields{"port": s.port.Name(), "timeout": s.cfg.Timeout}).Info("gps session started")
	go s.run(ctx, s.stopCh, s.done)
	return nil
}

// Stop asks the loop to exit and waits up to StopTimeout. The loop closes
// the port on its way out. Stop is safe to call from any goroutine and more
// than once.
func (s *Session) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	if !s.stopping.Swap(true) {
		close(s.stopCh)
	}
	done := s.done
	s.mu.Unlock()

	t := time.NewTimer(s.cfg.StopTimeout)
	defer t.Stop()
	select {
	case <-done:
	case <-t.C:
		_ = s.port.Close()
		return fmt.Errorf("gps session: read loop did not exit within %s", s.cfg.StopTimeout)
	}
	s.state.Invalidate()
	log.WithField("port", s.port.Name()).Info("gps session stopped")
	return nil
}

// Done is closed when the read loop exits.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Err returns the error that ended the last run, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Write sends raw bytes (commands, corrections) to the receiver.
func (s *Session) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *Session) Status() Status {
	now := s.now()
	s.mu.Lock()
	out := Status{
		Port:    s.port.Name(),
		Running: s.running,
	}
	if !s.started.IsZero() {
		out.Started = s.started.UTC().Format(time.RFC3339Nano)
	}
	if s.err != nil {
		out.LastError = s.err.Error()
	}
	s.mu.Unlock()

	if wd := s.watchdog.Load(); wd != nil {
		out.Watch = wd.State()
		out.SilentSec = wd.Since(now).Seconds()
	}
	out.Sentences = s.sentences.Load()
	out.Framer = s.framer.Load().(nmea.FramerStats)
	out.Writes = s.port.Stats()
	out.Events = s.events.Stats()
	return out
}

func (s *Session) run(ctx context.Context, stopCh <-chan struct{}, done chan struct{}) {
	var runErr error
	defer func() {
		if err := s.port.Close(); err != nil {
			log.WithError(err).Warn("gps port close failed")
		}
		s.mu.Lock()
		s.running = false
		s.err = runErr
		s.mu.Unlock()
		close(done)
	}()

	framer := nmea.NewFramer()
	buf := make([]byte, s.cfg.ReadBuffer)
	wd := s.watchdog.Load()
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if s.stopping.Load() {
			return
		}
		if err := s.drain(framer, buf, wd); err != nil {
			runErr = err
			log.WithError(err).WithField("port", s.port.Name()).Error("gps read failed")
			return
		}

		now := s.now()
		if wd.Poll(now) {
			s.events.Publish(s.state.Timeout(now))
			log.Warnf("gps: no valid sentence for %s, fix invalidated", wd.Timeout())
		}

		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// drain reads until the port has nothing more to give.
func (s *Session) drain(framer *nmea.Framer, buf []byte, wd *receiver.Watchdog) error {
	for {
		n, err := s.port.ReadAvailable(buf)
		if n > 0 {
			now := s.now()
			for _, sentence := range framer.Feed(buf[:n]) {
				s.accept(now, sentence, wd)
			}
			s.framer.Store(framer.Stats())
		}
		if err != nil {
			return err
		}
		if n < len(buf) || s.stopping.Load() {
			return nil
		}
	}
}

func (s *Session) accept(now time.Time, sentence string, wd *receiver.Watchdog) {
	s.sentences.Add(1)
	if wd.Touch(now) {
		log.Info("gps: sentences resumed")
	}
	if s.recorder != nil {
		if err := s.recorder.WriteSentence(now, sentence); err != nil {
			log.WithError(err).Debug("gps record failed")
		}
	}
	if ev, ok := s.state.Apply(now, sentence); ok {
		s.events.Publish(ev)
	}
}
