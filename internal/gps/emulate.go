package gps

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"go.uber.org/ratelimit"

	"gpsbridge/internal/replay"
	"gpsbridge/internal/transport"
)

const (
	DefaultEmulateCadence = 50 * time.Millisecond

	// emulatorBacklog caps unread output when nobody drains the port.
	emulatorBacklog = 64 * 1024
)

type EmulatorConfig struct {
	Path string
	// Cadence is the pause between sentences in untimed mode.
	Cadence time.Duration
	// Timed replays with the recorded timestamps instead of Cadence.
	Timed bool
	Speed float64
}

// Emulator is a transport.Port that replays recorded sentences in a loop.
// Writes are accepted and discarded.
type Emulator struct {
	cfg       EmulatorConfig
	sentences []string
	records   []replay.Record

	mu      sync.Mutex
	pending bytes.Buffer
	open    bool
	cancel  context.CancelFunc
	done    chan struct{}

	written atomic.Uint64
	dropped atomic.Uint64
}

var _ transport.Port = (*Emulator)(nil)

func NewEmulator(cfg EmulatorConfig) (*Emulator, error) {
	if cfg.Path == "" {
		return nil, errors.New("emulate: path is empty")
	}
	records, err := replay.ReadFile(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("emulate: %w", err)
	}
	return NewEmulatorFromRecords(cfg, records)
}

func NewEmulatorFromRecords(cfg EmulatorConfig, records []replay.Record) (*Emulator, error) {
	sentences := replay.Sentences(records)
	if len(sentences) == 0 {
		return nil, fmt.Errorf("emulate: %s has no sentences", cfg.Path)
	}
	if cfg.Cadence <= 0 {
		cfg.Cadence = DefaultEmulateCadence
	}
	if cfg.Speed <= 0 {
		cfg.Speed = 1
	}
	if cfg.Timed && !hasTiming(records) {
		log.WithField("path", cfg.Path).Warn("emulate: file has no timestamps, using fixed cadence")
		cfg.Timed = false
	}
	return &Emulator{cfg: cfg, sentences: sentences, records: records}, nil
}

func hasTiming(records []replay.Record) bool {
	for _, r := range records {
		if r.Timed {
			return true
		}
	}
	return false
}

func (e *Emulator) Name() string { return "emulate:" + e.cfg.Path }

func (e *Emulator) Open() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.open {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	e.pending.Reset()
	e.open = true
	go e.feed(ctx, e.done)
	return nil
}

func (e *Emulator) Close() error {
	e.mu.Lock()
	if !e.open {
		e.mu.Unlock()
		return nil
	}
	e.open = false
	cancel, done := e.cancel, e.done
	e.mu.Unlock()

	cancel()
	<-done
	return nil
}

func (e *Emulator) IsOpen() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.open
}

// ReadAvailable hands out whatever the feed goroutine produced so far.
func (e *Emulator) ReadAvailable(buf []byte) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.open {
		return 0, transport.ErrNotOpen
	}
	if e.pending.Len() == 0 {
		return 0, nil
	}
	return e.pending.Read(buf)
}

func (e *Emulator) Write(p []byte) (int, error) {
	if !e.IsOpen() {
		return 0, transport.ErrNotOpen
	}
	e.written.Add(uint64(len(p)))
	return len(p), nil
}

// Written reports how many bytes were written to the emulator and discarded.
func (e *Emulator) Written() uint64 { return e.written.Load() }

// Dropped reports sentences discarded because the backlog was full.
func (e *Emulator) Dropped() uint64 { return e.dropped.Load() }

func (e *Emulator) push(sentence string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pending.Len()+len(sentence)+2 > emulatorBacklog {
		e.dropped.Add(1)
		return
	}
	e.pending.WriteString(sentence)
	e.pending.WriteString("\r\n")
}

func (e *Emulator) feed(ctx context.Context, done chan struct{}) {
	defer close(done)

	if e.cfg.Timed {
		err := replay.Play(ctx, e.records, e.cfg.Speed, true, nil, func(sentence string) error {
			e.push(sentence)
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Warn("emulate: replay ended")
		}
		return
	}

	rl := ratelimit.New(1, ratelimit.Per(e.cfg.Cadence))
	for {
		for _, sentence := range e.sentences {
			rl.Take()
			if ctx.Err() != nil {
				return
			}
			e.push(sentence)
		}
	}
}
