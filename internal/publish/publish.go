// Package publish republishes receiver events to external consumers
// (MQTT, NATS, NMEA over UDP).
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"

	"gpsbridge/internal/receiver"
)

// Sink is one output. Publish must not block for long; the pump calls
// sinks one after another.
type Sink interface {
	Name() string
	Publish(Message) error
	Close() error
}

// Message is the JSON document sent to MQTT and NATS.
type Message struct {
	Kind     receiver.Kind `json:"kind"`
	Talker   string        `json:"talker,omitempty"`
	Sentence string        `json:"sentence,omitempty"`
	At       time.Time     `json:"at"`
	HasFix   bool          `json:"has_fix"`
	Detail   string        `json:"detail,omitempty"`
	Data     any           `json:"data,omitempty"`
}

// NewMessage pairs an event with the slice of snap it describes.
func NewMessage(ev receiver.Event, snap receiver.Snapshot) Message {
	m := Message{
		Kind:     ev.Kind,
		Talker:   ev.Talker,
		Sentence: ev.Sentence,
		At:       ev.At,
		HasFix:   snap.HasFix,
		Detail:   ev.Detail,
	}
	switch ev.Kind {
	case receiver.KindPosition:
		m.Data = snap.Position
	case receiver.KindFixQuality:
		m.Data = snap.FixQuality
	case receiver.KindLatLon:
		m.Data = snap.LatLon
	case receiver.KindActiveSatellites:
		m.Data = snap.ActiveSatellites
	case receiver.KindSatellitesInView:
		m.Data = snap.SatellitesInView
	case receiver.KindVendorError:
		m.Data = snap.ErrorEstimate
	}
	return m
}

func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m)
}

type Stats struct {
	Sinks     []string `json:"sinks"`
	Published uint64   `json:"published"`
	Failed    uint64   `json:"failed"`
}

// Hub is the set of configured sinks.
type Hub struct {
	mu    sync.RWMutex
	sinks []Sink

	published atomic.Uint64
	failed    atomic.Uint64
}

func NewHub(sinks ...Sink) *Hub {
	h := &Hub{}
	for _, s := range sinks {
		h.Add(s)
	}
	return h
}

func (h *Hub) Add(s Sink) {
	if s == nil {
		return
	}
	h.mu.Lock()
	h.sinks = append(h.sinks, s)
	h.mu.Unlock()
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sinks)
}

// Publish hands m to every sink. A failing sink does not stop the others;
// the combined error is returned.
func (h *Hub) Publish(m Message) error {
	h.mu.RLock()
	sinks := h.sinks
	h.mu.RUnlock()

	var errs error
	for _, s := range sinks {
		if err := s.Publish(m); err != nil {
			h.failed.Add(1)
			log.WithError(err).WithFields(log.Fields{"sink": s.Name(), "kind": m.Kind}).Debug("publish failed")
			errs = multierr.Append(errs, err)
			continue
		}
		h.published.Add(1)
	}
	return errs
}

// Run forwards every event from b to the sinks until ctx is done or b is
// closed.
func (h *Hub) Run(ctx context.Context, b *receiver.Broadcaster, state *receiver.State) error {
	id, events := b.Subscribe(256)
	defer b.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			_ = h.Publish(NewMessage(ev, state.Snapshot()))
		}
	}
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	names := make([]string, 0, len(h.sinks))
	for _, s := range h.sinks {
		names = append(names, s.Name())
	}
	h.mu.RUnlock()
	return Stats{Sinks: names, Published: h.published.Load(), Failed: h.failed.Load()}
}

// Close closes every sink and reports all failures.
func (h *Hub) Close() error {
	h.mu.Lock()
	sinks := h.sinks
	h.sinks = nil
	h.mu.Unlock()

	var errs error
	for _, s := range sinks {
		if err := s.Close(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close %s: %w", s.Name(), err))
		}
	}
	return errs
}
