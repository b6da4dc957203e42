package web

import (
	"sync/atomic"
	"time"

	"gpsbridge/internal/gps"
	"gpsbridge/internal/ntrip"
	"gpsbridge/internal/publish"
	"gpsbridge/internal/receiver"
)

// Status collects the live components for /api/status. Components are
// installed as they start and may be replaced (the NTRIP relay is recreated
// on every reconnect).
type Status struct {
	startUnixNano int64
	session       atomic.Pointer[gps.Session]
	relay         atomic.Pointer[ntrip.Relay]
	hub           atomic.Pointer[publish.Hub]
	ntripTarget   atomic.Value // ntripTarget
	relayRestarts atomic.Uint64
	relayError    atomic.Value // string
}

type ntripTarget struct {
	addr  string
	mount string
}

func NewStatus() *Status {
	s := &Status{}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.ntripTarget.Store(ntripTarget{})
	s.relayError.Store("")
	return s
}

func (s *Status) SetSession(sess *gps.Session) { s.session.Store(sess) }

func (s *Status) SetHub(h *publish.Hub) { s.hub.Store(h) }

func (s *Status) SetNTRIP(addr, mount string) {
	s.ntripTarget.Store(ntripTarget{addr: addr, mount: mount})
}

// SetRelay installs the current relay. A nil relay keeps the previous one
// so its final counters stay visible.
func (s *Status) SetRelay(r *ntrip.Relay) {
	if r != nil {
		s.relay.Store(r)
	}
}

// MarkRelayFailure records a failed connect or a relay that ended with an
// error.
func (s *Status) MarkRelayFailure(err error) {
	s.relayRestarts.Add(1)
	if err != nil {
		s.relayError.Store(err.Error())
	}
}

type NTRIPStatus struct {
	Addr      string            `json:"addr"`
	Mount     string            `json:"mount"`
	Failures  uint64            `json:"failures"`
	LastError string            `json:"last_error,omitempty"`
	Relay     *ntrip.RelayStats `json:"relay,omitempty"`
}

type StatusSnapshot struct {
	Service   string             `json:"service"`
	NowUTC    string             `json:"now_utc"`
	UptimeSec int64              `json:"uptime_sec"`
	Session   *gps.Status        `json:"session,omitempty"`
	Receiver  *receiver.Snapshot `json:"receiver,omitempty"`
	NTRIP     *NTRIPStatus       `json:"ntrip,omitempty"`
	Publish   *publish.Stats     `json:"publish,omitempty"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()

	snap := StatusSnapshot{
		Service:   "gpsbridge",
		NowUTC:    nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(start).Seconds()),
	}
	if sess := s.session.Load(); sess != nil {
		st := sess.Status()
		rs := sess.State().Snapshot()
		snap.Session = &st
		snap.Receiver = &rs
	}
	if t := s.ntripTarget.Load().(ntripTarget); t.addr != "" {
		ns := &NTRIPStatus{
			Addr:      t.addr,
			Mount:     t.mount,
			Failures:  s.relayRestarts.Load(),
			LastError: s.relayError.Load().(string),
		}
		if r := s.relay.Load(); r != nil {
			rs := r.Snapshot()
			ns.Relay = &rs
		}
		snap.NTRIP = ns
	}
	if h := s.hub.Load(); h != nil {
		ps := h.Stats()
		snap.Publish = &ps
	}
	return snap
}
