// Package udp sends NMEA sentences as UDP datagrams, the way chart plotters
// and navigation apps expect an NMEA-over-UDP feed.
package udp

import (
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
)

type udpConn interface {
	Write(p []byte) (int, error)
	Close() error
}

type resolveFunc func(network, address string) (*net.UDPAddr, error)

type dialFunc func(network string, laddr, raddr *net.UDPAddr) (udpConn, error)

type Broadcaster struct {
	dest string

	mu   sync.Mutex
	conn udpConn

	sent   atomic.Uint64
	failed atomic.Uint64
}

func NewBroadcaster(dest string) (*Broadcaster, error) {
	return newBroadcaster(dest, net.ResolveUDPAddr, func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		// DialUDP selects a suitable local address automatically.
		return net.DialUDP(network, laddr, raddr)
	})
}

func newBroadcaster(dest string, resolve resolveFunc, dial dialFunc) (*Broadcaster, error) {
	addr, err := resolve("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("resolve dest: %w", err)
	}
	conn, err := dial("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial udp: %w", err)
	}
	return &Broadcaster{dest: dest, conn: conn}, nil
}

func (b *Broadcaster) Dest() string { return b.dest }

// Send writes payload as one datagram.
func (b *Broadcaster) Send(payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return net.ErrClosed
	}
	if _, err := b.conn.Write(payload); err != nil {
		b.failed.Add(1)
		return err
	}
	b.sent.Add(1)
	return nil
}

// SendSentence sends one sentence terminated by CRLF.
func (b *Broadcaster) SendSentence(sentence string) error {
	sentence = strings.TrimRight(sentence, "\r\n")
	if sentence == "" {
		return nil
	}
	return b.Send([]byte(sentence + "\r\n"))
}

type Stats struct {
	Sent   uint64 `json:"sent"`
	Failed uint64 `json:"failed"`
}

func (b *Broadcaster) Stats() Stats {
	return Stats{Sent: b.sent.Load(), Failed: b.failed.Load()}
}

func (b *Broadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return nil
	}
	err := b.conn.Close()
	b.conn = nil
	return err
}
