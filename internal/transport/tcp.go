package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"
)

const (
	defaultDialTimeout = 2 * time.Second
	// tcpReadWait bounds how long ReadAvailable waits on an idle socket.
	tcpReadWait = 5 * time.Millisecond
)

// gpsdWatchNMEA switches gpsd to raw NMEA pass-through.
const gpsdWatchNMEA = "?WATCH={\"enable\":true,\"nmea\":true}\n"

var errPeerClosed = errors.New("peer closed connection")

// tcpPort reads NMEA from a TCP feed: gpsd, ser2net, or a receiver with a
// network interface.
type tcpPort struct {
	addr        string
	gpsdWatch   bool
	dialTimeout time.Duration
	dial        func(network, addr string, timeout time.Duration) (net.Conn, error)

	mu   sync.Mutex
	conn net.Conn
}

func newTCP(addr string, gpsdWatch bool, dialTimeout time.Duration) *tcpPort {
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}
	return &tcpPort{addr: addr, gpsdWatch: gpsdWatch, dialTimeout: dialTimeout, dial: net.DialTimeout}
}

func (p *tcpPort) Name() string { return "tcp://" + p.addr }

func (p *tcpPort) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		return nil
	}
	conn, err := p.dial("tcp", p.addr, p.dialTimeout)
	if err != nil {
		return &OpenError{Device: p.Name(), Err: err}
	}
	if p.gpsdWatch {
		if _, err := conn.Write([]byte(gpsdWatchNMEA)); err != nil {
			_ = conn.Close()
			return &OpenError{Device: p.Name(), Err: fmt.Errorf("gpsd watch: %w", err)}
		}
	}
	p.conn = conn
	return nil
}

func (p *tcpPort) Close() error {
	p.mu.Lock()
	conn := p.conn
	p.conn = nil
	p.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}

func (p *tcpPort) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != nil
}

func (p *tcpPort) current() net.Conn {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn
}

func (p *tcpPort) ReadAvailable(buf []byte) (int, error) {
	conn := p.current()
	if conn == nil {
		return 0, ErrNotOpen
	}
	_ = conn.SetReadDeadline(time.Now().Add(tcpReadWait))
	n, err := conn.Read(buf)
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, os.ErrDeadlineExceeded):
		return n, nil
	case errors.Is(err, io.EOF):
		return n, fmt.Errorf("read %s: %w", p.addr, errPeerClosed)
	default:
		return n, fmt.Errorf("read %s: %w", p.addr, err)
	}
}

func (p *tcpPort) Write(b []byte) (int, error) {
	conn := p.current()
	if conn == nil {
		return 0, ErrNotOpen
	}
	_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	return conn.Write(b)
}
