package ntrip

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http/httputil"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"gpsbridge/internal/transport"
)

var (
	// ErrMountNotFound is returned when the caster answers a stream request
	// with its source table.
	ErrMountNotFound = errors.New("ntrip: mountpoint not found")
	// ErrClosedByPeer ends a relay whose caster closed the connection.
	ErrClosedByPeer = errors.New("ntrip: connection closed by caster")
)

// StatusError is a stream request the caster refused.
type StatusError struct {
	Line string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ntrip: caster refused stream: %q", e.Line)
}

// Forwarder receives correction bytes. transport.Shared satisfies it.
type Forwarder interface {
	IsOpen() bool
	Write(p []byte) (int, error)
}

// PositionSource returns the current GGA sentence for VRS casters, or false
// when there is no fix to report.
type PositionSource func() (string, bool)

type StreamOption func(*streamOptions)

type streamOptions struct {
	position PositionSource
}

// WithPosition uploads the receiver position every GGAInterval.
func WithPosition(src PositionSource) StreamOption {
	return func(o *streamOptions) { o.position = src }
}

type RelayStats struct {
	Mount          string `json:"mount"`
	Running        bool   `json:"running"`
	BytesReceived  uint64 `json:"bytes_received"`
	BytesForwarded uint64 `json:"bytes_forwarded"`
	ChunksSkipped  uint64 `json:"chunks_skipped"`
	GGASent        uint64 `json:"gga_sent"`
	LastReceive    string `json:"last_receive_utc,omitempty"`
	LastError      string `json:"last_error,omitempty"`
}

// Relay copies one correction stream to a Forwarder until it is closed or
// fails. It never reconnects on its own.
type Relay struct {
	mount   string
	conn    net.Conn
	dst     Forwarder
	timeout time.Duration

	closing atomic.Bool
	done    chan struct{}
	stopCtx func() bool

	received  atomic.Uint64
	forwarded atomic.Uint64
	skipped   atomic.Uint64
	ggaSent   atomic.Uint64
	lastRecv  atomic.Int64

	mu  sync.Mutex
	err error
}

// StartStream requests mount and relays the response body to dst in the
// background. Handshake failures are returned directly: ErrMountNotFound,
// *StatusError, or a dial/IO error.
func (c *Client) StartStream(ctx context.Context, mount string, dst Forwarder, opts ...StreamOption) (*Relay, error) {
	if strings.TrimSpace(mount) == "" {
		return nil, errors.New("ntrip: mountpoint is empty")
	}
	if dst == nil {
		return nil, errors.New("ntrip: forwarder is nil")
	}
	var o streamOptions
	for _, opt := range opts {
		opt(&o)
	}

	conn, err := c.open(ctx, mount)
	if err != nil {
		return nil, err
	}
	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	br := bufio.NewReader(conn)
	body, err := readStreamHeader(br)
	if err != nil {
		_ = conn.Close()
		if errors.Is(err, ErrMountNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrMountNotFound, mount)
		}
		return nil, err
	}

	r := &Relay{
		mount:   mount,
		conn:    conn,
		dst:     dst,
		timeout: c.cfg.ReadTimeout,
		done:    make(chan struct{}),
	}
	r.stopCtx = context.AfterFunc(ctx, func() { r.shutdown() })

	log.WithFields(log.Fields{"addr": c.cfg.Addr, "mount": mount}).Info("ntrip stream started")
	go r.run(body)
	if o.position != nil {
		go r.uploadPosition(o.position, c.cfg.GGAInterval)
	}
	return r, nil
}

// readStreamHeader consumes the status line and headers and returns the
// reader positioned at the first correction byte.
func readStreamHeader(br *bufio.Reader) (io.Reader, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("ntrip: read response: %w", err)
	}
	status := strings.TrimRight(line, "\r\n")

	switch {
	case status == "ICY 200 OK":
		// NTRIP 1.0: data follows immediately.
		return br, nil
	case strings.HasPrefix(status, "SOURCETABLE"):
		return nil, ErrMountNotFound
	case strings.HasPrefix(status, "HTTP/1."):
		code := statusCode(status)
		if code != 200 {
			return nil, &StatusError{Line: status, Code: code}
		}
	default:
		return nil, &StatusError{Line: status}
	}

	chunked := false
	for {
		h, err := br.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("ntrip: read headers: %w", err)
		}
		h = strings.TrimRight(h, "\r\n")
		if h == "" {
			break
		}
		name, value, ok := strings.Cut(h, ":")
		if ok && strings.EqualFold(strings.TrimSpace(name), "Transfer-Encoding") &&
			strings.EqualFold(strings.TrimSpace(value), "chunked") {
			chunked = true
		}
	}
	if chunked {
		return httputil.NewChunkedReader(br), nil
	}
	return br, nil
}

func statusCode(status string) int {
	parts := strings.Fields(status)
	if len(parts) < 2 {
		return 0
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0
	}
	return code
}

func (r *Relay) run(body io.Reader) {
	var runErr error
	defer func() {
		r.stopCtx()
		_ = r.conn.Close()
		r.mu.Lock()
		r.err = runErr
		r.mu.Unlock()
		close(r.done)
		fields := log.Fields{"mount": r.mount, "received": r.received.Load()}
		if runErr != nil {
			log.WithFields(fields).WithError(runErr).Warn("ntrip stream ended")
		} else {
			log.WithFields(fields).Info("ntrip stream closed")
		}
	}()

	buf := make([]byte, 4096)
	for {
		_ = r.conn.SetReadDeadline(time.Now().Add(r.timeout))
		n, err := body.Read(buf)
		if n > 0 {
			r.received.Add(uint64(n))
			r.lastRecv.Store(time.Now().UnixNano())
			if ferr := r.forward(buf[:n]); ferr != nil {
				runErr = ferr
				return
			}
		}
		if err == nil {
			continue
		}
		switch {
		case r.closing.Load():
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			runErr = ErrClosedByPeer
		default:
			runErr = fmt.Errorf("ntrip: read stream: %w", err)
		}
		return
	}
}

// forward writes one chunk unmodified. Chunks that arrive while the receiver
// port is closed are skipped.
func (r *Relay) forward(p []byte) error {
	if !r.dst.IsOpen() {
		r.skipped.Add(1)
		return nil
	}
	n, err := r.dst.Write(p)
	if errors.Is(err, transport.ErrNotOpen) {
		r.skipped.Add(1)
		return nil
	}
	if err != nil {
		return fmt.Errorf("ntrip: forward corrections: %w", err)
	}
	r.forwarded.Add(uint64(n))
	return nil
}

func (r *Relay) uploadPosition(src PositionSource, every time.Duration) {
	send := func() {
		gga, ok := src()
		if !ok {
			return
		}
		_ = r.conn.SetWriteDeadline(time.Now().Add(every))
		if _, err := io.WriteString(r.conn, gga+"\r\n"); err != nil {
			log.WithError(err).Debug("ntrip: GGA upload failed")
			return
		}
		r.ggaSent.Add(1)
	}

	send()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-r.done:
			return
		case <-t.C:
			send()
		}
	}
}

func (r *Relay) shutdown() {
	if r.closing.Swap(true) {
		return
	}
	_ = r.conn.Close()
}

// Close ends the relay and waits for the relay goroutine. It is idempotent.
func (r *Relay) Close() error {
	r.shutdown()
	<-r.done
	return nil
}

// Done is closed when the relay has ended.
func (r *Relay) Done() <-chan struct{} { return r.done }

// Err reports why the relay ended. It is nil while running and after Close.
func (r *Relay) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

func (r *Relay) Mount() string { return r.mount }

func (r *Relay) Snapshot() RelayStats {
	st := RelayStats{
		Mount:          r.mount,
		BytesReceived:  r.received.Load(),
		BytesForwarded: r.forwarded.Load(),
		ChunksSkipped:  r.skipped.Load(),
		GGASent:        r.ggaSent.Load(),
	}
	select {
	case <-r.done:
	default:
		st.Running = true
	}
	if ns := r.lastRecv.Load(); ns != 0 {
		st.LastReceive = time.Unix(0, ns).UTC().Format(time.RFC3339Nano)
	}
	if err := r.Err(); err != nil {
		st.LastError = err.Error()
	}
	return st
}
