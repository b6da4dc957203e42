package transport

import (
	"bufio"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	return ln
}

func TestTCP_ReadAvailableAndWatch(t *testing.T) {
	ln := listen(t)
	gotWatch := make(chan string, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		line, _ := bufio.NewReader(c).ReadString('\n')
		gotWatch <- line
		_, _ = c.Write([]byte("$GPGGA,1*00\r\n"))
		time.Sleep(200 * time.Millisecond)
	}()

	p := newTCP(ln.Addr().String(), true, time.Second)
	require.NoError(t, p.Open())
	defer p.Close()

	assert.Equal(t, gpsdWatchNMEA, <-gotWatch)

	buf := make([]byte, 64)
	var got []byte
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < 13 && time.Now().Before(deadline) {
		n, err := p.ReadAvailable(buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}
	assert.Equal(t, "$GPGGA,1*00\r\n", string(got))

	// Idle socket: no data, no error.
	n, err := p.ReadAvailable(buf)
	assert.NoError(t, err)
	assert.Zero(t, n)
}

func TestTCP_PeerCloseIsAnError(t *testing.T) {
	ln := listen(t)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			_ = c.Close()
		}
	}()

	p := newTCP(ln.Addr().String(), false, time.Second)
	require.NoError(t, p.Open())
	defer p.Close()

	buf := make([]byte, 8)
	deadline := time.Now().Add(2 * time.Second)
	var err error
	for err == nil && time.Now().Before(deadline) {
		_, err = p.ReadAvailable(buf)
	}
	assert.ErrorIs(t, err, errPeerClosed)
}

func TestTCP_OpenFailure(t *testing.T) {
	p := newTCP("127.0.0.1:1", false, time.Second)
	p.dial = func(network, addr string, timeout time.Duration) (net.Conn, error) {
		return nil, errors.New("refused")
	}
	err := p.Open()
	var oe *OpenError
	require.True(t, errors.As(err, &oe))
	assert.Equal(t, "tcp://127.0.0.1:1", oe.Device)
	assert.False(t, p.IsOpen())
}
