//go:build linux

package transport

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

type termiosPort struct {
	device string
	baud   int

	mu sync.Mutex
	fd int
}

func newTermios(device string, baud int) *termiosPort {
	return &termiosPort{device: device, baud: baud, fd: -1}
}

func (p *termiosPort) Name() string { return p.device }

func (p *termiosPort) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fd >= 0 {
		return nil
	}
	fd, err := openRaw(p.device, p.baud)
	if err != nil {
		return &OpenError{Device: p.device, Baud: p.baud, Err: err}
	}
	p.fd = fd
	return nil
}

func (p *termiosPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fd < 0 {
		return nil
	}
	err := unix.Close(p.fd)
	p.fd = -1
	return err
}

func (p *termiosPort) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fd >= 0
}

// ReadAvailable never blocks: the line is configured with VMIN=0, VTIME=0.
func (p *termiosPort) ReadAvailable(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fd < 0 {
		return 0, ErrNotOpen
	}
	n, err := unix.Read(p.fd, buf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return 0, nil
		}
		return 0, fmt.Errorf("read %s: %w", p.device, err)
	}
	if n < 0 {
		n = 0
	}
	return n, nil
}

func (p *termiosPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fd < 0 {
		return 0, ErrNotOpen
	}
	written := 0
	for written < len(b) {
		n, err := unix.Write(p.fd, b[written:])
		if err != nil {
			if errors.Is(err, unix.EINTR) || errors.Is(err, unix.EAGAIN) {
				continue
			}
			return written, fmt.Errorf("write %s: %w", p.device, err)
		}
		written += n
	}
	return written, nil
}

func openRaw(path string, baud int) (int, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return -1, err
	}

	ok := false
	defer func() {
		if !ok {
			_ = unix.Close(fd)
		}
	}()

	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return -1, err
	}
	spd, err := baudToUnix(baud)
	if err != nil {
		return -1, err
	}

	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL

	// Pure polling: read returns whatever is buffered, possibly nothing.
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 0

	t.Cflag &^= unix.CBAUD
	t.Cflag |= spd
	t.Ispeed = spd
	t.Ospeed = spd

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		return -1, err
	}
	ok = true
	return fd, nil
}

func baudToUnix(baud int) (uint32, error) {
	switch baud {
	case 4800:
		return unix.B4800, nil
	case 9600:
		return unix.B9600, nil
	case 19200:
		return unix.B19200, nil
	case 38400:
		return unix.B38400, nil
	case 57600:
		return unix.B57600, nil
	case 115200:
		return unix.B115200, nil
	case 230400:
		return unix.B230400, nil
	default:
		return 0, fmt.Errorf("unsupported baud %d", baud)
	}
}
