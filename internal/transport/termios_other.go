//go:build !linux

package transport

import "errors"

var errTermiosUnsupported = errors.New("termios serial not supported on this platform; use driver goserial")

type termiosPort struct {
	device string
	baud   int
}

func newTermios(device string, baud int) *termiosPort {
	return &termiosPort{device: device, baud: baud}
}

func (p *termiosPort) Name() string { return p.device }

func (p *termiosPort) Open() error {
	return &OpenError{Device: p.device, Baud: p.baud, Err: errTermiosUnsupported}
}

func (p *termiosPort) Close() error { return nil }

func (p *termiosPort) IsOpen() bool { return false }

func (p *termiosPort) ReadAvailable(buf []byte) (int, error) { return 0, ErrNotOpen }

func (p *termiosPort) Write(b []byte) (int, error) { return 0, ErrNotOpen }
