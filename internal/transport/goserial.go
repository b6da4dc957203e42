package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/jacobsa/go-serial/serial"
)

// goSerialPort drives the line through github.com/jacobsa/go-serial. Reads
// return after at most InterCharacterTimeout when the line is idle.
type goSerialPort struct {
	opts serial.OpenOptions

	mu  sync.Mutex
	rwc io.ReadWriteCloser
}

func newGoSerial(device string, baud int) *goSerialPort {
	return &goSerialPort{opts: serial.OpenOptions{
		PortName:              device,
		BaudRate:              uint(baud),
		DataBits:              8,
		StopBits:              1,
		ParityMode:            serial.PARITY_NONE,
		MinimumReadSize:       0,
		InterCharacterTimeout: 100,
	}}
}

func (p *goSerialPort) Name() string { return p.opts.PortName }

func (p *goSerialPort) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rwc != nil {
		return nil
	}
	rwc, err := serial.Open(p.opts)
	if err != nil {
		return &OpenError{Device: p.opts.PortName, Baud: int(p.opts.BaudRate), Err: err}
	}
	p.rwc = rwc
	return nil
}

func (p *goSerialPort) Close() error {
	p.mu.Lock()
	rwc := p.rwc
	p.rwc = nil
	p.mu.Unlock()
	if rwc == nil {
		return nil
	}
	return rwc.Close()
}

func (p *goSerialPort) IsOpen() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rwc != nil
}

func (p *goSerialPort) current() io.ReadWriteCloser {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rwc
}

func (p *goSerialPort) ReadAvailable(buf []byte) (int, error) {
	rwc := p.current()
	if rwc == nil {
		return 0, ErrNotOpen
	}
	n, err := rwc.Read(buf)
	if err != nil {
		// An idle line surfaces as a zero-byte read, which os.File reports
		// as io.EOF.
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		return n, fmt.Errorf("read %s: %w", p.opts.PortName, err)
	}
	return n, nil
}

func (p *goSerialPort) Write(b []byte) (int, error) {
	rwc := p.current()
	if rwc == nil {
		return 0, ErrNotOpen
	}
	return rwc.Write(b)
}
