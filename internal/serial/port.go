// Package serial owns the link to the display: opening the port, waiting
// for the device to boot, retrying forever, and serializing every byte that
// crosses the wire behind one lock.
package serial

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	tarm "github.com/tarm/serial"
)

// Port is an open byte stream to the device. Read blocks for at most the
// port's read timeout and returns (0, nil) if nothing arrived.
type Port interface {
	io.ReadWriteCloser
}

// Opener opens the port. It is called once per connection attempt.
type Opener interface {
	Open() (Port, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func() (Port, error)

func (f OpenerFunc) Open() (Port, error) { return f() }

const defaultReadTimeout = 100 * time.Millisecond

// SerialOpener opens a hardware serial port with the device's fixed
// settings (8N1, no flow control).
type SerialOpener struct {
	Name        string
	Baud        int
	ReadTimeout time.Duration
}

func (o SerialOpener) Open() (Port, error) {
	timeout := o.ReadTimeout
	if timeout <= 0 {
		timeout = defaultReadTimeout
	}

	p, err := tarm.OpenPort(&tarm.Config{
		Name:        o.Name,
		Baud:        o.Baud,
		ReadTimeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s at %d baud: %w", o.Name, o.Baud, err)
	}
	return &hardwarePort{port: p, name: o.Name}, nil
}

// hardwarePort normalizes tarm/serial's timeout signalling.
type hardwarePort struct {
	port *tarm.Port
	name string
}

func (p *hardwarePort) Read(b []byte) (int, error) {
	n, err := p.port.Read(b)
	if n == 0 && errors.Is(err, io.EOF) {
		// A timed-out read looks the same as an unplugged adapter on some
		// drivers, so check that the device node still exists.
		if runtime.GOOS != "windows" {
			if _, statErr := os.Stat(p.name); statErr != nil {
				return 0, fmt.Errorf("%s disappeared: %w", p.name, statErr)
			}
		}
		return 0, nil
	}
	return n, err
}

func (p *hardwarePort) Write(b []byte) (int, error) {
	return p.port.Write(b)
}

func (p *hardwarePort) Close() error {
	return p.port.Close()
}
