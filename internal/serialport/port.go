// Package serialport opens and configures the serial links used for the
// controller and the power meter. Everything above it sees a Porter, so
// tests run against TestableSerialPort instead of hardware.
package serialport

import (
	"io"
	"time"
)

// Porter defines the minimal interface needed for a serial port.
type Porter interface {
	io.ReadWriter
	io.Closer
}

// TimeoutPorter extends Porter with a read timeout. Once the timeout
// expires, Read returns (0, nil).
type TimeoutPorter interface {
	Porter
	SetReadTimeout(timeout time.Duration) error
}

// Factory opens serial ports and lists the ones present.
type Factory interface {
	Open(path string, opts PortOptions) (Porter, error)
	List() ([]string, error)
}

// applyReadTimeout sets the read timeout on ports that support one.
func applyReadTimeout(p Porter, timeout time.Duration) error {
	tp, ok := p.(TimeoutPorter)
	if !ok {
		return nil
	}
	return tp.SetReadTimeout(timeout)
}
