package serialport

import (
	"fmt"

	"go.bug.st/serial"
)

// RealFactory opens hardware ports through go.bug.st/serial.
type RealFactory struct{}

// NewRealFactory creates a factory for hardware ports.
func NewRealFactory() *RealFactory {
	return &RealFactory{}
}

// Open opens the port at path and applies the read timeout.
func (RealFactory) Open(path string, opts PortOptions) (Porter, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}
	if err := applyReadTimeout(port, opts.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", path, err)
	}
	return port, nil
}

// List returns the serial ports present on the system.
func (RealFactory) List() ([]string, error) {
	return serial.GetPortsList()
}
