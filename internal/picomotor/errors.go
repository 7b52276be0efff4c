package picomotor

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedCommand is returned when command text does not match the
	// [axis]mnemonic[parameter] grammar. Nothing is sent to the device.
	ErrMalformedCommand = errors.New("malformed command")

	// ErrUnknownMotorCode is returned when a motor-type reply carries a code
	// outside the known lookup.
	ErrUnknownMotorCode = errors.New("unknown motor code")

	// ErrDeviceNotReady is reported by the health monitor when a poll of the
	// controller fails.
	ErrDeviceNotReady = errors.New("device not ready")

	// ErrInvalidAxis is returned for axis numbers outside the controller's
	// range.
	ErrInvalidAxis = errors.New("invalid axis")

	// ErrMalformedReply is returned when a query reply cannot be parsed.
	ErrMalformedReply = errors.New("malformed reply")

	// ErrWriteFailed is returned when a frame is only partially written.
	ErrWriteFailed = errors.New("failed to write frame")

	// ErrNotQuery is returned when Session.Query is given a command that
	// produces no reply.
	ErrNotQuery = errors.New("not a query")

	// ErrReplyTimeout is returned when a query receives no reply bytes.
	ErrReplyTimeout = errors.New("timed out waiting for reply")
)

// TransportError reports a failed read or write on the device link. A
// session that returned one is unusable until it is re-established.
type TransportError struct {
	Op  string // "write" or "read"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
