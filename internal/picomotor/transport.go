package picomotor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// Transport is the byte channel to the controller. Implementations only
// move bytes; framing and sequencing belong to Session.
type Transport interface {
	// WriteFrame writes one complete wire frame.
	WriteFrame(frame []byte) error
	// ReadFrame reads a single reply of at most max bytes.
	ReadFrame(max int) ([]byte, error)
}

// PortTransport adapts an io.ReadWriter such as a serial port or TCP
// connection into a Transport. Reads return once a '\n' arrives, max bytes
// have been read, or the underlying reader times out (a zero-length read).
type PortTransport struct {
	rw io.ReadWriter
}

// NewPortTransport wraps rw.
func NewPortTransport(rw io.ReadWriter) *PortTransport {
	return &PortTransport{rw: rw}
}

// WriteFrame writes frame in a single call. A short write is an error.
func (t *PortTransport) WriteFrame(frame []byte) error {
	n, err := t.rw.Write(frame)
	if err != nil {
		return err
	}
	if n != len(frame) {
		return ErrWriteFailed
	}
	return nil
}

// ReadFrame accumulates reply bytes until a line terminator, max bytes, a
// timeout or EOF.
func (t *PortTransport) ReadFrame(max int) ([]byte, error) {
	if max <= 0 {
		return nil, fmt.Errorf("invalid read size %d", max)
	}
	buf := make([]byte, 0, max)
	chunk := make([]byte, max)
	for len(buf) < max {
		n, err := t.rw.Read(chunk[:max-len(buf)])
		buf = append(buf, chunk[:n]...)
		if bytes.IndexByte(buf, '\n') >= 0 {
			return buf, nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) && len(buf) > 0 {
				return buf, nil
			}
			return buf, err
		}
		if n == 0 {
			if len(buf) > 0 {
				return buf, nil
			}
			return nil, ErrReplyTimeout
		}
	}
	return buf, nil
}

// TCPLink is a controller connection over Ethernet (the 8742 listens on
// port 23). Reads time out like a serial port: a read that sees no data
// within the timeout returns (0, nil).
type TCPLink struct {
	net.Conn
	readTimeout time.Duration
}

// DialTCP connects to a controller at address.
func DialTCP(ctx context.Context, address string, readTimeout time.Duration) (*TCPLink, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to dial controller %s: %w", address, err)
	}
	return &TCPLink{Conn: conn, readTimeout: readTimeout}, nil
}

func (l *TCPLink) Read(p []byte) (int, error) {
	if l.readTimeout > 0 {
		if err := l.Conn.SetReadDeadline(time.Now().Add(l.readTimeout)); err != nil {
			return 0, err
		}
	}
	n, err := l.Conn.Read(p)
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return n, nil
	}
	return n, err
}
