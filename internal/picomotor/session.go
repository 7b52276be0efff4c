package picomotor

import (
	"fmt"
	"sync"

	"github.com/banshee-data/picoalign/internal/monitoring"
)

// Session owns the transport to one controller and runs one transaction at
// a time: the controller has no request pipelining, so a query's reply must
// be read before the next frame is written.
type Session struct {
	transport Transport

	mu     sync.Mutex
	broken *TransportError
}

// NewSession creates a session over t.
func NewSession(t Transport) *Session {
	return &Session{transport: t}
}

// Transact writes cmd and, for queries only, reads and decodes the reply.
// hasReply is false for commands that expect no reply.
func (s *Session) Transact(cmd Command) (reply string, hasReply bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.broken != nil {
		return "", false, s.broken
	}

	frame := cmd.Frame()
	monitoring.Debugf("picomotor: -> %q", frame)
	if err := s.transport.WriteFrame(frame); err != nil {
		s.broken = &TransportError{Op: "write", Err: err}
		return "", false, s.broken
	}
	if !cmd.Query {
		return "", false, nil
	}

	raw, err := s.transport.ReadFrame(MaxReplyLen)
	if err != nil {
		s.broken = &TransportError{Op: "read", Err: err}
		return "", false, s.broken
	}
	reply = DecodeReply(raw)
	monitoring.Debugf("picomotor: <- %q", reply)
	return reply, true, nil
}

// Command parses text and transacts it. Malformed text is rejected before
// anything is written.
func (s *Session) Command(text string) (string, error) {
	cmd, err := ParseCommand(text)
	if err != nil {
		return "", err
	}
	reply, _, err := s.Transact(cmd)
	return reply, err
}

// Query transacts cmd and requires a reply.
func (s *Session) Query(cmd Command) (string, error) {
	if !cmd.Query {
		return "", fmt.Errorf("%w: %s", ErrNotQuery, cmd)
	}
	reply, _, err := s.Transact(cmd)
	return reply, err
}

// Err returns the transport failure that broke the session, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken == nil {
		return nil
	}
	return s.broken
}
