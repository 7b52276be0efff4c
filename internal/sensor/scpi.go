package sensor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/banshee-data/picoalign/internal/monitoring"
)

// DefaultSCPIQuery asks a power meter for one power reading.
const DefaultSCPIQuery = "MEAS:POW?"

// SCPIMeter reads a power meter that answers an SCPI query with a single
// floating point value per line, e.g. "1.234E-03".
type SCPIMeter struct {
	mu     sync.Mutex
	w      io.Writer
	r      *bufio.Reader
	query  string
	closer io.Closer
}

// NewSCPIMeter wraps rw. An empty query selects DefaultSCPIQuery.
func NewSCPIMeter(rw io.ReadWriter, query string) *SCPIMeter {
	if query == "" {
		query = DefaultSCPIQuery
	}
	m := &SCPIMeter{w: rw, r: bufio.NewReader(rw), query: query}
	if c, ok := rw.(io.Closer); ok {
		m.closer = c
	}
	return m
}

// Sample sends the query and parses the reply.
func (m *SCPIMeter) Sample(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := io.WriteString(m.w, m.query+"\n"); err != nil {
		return 0, fmt.Errorf("failed to send %q: %w", m.query, err)
	}
	line, err := m.r.ReadString('\n')
	if err != nil && (line == "" || err != io.EOF) {
		return 0, fmt.Errorf("failed to read meter reply: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, ErrNoReading
	}
	v, err := strconv.ParseFloat(line, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrNoReading, line)
	}
	monitoring.Debugf("sensor: %s -> %g", m.query, v)
	return v, nil
}

// Close closes the underlying link if it is closable.
func (m *SCPIMeter) Close() error {
	if m.closer == nil {
		return nil
	}
	return m.closer.Close()
}
