// Package picomotor speaks the ASCII command protocol of New Focus 8742
// style open-loop picomotor controllers: it encodes commands into wire
// frames, decodes replies, and sequences one transaction at a time over a
// byte transport.
package picomotor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

const (
	// UnitPrefix addresses the first (and only supported) controller.
	UnitPrefix = "1>"

	// Terminator ends every wire frame.
	Terminator = '\r'

	// MaxReplyLen bounds how many bytes are read for a single reply.
	MaxReplyLen = 100
)

// commandPattern is the compact command grammar: an optional single digit
// axis, a mnemonic of two or more letters (a '?' marks a query), and an
// optional signed-integer-like parameter.
var commandPattern = regexp.MustCompile(`^([0-9]?)([a-zA-Z?]{2,})([0-9+-]*)$`)

// Command is one parsed controller command. HasAxis distinguishes a
// literal "0" axis from no axis at all.
type Command struct {
	Axis      int
	HasAxis   bool
	Mnemonic  string
	Parameter string
	Query     bool
}

// ParseCommand parses text of the form [axis]mnemonic[parameter], e.g.
// "2PA150", "VE?" or "3MV-". Only the syntactic shape is checked; unknown
// mnemonics are left to the controller to reject.
func ParseCommand(text string) (Command, error) {
	m := commandPattern.FindStringSubmatch(text)
	if m == nil {
		return Command{}, fmt.Errorf("%w: %q", ErrMalformedCommand, text)
	}

	cmd := Command{
		Mnemonic:  m[2],
		Parameter: m[3],
		Query:     strings.Contains(m[2], "?"),
	}
	if m[1] != "" {
		cmd.Axis = int(m[1][0] - '0')
		cmd.HasAxis = true
	}
	return cmd, nil
}

// NewCommand builds a command for the given axis (0 for none).
func NewCommand(axis int, mnemonic string) Command {
	return Command{
		Axis:     axis,
		HasAxis:  axis > 0,
		Mnemonic: mnemonic,
		Query:    strings.Contains(mnemonic, "?"),
	}
}

// WithParam returns a copy of c carrying v as its parameter.
func (c Command) WithParam(v int) Command {
	c.Parameter = strconv.Itoa(v)
	return c
}

// Frame renders the command as a carriage-return terminated wire frame.
func (c Command) Frame() []byte {
	var b strings.Builder
	if c.HasAxis {
		b.WriteString(UnitPrefix)
		b.WriteString(strconv.Itoa(c.Axis))
		b.WriteByte(' ')
	}
	b.WriteString(c.Mnemonic)
	if c.Parameter != "" {
		b.WriteByte(' ')
		b.WriteString(c.Parameter)
	}
	b.WriteByte(Terminator)
	return []byte(b.String())
}

// String returns the compact form of the command, e.g. "2PA150".
func (c Command) String() string {
	var b strings.Builder
	if c.HasAxis {
		b.WriteString(strconv.Itoa(c.Axis))
	}
	b.WriteString(c.Mnemonic)
	b.WriteString(c.Parameter)
	return b.String()
}

// Encode parses text and returns its wire frame.
func Encode(text string) ([]byte, error) {
	cmd, err := ParseCommand(text)
	if err != nil {
		return nil, err
	}
	return cmd.Frame(), nil
}

// DecodeReply turns reply bytes into text, one rune per byte, with trailing
// whitespace and control characters removed.
func DecodeReply(reply []byte) string {
	runes := make([]rune, len(reply))
	for i, b := range reply {
		runes[i] = rune(b)
	}
	return strings.TrimRightFunc(string(runes), func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsControl(r)
	})
}
