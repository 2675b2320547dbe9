package ami

import (
	"strings"

	"github.com/jscgfz/asterisk-events-worker-service/internal/types"
)

// Separators define the wire dialect of the manager protocol
type Separators struct {
	Command  string // terminates a block
	Line     string // separates properties within a block
	Property string // separates a key from its value
}

// DefaultSeparators is the stock Asterisk manager dialect
func DefaultSeparators() Separators {
	return Separators{
		Command:  "\r\n\r\n",
		Line:     "\r\n",
		Property: ": ",
	}
}

// Arg is one ordered action argument
type Arg struct {
	Key   string
	Value string
}

// Codec encodes actions and decodes event blocks. Values are not escaped and
// must not contain any separator.
type Codec struct {
	sep Separators
}

// NewCodec creates a codec for the given dialect
func NewCodec(sep Separators) *Codec {
	return &Codec{sep: sep}
}

// Separators returns the dialect in use
func (c *Codec) Separators() Separators {
	return c.sep
}

// Encode renders an action block, "Action" first, terminated by the command separator
func (c *Codec) Encode(action string, args ...Arg) []byte {
	var b strings.Builder
	b.WriteString("Action")
	b.WriteString(c.sep.Property)
	b.WriteString(action)
	for _, a := range args {
		b.WriteString(c.sep.Line)
		b.WriteString(a.Key)
		b.WriteString(c.sep.Property)
		b.WriteString(a.Value)
	}
	b.WriteString(c.sep.Command)
	return []byte(b.String())
}

// Decode parses one block (without its terminator) into an event
func (c *Codec) Decode(block string) types.ManagerEvent {
	var e types.ManagerEvent
	for _, line := range strings.Split(block, c.sep.Line) {
		key, value, ok := strings.Cut(line, c.sep.Property)
		if !ok {
			continue
		}
		e.Set(key, value)
	}
	return e
}

// Split appends chunk to carry and returns every complete block plus the
// trailing, possibly partial, remainder.
func (c *Codec) Split(carry, chunk string) (blocks []string, rest string) {
	parts := strings.Split(carry+chunk, c.sep.Command)
	return parts[:len(parts)-1], parts[len(parts)-1]
}
