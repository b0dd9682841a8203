package process

import (
	"bytes"
	"strings"
)

// LineBuffer reassembles lines from arbitrarily split pipe reads.
// Both '\n' and '\r' terminate a line, so carriage-return progress redraws
// surface as separate lines. Blank lines are dropped.
type LineBuffer struct {
	pending []byte
}

// Feed appends p and returns every complete, non-blank line it closes.
func (b *LineBuffer) Feed(p []byte) []string {
	b.pending = append(b.pending, p...)

	var lines []string
	for {
		i := bytes.IndexAny(b.pending, "\r\n")
		if i < 0 {
			break
		}
		if line := strings.TrimSpace(string(b.pending[:i])); line != "" {
			lines = append(lines, line)
		}
		b.pending = b.pending[i+1:]
	}
	if len(b.pending) == 0 {
		b.pending = nil
	}
	return lines
}

// Flush returns the unterminated remainder (trimmed) and empties the buffer.
func (b *LineBuffer) Flush() string {
	rest := strings.TrimSpace(string(b.pending))
	b.pending = nil
	return rest
}
