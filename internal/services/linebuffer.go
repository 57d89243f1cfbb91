package services

import (
	"bytes"
	"strings"
)

// LineBuffer frames a chunked byte stream into newline-terminated lines. The incomplete trailing fragment
// of each write is kept and prefixed to the next one. Splitting happens on raw bytes, and '\n' never occurs
// inside a multi-byte UTF-8 sequence, so a rune split across two writes is decoded intact.
type LineBuffer struct {
	pending []byte
}

// Write appends p and returns every line it completed, without the terminator. A trailing '\r' is trimmed.
func (b *LineBuffer) Write(p []byte) []string {
	b.pending = append(b.pending, p...)

	var lines []string
	start := 0
	for {
		i := bytes.IndexByte(b.pending[start:], '\n')
		if i < 0 {
			break
		}
		lines = append(lines, strings.TrimSuffix(string(b.pending[start:start+i]), "\r"))
		start += i + 1
	}
	if start > 0 {
		b.pending = append(b.pending[:0], b.pending[start:]...)
	}
	return lines
}

// Flush returns the retained fragment and empties the buffer.
func (b *LineBuffer) Flush() string {
	rest := string(b.pending)
	b.pending = b.pending[:0]
	return rest
}
