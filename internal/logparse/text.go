package logparse

import (
	"bytes"

	"github.com/loglens/obscore/internal/types"
)

// TextParser decodes a UTF-8, newline-delimited wire format: the simplest
// and most common log source. One input line is one record.
type TextParser struct{}

// NewTextParser returns a stateless text parser. Per spec §4.2 a parser
// may be stateless across calls; TextParser carries no state at all.
func NewTextParser() *TextParser {
	return &TextParser{}
}

// Parse implements Parser.
func (p *TextParser) Parse(data []byte, final bool) (Result, error) {
	if len(data) == 0 {
		if final {
			return Result{Kind: KindDone}, nil
		}
		return Result{Kind: KindIncomplete}, nil
	}

	idx := bytes.IndexByte(data, '\n')
	if idx < 0 {
		if !final {
			return Result{Kind: KindIncomplete}, nil
		}
		// Last line without a trailing newline: flush it since the
		// source will never produce the delimiter.
		line := strip(data)
		return Result{
			Kind:     KindItem,
			Consumed: len(data),
			Record:   types.Record{Text: escapeEmbeddedNewlines(string(line))},
		}, nil
	}

	line := strip(data[:idx])
	return Result{
		Kind:     KindItem,
		Consumed: idx + 1,
		Record:   types.Record{Text: escapeEmbeddedNewlines(string(line))},
	}, nil
}

// strip trims a single trailing \r (CRLF sources), mirroring the
// line-scanner's CRLF handling.
func strip(line []byte) []byte {
	if len(line) > 0 && line[len(line)-1] == '\r' {
		return line[:len(line)-1]
	}
	return line
}
