// Package logparse implements the Parser capability of spec §4.2: decode a
// byte slice into zero or more records plus a remainder, reporting bytes
// consumed. It ships two concrete parsers, Text and DLT, behind the same
// interface so the producer (internal/producer) never needs to know which
// wire format it is driving — the dynamic-dispatch-over-parsers design
// note in spec §9.
package logparse

import (
	"strings"

	"github.com/loglens/obscore/internal/types"
)

// Kind discriminates a Parse result (spec §4.2: Item | Skipped |
// Incomplete | Done).
type Kind int

const (
	KindItem Kind = iota
	KindSkipped
	KindIncomplete
	KindDone
)

// Result is what a single Parse call reports.
type Result struct {
	Kind     Kind
	Consumed int // bytes consumed from the input, valid for Item and Skipped
	Record   types.Record
}

// Parser decodes a byte slice and returns, for each fully-formed record,
// one of Item, Skipped, Incomplete, or Done, plus bytes consumed (spec
// §4.2). Implementations must never depend on goroutine identity — the
// producer may run parse calls on a blocking-capable pool (spec §5).
type Parser interface {
	// Parse inspects data and decodes at most one record (or skip span).
	// final indicates the byte source is exhausted and will never yield
	// more bytes (non-reconnectable EOF); a parser uses this to flush a
	// trailing record that has no closing delimiter.
	Parse(data []byte, final bool) (Result, error)
}

// escapeEmbeddedNewlines enforces the Record.Text invariant (spec §3: "as
// text" yields exactly one line) — this is the parser/writer contract
// spec §6 calls out: embedded LFs are escaped by the parser before
// writing, not by the writer.
func escapeEmbeddedNewlines(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}
	s = strings.ReplaceAll(s, "\r\n", "\\n")
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, "\r", "\\n")
	return s
}
