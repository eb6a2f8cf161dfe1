// Package types holds the data-model entities shared across the
// observation pipeline: identifiers, records, filters, and the small
// value types the façade hands back to callers.
package types

import (
	"fmt"

	"github.com/google/uuid"
)

// SessionID uniquely identifies a live session for the lifetime of the
// process. See spec §3: created at open, dropped at close.
type SessionID = uuid.UUID

// NewSessionID mints a fresh session identifier.
func NewSessionID() SessionID {
	return uuid.New()
}

// OperationID correlates a submitted command with its lifecycle events.
// Accepted in canonical hyphenated form per spec §6.
type OperationID = uuid.UUID

// ParseOperationID parses a canonical hyphenated UUID string into an
// OperationID, failing with the same error a malformed command should
// surface as InvalidArgs upstream.
func ParseOperationID(s string) (OperationID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid operation id %q: %w", s, err)
	}
	return id, nil
}

// Record is one fully parsed message from a source: its textual
// projection (exactly one line, no embedded LF — spec §3) and an optional
// binary projection for the sidecar attachment file.
type Record struct {
	Text       string
	Binary     []byte
	Attachment *RecordAttachment
}

// RecordAttachment is a blob a parser has identified as worth lifting
// into a standalone sidecar file rather than inlining into the binary
// projection — e.g. a non-verbose DLT payload fragment a plugin parser
// recognizes as an embedded image or certificate. Ext drives both the
// on-disk file name suffix and the MIME sniff (spec §3 Attachment).
type RecordAttachment struct {
	Data []byte
	Ext  string
}

// Filter is a single disjunction term as received from outside (spec §6).
type Filter struct {
	Value         string
	IsRegex       bool
	CaseSensitive bool
	IsWord        bool
}

// Nature is a bitset of flags tagging a GrabbedElement's provenance.
type Nature uint8

const (
	// NatureNone marks a plain content row.
	NatureNone Nature = 0
	// NatureSearchMatch marks a row surfaced via grab_search.
	NatureSearchMatch Nature = 1 << iota
	// NatureBookmarked marks a row flagged by the UI (carried through
	// for forward compatibility with the bookmark feature the original
	// desktop binding exposes; this engine never sets it itself).
	NatureBookmarked
)

// Element is one line returned to the caller from a grab (spec
// GrabbedElement): source_id, content, nature bitset, position.
type Element struct {
	SourceID uint16
	Content  string
	Nature   Nature
	Position uint64 // absolute row in the content file

	// Row is only meaningful for grab_search results: the row within the
	// search view (0-based index into the match file), as distinct from
	// Position, which is the original content row (spec §4.10 step 4).
	Row uint64
}

// Severity classifies a user-visible failure (spec §7).
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Attachment is a sidecar binary blob referenced by one or more rows
// (spec §3).
type Attachment struct {
	UUID uuid.UUID
	Path string
	Size int64
	Mime string
	Ext  string
	Rows map[uint64]struct{}
}
