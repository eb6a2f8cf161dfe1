package logparse

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"github.com/loglens/obscore/internal/types"
)

// storageHeaderMagic is the 4-byte pattern that opens a DLT storage
// header ("DLT\x01").
var storageHeaderMagic = [4]byte{'D', 'L', 'T', 0x01}

const (
	storageHeaderLen = 16 // magic(4) + seconds(4) + microseconds(4) + ecu id(4)
	standardHeaderLen = 4  // htyp(1) + mcnt(1) + len(2, big-endian)
)

// DLTParser decodes the base (non-extended) DLT frame: a storage header
// followed by a standard header whose length field gives the total frame
// size. Verbose-mode payload interpretation, extended headers, and
// non-verbose argument decoding are out of scope for this engine — the
// textual projection is a hex dump of the payload, which is exactly what
// an unrecognized-argument DLT viewer falls back to.
type DLTParser struct{}

// NewDLTParser returns a stateless DLT frame parser.
func NewDLTParser() *DLTParser {
	return &DLTParser{}
}

// Parse implements Parser.
func (p *DLTParser) Parse(data []byte, final bool) (Result, error) {
	if len(data) == 0 {
		if final {
			return Result{Kind: KindDone}, nil
		}
		return Result{Kind: KindIncomplete}, nil
	}

	// Resynchronize on the storage header magic; bytes before the first
	// occurrence are noise to be skipped (spec §4.2: Skipped).
	idx := indexMagic(data)
	if idx > 0 {
		return Result{Kind: KindSkipped, Consumed: idx}, nil
	}
	if idx < 0 {
		// No magic anywhere in the buffer. If the buffer is at least as
		// long as the magic (or this is the final call), all of it is
		// skipped as noise; a shorter buffer waits for more bytes.
		if len(data) >= len(storageHeaderMagic) || final {
			return Result{Kind: KindSkipped, Consumed: len(data)}, nil
		}
		return Result{Kind: KindIncomplete}, nil
	}

	if len(data) < storageHeaderLen+standardHeaderLen {
		if final {
			return Result{Kind: KindSkipped, Consumed: len(data)}, nil
		}
		return Result{Kind: KindIncomplete}, nil
	}

	ecuID := string(data[12:16])
	htyp := data[storageHeaderLen]
	mcnt := data[storageHeaderLen+1]
	frameLen := int(binary.BigEndian.Uint16(data[storageHeaderLen+2 : storageHeaderLen+4]))

	total := storageHeaderLen + frameLen
	if frameLen < standardHeaderLen || total < storageHeaderLen+standardHeaderLen {
		// A malformed length field; treat the storage header as noise and
		// let the caller resynchronize on the next magic occurrence.
		return Result{Kind: KindSkipped, Consumed: storageHeaderLen}, nil
	}
	if len(data) < total {
		if final {
			return Result{Kind: KindSkipped, Consumed: len(data)}, nil
		}
		return Result{Kind: KindIncomplete}, nil
	}

	payload := data[storageHeaderLen+standardHeaderLen : total]
	text := fmt.Sprintf("[%s] htyp=0x%02x mcnt=%d len=%d payload=%s",
		ecuID, htyp, mcnt, frameLen, hex.EncodeToString(payload))

	binCopy := make([]byte, total)
	copy(binCopy, data[:total])

	return Result{
		Kind:     KindItem,
		Consumed: total,
		Record: types.Record{
			Text:   escapeEmbeddedNewlines(text),
			Binary: binCopy,
		},
	}, nil
}

// indexMagic returns the index of storageHeaderMagic in data, or -1 if
// absent.
func indexMagic(data []byte) int {
	for i := 0; i+len(storageHeaderMagic) <= len(data); i++ {
		if data[i] == storageHeaderMagic[0] && data[i+1] == storageHeaderMagic[1] &&
			data[i+2] == storageHeaderMagic[2] && data[i+3] == storageHeaderMagic[3] {
			return i
		}
	}
	return -1
}
