// Package grabber implements spec §4.6: translate a row range into a byte
// range via the Map, read exactly that slice from the content file, split
// it into lines, and tag each with source id, position, and nature flags.
package grabber

import (
	"bytes"
	"os"
	"sync"

	"github.com/loglens/obscore/internal/errkind"
	"github.com/loglens/obscore/internal/mapindex"
	"github.com/loglens/obscore/internal/types"
)

// Grabber owns a read handle on a content file plus the Map indexing it.
// Per spec §3 ownership, the Map is owned by the Grabber that indexes the
// file; readers (Grab callers) receive a defensive copy of elements, not
// of the Map itself.
type Grabber struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	m        *mapindex.Map
	sourceID uint16
}

// New opens path read-only and pairs it with m.
func New(path string, m *mapindex.Map, sourceID uint16) (*Grabber, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errkind.IO("grabber.open", err)
	}
	return &Grabber{path: path, file: f, m: m, sourceID: sourceID}, nil
}

// Close releases the grabber's file handle.
func (g *Grabber) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.file.Close()
}

// Grab implements spec §4.6's algorithm. An empty map, or a row_range
// entirely beyond rows_total, yields an empty (not error) result. A file
// shorter than the map claims (truncated beneath the map) fails with
// StaleMap.
func (g *Grabber) Grab(rows mapindex.RowRange) ([]types.Element, error) {
	byteRange, coveredRows, ok := g.m.ByteRangeFor(rows)
	if !ok {
		return nil, nil
	}

	length := int64(byteRange.End - byteRange.Start)
	if length <= 0 {
		return nil, nil
	}

	g.mu.Lock()
	buf := make([]byte, length)
	n, err := g.file.ReadAt(buf, int64(byteRange.Start))
	g.mu.Unlock()
	if err != nil {
		return nil, errkind.StaleMap("grabber.Grab")
	}
	if int64(n) != length {
		return nil, errkind.StaleMap("grabber.Grab")
	}

	lines := splitLines(buf)
	if uint64(len(lines)) != coveredRows.End-coveredRows.Start+1 {
		// The map claimed a row count the bytes don't actually contain —
		// the file was mutated beneath the map (spec §4.6 StaleMap case).
		return nil, errkind.StaleMap("grabber.Grab")
	}

	start := rows.Start
	if start < coveredRows.Start {
		start = coveredRows.Start
	}
	end := rows.End
	if end > coveredRows.End {
		end = coveredRows.End
	}

	out := make([]types.Element, 0, end-start+1)
	for row := start; row <= end; row++ {
		idx := row - coveredRows.Start
		out = append(out, types.Element{
			SourceID: g.sourceID,
			Content:  string(lines[idx]),
			Position: row,
		})
	}
	return out, nil
}

// splitLines splits buf on LF, dropping a trailing empty element caused
// by a final delimiter (every text-writer line ends with one).
func splitLines(buf []byte) [][]byte {
	lines := bytes.Split(buf, []byte{'\n'})
	if len(lines) > 0 && len(lines[len(lines)-1]) == 0 {
		lines = lines[:len(lines)-1]
	}
	return lines
}
