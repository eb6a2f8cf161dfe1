// Package mapindex implements the row↔byte index described in spec §4.5:
// an append-only, strictly increasing sequence of (bytes_cum, rows_cum)
// checkpoints that lets a Grabber translate a row range into the byte
// range to read, in O(log n) via binary search — the same bracketing
// technique the teacher's core.GetLineAtOffset uses over line offsets,
// generalized from "one checkpoint per line" to "one checkpoint per
// writer flush".
package mapindex

import (
	"sort"
	"sync"
)

// Checkpoint is one (cumulative_bytes, cumulative_rows) pair.
type Checkpoint struct {
	Bytes uint64
	Rows  uint64
}

// Map is the append-only row/byte index over a monotonically growing
// file. The zero value is not usable; construct with New.
type Map struct {
	mu          sync.RWMutex
	checkpoints []Checkpoint // checkpoints[0] is always {0, 0}
}

// New returns an empty Map seeded with the mandatory (0, 0) checkpoint.
func New() *Map {
	return &Map{checkpoints: []Checkpoint{{Bytes: 0, Rows: 0}}}
}

// Append records a writer flush of deltaBytes bytes containing deltaRows
// new rows. Only a call with both deltas zero is ignored; any other call
// appends a checkpoint, so a flush with bytes but no complete row adds a
// checkpoint that repeats the previous row count rather than being folded
// into the next append. Runs in O(1).
func (m *Map) Append(deltaBytes, deltaRows uint64) {
	if deltaBytes == 0 && deltaRows == 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	last := m.checkpoints[len(m.checkpoints)-1]
	m.checkpoints = append(m.checkpoints, Checkpoint{
		Bytes: last.Bytes + deltaBytes,
		Rows:  last.Rows + deltaRows,
	})
}

// Reset clears the map back to its initial empty state. Per spec §4.5,
// truncation is not supported; a reset always replaces the whole map.
func (m *Map) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints = []Checkpoint{{Bytes: 0, Rows: 0}}
}

// RowsTotal returns the current row count (R_last).
func (m *Map) RowsTotal() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.checkpoints[len(m.checkpoints)-1].Rows
}

// BytesTotal returns the current byte count (B_last).
func (m *Map) BytesTotal() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.checkpoints[len(m.checkpoints)-1].Bytes
}

// RowRange is an inclusive [Start, End] row range, matching the
// `row_range` notation of spec §4.6.
type RowRange struct {
	Start uint64
	End   uint64
}

// ByteRange is the half-open [Start, End) byte span to read for a
// RowRange. The row range that span actually covers (which may be wider
// than requested, per spec §4.5) is returned separately by ByteRangeFor.
type ByteRange struct {
	Start uint64
	End   uint64
}

// ByteRangeFor finds the smallest pair of checkpoints bracketing rows.Start
// and rows.End and returns the byte range to read plus the rows that read
// covers. The request is clipped to what the map currently holds; an empty
// map (or a request entirely beyond rows_total) yields an empty result.
func (m *Map) ByteRangeFor(rows RowRange) (ByteRange, RowRange, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := m.checkpoints[len(m.checkpoints)-1].Rows
	if total == 0 || rows.Start >= total {
		return ByteRange{}, RowRange{}, false
	}
	end := rows.End
	if end >= total {
		end = total - 1
	}

	// Find the checkpoint whose Rows bracket rows.Start from below, and
	// the one bracketing end from above.
	loIdx := bracketBelow(m.checkpoints, rows.Start)
	hiIdx := bracketAbove(m.checkpoints, end)

	lo := m.checkpoints[loIdx]
	hi := m.checkpoints[hiIdx]

	return ByteRange{Start: lo.Bytes, End: hi.Bytes},
		RowRange{Start: lo.Rows, End: hi.Rows - 1},
		true
}

// bracketBelow returns the index of the last checkpoint with Rows <= row.
func bracketBelow(cps []Checkpoint, row uint64) int {
	// sort.Search finds the first index for which the predicate is true;
	// we want the last index where Rows <= row, i.e. first index where
	// Rows > row, minus one.
	idx := sort.Search(len(cps), func(i int) bool { return cps[i].Rows > row })
	if idx == 0 {
		return 0
	}
	return idx - 1
}

// bracketAbove returns the index of the first checkpoint with Rows > row,
// i.e. the checkpoint whose byte offset is a safe upper bound for reading
// through the end of `row`.
func bracketAbove(cps []Checkpoint, row uint64) int {
	idx := sort.Search(len(cps), func(i int) bool { return cps[i].Rows > row })
	if idx >= len(cps) {
		return len(cps) - 1
	}
	return idx
}

// Nearest returns the checkpoint nearest to row, for UI "scroll-to-nearest"
// gestures (spec §4.5).
func (m *Map) Nearest(row uint64) Checkpoint {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx := sort.Search(len(m.checkpoints), func(i int) bool { return m.checkpoints[i].Rows >= row })
	if idx >= len(m.checkpoints) {
		return m.checkpoints[len(m.checkpoints)-1]
	}
	if idx == 0 {
		return m.checkpoints[0]
	}
	before := m.checkpoints[idx-1]
	after := m.checkpoints[idx]
	if row-before.Rows <= after.Rows-row {
		return before
	}
	return after
}

// Checkpoints returns a defensive copy of the current checkpoint sequence,
// for tests verifying the strictly-increasing invariant.
func (m *Map) Checkpoints() []Checkpoint {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Checkpoint, len(m.checkpoints))
	copy(out, m.checkpoints)
	return out
}
