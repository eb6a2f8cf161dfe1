package search

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"regexp"

	"github.com/loglens/obscore/internal/errkind"
	"github.com/loglens/obscore/internal/types"
)

// Match is one entry of the SearchMap (spec §3): a row that matched,
// tagged with the lowest-indexed filter that matched it.
type Match struct {
	Row        uint64
	FilterIdx  int
	Content    string
}

// Map is the sparse row→filter-index association built by one ApplySearch
// run (spec §3: "strictly increasing row; filter_idx ∈ [0, n_filters)").
type Map struct {
	Matches []Match
}

// RowAt returns the Match at position i in the match file's row space
// (0-based index into Matches), used by grab_search (spec §4.10).
func (m *Map) RowAt(i int) (Match, bool) {
	if i < 0 || i >= len(m.Matches) {
		return Match{}, false
	}
	return m.Matches[i], true
}

// Len reports the number of matched rows.
func (m *Map) Len() int { return len(m.Matches) }

// NearestPosition returns the nearest match row to row (tie-break: lower
// row), per spec §4.7.
func (m *Map) NearestPosition(row uint64) (uint64, bool) {
	if len(m.Matches) == 0 {
		return 0, false
	}
	best := m.Matches[0].Row
	bestDist := absDiff(best, row)
	for _, match := range m.Matches[1:] {
		d := absDiff(match.Row, row)
		if d < bestDist || (d == bestDist && match.Row < best) {
			best = match.Row
			bestDist = d
		}
	}
	return best, true
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

// LineObserver is notified with the number of bytes written (including
// the trailing LF) for each match-file record appended during Run — the
// hook a caller uses to build a mapindex.Map over the match file the same
// way writer.Pipeline advances the Map per record over the session text
// file, so grab_search can use an ordinary Grabber.
type LineObserver func(bytesWritten int)

// Engine runs ApplySearch over a session text file (spec §4.7).
type Engine struct {
	combined  *regexp.Regexp
	perFilter []*regexp.Regexp
	observers []LineObserver
}

// OnLine registers a callback fired after each match-file record is
// written during Run.
func (e *Engine) OnLine(obs LineObserver) {
	e.observers = append(e.observers, obs)
}

// NewEngine compiles filters into the combined alternation plus one
// regexp per filter (used only to attribute a matching line to the
// lowest-indexed filter that matched it — the combined pattern alone
// can't distinguish which alternative fired without capture-group
// bookkeeping that would corrupt caller-supplied regex filters containing
// their own groups).
func NewEngine(filters []types.Filter) (*Engine, error) {
	combined, err := Compile(filters)
	if err != nil {
		return nil, err
	}
	perFilter := make([]*regexp.Regexp, len(filters))
	for i, f := range filters {
		re, err := regexp.Compile(compileFilter(f))
		if err != nil {
			return nil, errkind.Regex("search.NewEngine", err)
		}
		perFilter[i] = re
	}
	return &Engine{combined: combined, perFilter: perFilter}, nil
}

// Run streams sessionPath line by line, writes one JSON match record per
// matching line to matchPath (spec §6 match-file format), and returns the
// resulting SearchMap.
func (e *Engine) Run(ctx context.Context, sessionPath, matchPath string) (*Map, error) {
	in, err := os.Open(sessionPath)
	if err != nil {
		return nil, errkind.IO("search.Run.open", err)
	}
	defer in.Close()

	out, err := os.OpenFile(matchPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errkind.IO("search.Run.create", err)
	}
	defer out.Close()

	writer := bufio.NewWriter(out)
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	result := &Map{}
	var row uint64
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, errkind.Cancelled("search.Run")
		}
		line := scanner.Text()
		if e.combined.MatchString(line) {
			idx := e.firstMatchingFilter(line)
			result.Matches = append(result.Matches, Match{Row: row, FilterIdx: idx, Content: line})
			rec, err := json.Marshal(matchRecord{N: row, C: line})
			if err != nil {
				return nil, errkind.Parsing("search.Run.marshal", err)
			}
			if _, err := writer.Write(rec); err != nil {
				return nil, errkind.IO("search.Run.write", err)
			}
			if err := writer.WriteByte('\n'); err != nil {
				return nil, errkind.IO("search.Run.write", err)
			}
			for _, obs := range e.observers {
				obs(len(rec) + 1)
			}
		}
		row++
	}
	if err := scanner.Err(); err != nil {
		return nil, errkind.IO("search.Run.scan", err)
	}
	if err := writer.Flush(); err != nil {
		return nil, errkind.IO("search.Run.flush", err)
	}
	return result, nil
}

func (e *Engine) firstMatchingFilter(line string) int {
	for i, re := range e.perFilter {
		if re.MatchString(line) {
			return i
		}
	}
	return -1
}

// matchRecord is the {"n": row, "c": content} line format of spec §6.
type matchRecord struct {
	N uint64 `json:"n"`
	C string `json:"c"`
}
