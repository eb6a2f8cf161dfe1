package session

import (
	"bufio"
	"container/heap"
	"context"
	"io"
	"os"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/loglens/obscore/internal/errkind"
	"github.com/loglens/obscore/internal/orchestrator"
	"github.com/loglens/obscore/internal/types"
)

// Concat submits a Concat operation (spec §4.9): byte-concatenate every
// file matched by patterns, in pattern order, into out.
func (s *Session) Concat(id types.OperationID, patterns []string, out string, appendMode bool) {
	s.orch.Submit(id, orchestrator.Operation{Kind: orchestrator.KindConcat, Body: s.concatBody(id, patterns, out, appendMode)})
}

func (s *Session) concatBody(id types.OperationID, patterns []string, out string, appendMode bool) orchestrator.Body {
	return func(ctx context.Context) (any, error) {
		files, err := expandGlobs(patterns)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, errkind.InvalidArgs("session.concat", errNoInputFiles)
		}

		dst, err := openOutput(out, appendMode)
		if err != nil {
			return nil, err
		}
		defer dst.Close()

		var total int64
		for i, path := range files {
			if err := ctx.Err(); err != nil {
				return nil, errkind.Cancelled("session.concat")
			}
			n, err := copyFileInto(dst, path)
			if err != nil {
				return nil, err
			}
			total += n
			s.orch.EmitTicks(id, i+1, len(files), "concatenating")
		}
		return total, nil
	}
}

// Merge submits a Merge operation (spec §4.9). Lines whose prefix parses
// as a recognized timestamp are interleaved chronologically across all
// input files (a k-way merge); lines that don't are appended in the
// stable round-robin order they were read, per-file ordering always
// preserved either way. This resolves an Open Question the distilled
// spec leaves implicit — see DESIGN.md.
func (s *Session) Merge(id types.OperationID, patterns []string, out string, appendMode bool) {
	s.orch.Submit(id, orchestrator.Operation{Kind: orchestrator.KindMerge, Body: s.mergeBody(id, patterns, out, appendMode)})
}

func (s *Session) mergeBody(id types.OperationID, patterns []string, out string, appendMode bool) orchestrator.Body {
	return func(ctx context.Context) (any, error) {
		files, err := expandGlobs(patterns)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, errkind.InvalidArgs("session.merge", errNoInputFiles)
		}

		scanners := make([]*bufio.Scanner, len(files))
		handles := make([]*os.File, len(files))
		for i, path := range files {
			f, err := os.Open(path)
			if err != nil {
				for _, h := range handles[:i] {
					h.Close()
				}
				return nil, errkind.IO("session.merge.open", err)
			}
			handles[i] = f
			sc := bufio.NewScanner(f)
			sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
			scanners[i] = sc
		}
		defer func() {
			for _, h := range handles {
				h.Close()
			}
		}()

		dst, err := openOutput(out, appendMode)
		if err != nil {
			return nil, err
		}
		defer dst.Close()
		bw := bufio.NewWriter(dst)

		written, err := mergeScanners(ctx, scanners, bw, func(n int) { s.orch.EmitTicks(id, n, -1, "merging") })
		if err != nil {
			return nil, err
		}
		if err := bw.Flush(); err != nil {
			return nil, errkind.IO("session.merge.flush", err)
		}
		return written, nil
	}
}

func openOutput(path string, appendMode bool) (*os.File, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if appendMode {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, errkind.IO("session.openOutput", err)
	}
	return f, nil
}

func copyFileInto(dst io.Writer, path string) (int64, error) {
	src, err := os.Open(path)
	if err != nil {
		return 0, errkind.IO("session.copyFileInto.open", err)
	}
	defer src.Close()
	n, err := io.Copy(dst, src)
	if err != nil {
		return n, errkind.IO("session.copyFileInto.copy", err)
	}
	return n, nil
}

// expandGlobs resolves each doublestar pattern against the filesystem,
// falling back to treating the pattern as a literal path when it matches
// nothing (so callers passing a plain, non-glob filename still work),
// and dedupes while preserving first-seen order.
func expandGlobs(patterns []string) ([]string, error) {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range patterns {
		matches, err := doublestar.FilepathGlob(p)
		if err != nil {
			return nil, errkind.InvalidArgs("session.expandGlobs", err)
		}
		if len(matches) == 0 {
			if _, statErr := os.Stat(p); statErr == nil {
				matches = []string{p}
			}
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
		}
	}
	return out, nil
}

// mergeTimestampLayouts are tried, in order, against each line's prefix.
var mergeTimestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"Jan _2 15:04:05",
}

func parseLeadingTimestamp(line string) (time.Time, bool) {
	for _, layout := range mergeTimestampLayouts {
		if len(line) < len(layout) {
			continue
		}
		if t, err := time.Parse(layout, line[:len(layout)]); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

type mergeItem struct {
	file  int
	line  string
	ts    time.Time
	hasTS bool
	seq   int
}

type mergeHeap []*mergeItem

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.hasTS && b.hasTS && !a.ts.Equal(b.ts) {
		return a.ts.Before(b.ts)
	}
	return a.seq < b.seq
}
func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x any)   { *h = append(*h, x.(*mergeItem)) }
func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// mergeScanners drains every scanner via a k-way merge (container/heap)
// and writes the interleaved lines, LF-terminated, to w. tick is called
// with the running written-line count every 256 lines.
func mergeScanners(ctx context.Context, scanners []*bufio.Scanner, w io.Writer, tick func(int)) (int, error) {
	h := &mergeHeap{}
	heap.Init(h)
	var seq int

	pushNext := func(fileIdx int) {
		sc := scanners[fileIdx]
		if sc.Scan() {
			ts, ok := parseLeadingTimestamp(sc.Text())
			heap.Push(h, &mergeItem{file: fileIdx, line: sc.Text(), ts: ts, hasTS: ok, seq: seq})
			seq++
		}
	}
	for i := range scanners {
		pushNext(i)
	}

	var written int
	for h.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return written, errkind.Cancelled("session.merge")
		}
		item := heap.Pop(h).(*mergeItem)
		if _, err := io.WriteString(w, item.line); err != nil {
			return written, errkind.IO("session.merge.write", err)
		}
		if _, err := io.WriteString(w, "\n"); err != nil {
			return written, errkind.IO("session.merge.write", err)
		}
		written++
		if written%256 == 0 {
			tick(written)
		}
		pushNext(item.file)
	}
	for _, sc := range scanners {
		if err := sc.Err(); err != nil {
			return written, errkind.IO("session.merge.scan", err)
		}
	}
	return written, nil
}
