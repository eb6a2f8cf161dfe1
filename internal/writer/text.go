// Package writer implements the TextWriter and BinaryWriter of spec §4.4:
// append-only writers over one exclusively owned file each, reporting
// bytes-on-disk after every flush boundary and leaving the file at a
// known byte length on any partial-write failure. It also hosts the
// attachment sidecar writer (spec §3's Attachment entity) and the
// Pipeline that wires a producer's event stream into both writers plus
// the row/byte Map — the "text file grows → grabber tick → recompute
// map" leg of the data flow in spec §2.
package writer

import (
	"os"
	"sync"

	"github.com/loglens/obscore/internal/debug"
	"github.com/loglens/obscore/internal/errkind"
)

// FlushObserver is notified with the number of bytes appended since the
// previous flush boundary (spec §4.4).
type FlushObserver func(bytesAdded int)

// TextWriter owns one file opened for append and writes one LF-terminated
// line per record — "the LF separator is the framing invariant the
// grabber's map relies on" (spec §4.4).
type TextWriter struct {
	mu        sync.Mutex
	file      *os.File
	total     int64
	observers []FlushObserver
}

// NewTextWriter opens path for append, creating it if absent.
func NewTextWriter(path string) (*TextWriter, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errkind.IO("writer.text.open", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errkind.IO("writer.text.stat", err)
	}
	return &TextWriter{file: f, total: info.Size()}, nil
}

// OnFlush registers a callback invoked after every successful append.
func (w *TextWriter) OnFlush(obs FlushObserver) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.observers = append(w.observers, obs)
}

// Append writes text plus a trailing LF and returns the new total bytes
// on disk. A short write is rolled back via Truncate so the file is left
// at its last known-good length (spec §4.4 failure contract).
func (w *TextWriter) Append(text string) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	line := append([]byte(text), '\n')
	n, err := w.file.Write(line)
	if err != nil || n != len(line) {
		if truncErr := w.file.Truncate(w.total); truncErr != nil {
			debug.Writer("text writer truncate after short write failed: %v", truncErr)
		}
		if _, seekErr := w.file.Seek(w.total, 0); seekErr != nil {
			debug.Writer("text writer seek-to-total after short write failed: %v", seekErr)
		}
		if err == nil {
			err = errTruncatedWrite
		}
		return w.total, errkind.IO("writer.text.append", err)
	}

	w.total += int64(n)
	for _, obs := range w.observers {
		obs(n)
	}
	return w.total, nil
}

// BytesOnDisk reports the writer's current known-good length.
func (w *TextWriter) BytesOnDisk() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.total
}

// Close flushes the OS buffer and closes the file.
func (w *TextWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Sync(); err != nil {
		debug.Writer("text writer sync on close failed: %v", err)
	}
	return w.file.Close()
}

type sentinelErr string

func (s sentinelErr) Error() string { return string(s) }

const errTruncatedWrite = sentinelErr("short write to session text file")
