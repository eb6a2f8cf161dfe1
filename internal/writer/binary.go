package writer

import (
	"os"
	"sync"

	"github.com/loglens/obscore/internal/debug"
	"github.com/loglens/obscore/internal/errkind"
)

// BinaryWriter owns one file opened for append and writes raw record
// bytes with no delimiter; its layout is opaque to the core (spec §4.4).
type BinaryWriter struct {
	mu        sync.Mutex
	file      *os.File
	total     int64
	observers []FlushObserver
}

// NewBinaryWriter opens path for append, creating it if absent.
func NewBinaryWriter(path string) (*BinaryWriter, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, errkind.IO("writer.binary.open", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errkind.IO("writer.binary.stat", err)
	}
	return &BinaryWriter{file: f, total: info.Size()}, nil
}

// OnFlush registers a callback invoked after every successful append.
func (w *BinaryWriter) OnFlush(obs FlushObserver) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.observers = append(w.observers, obs)
}

// Append writes data verbatim and returns the new total bytes on disk.
func (w *BinaryWriter) Append(data []byte) (int64, error) {
	if len(data) == 0 {
		return w.BytesOnDisk(), nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	n, err := w.file.Write(data)
	if err != nil || n != len(data) {
		if truncErr := w.file.Truncate(w.total); truncErr != nil {
			debug.Writer("binary writer truncate after short write failed: %v", truncErr)
		}
		if _, seekErr := w.file.Seek(w.total, 0); seekErr != nil {
			debug.Writer("binary writer seek-to-total after short write failed: %v", seekErr)
		}
		if err == nil {
			err = errTruncatedWrite
		}
		return w.total, errkind.IO("writer.binary.append", err)
	}

	w.total += int64(n)
	for _, obs := range w.observers {
		obs(n)
	}
	return w.total, nil
}

// BytesOnDisk reports the writer's current known-good length.
func (w *BinaryWriter) BytesOnDisk() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.total
}

// Close flushes the OS buffer and closes the file.
func (w *BinaryWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Sync(); err != nil {
		debug.Writer("binary writer sync on close failed: %v", err)
	}
	return w.file.Close()
}
