package source

import (
	"errors"
	"io"

	"github.com/loglens/obscore/internal/debug"
	"github.com/loglens/obscore/internal/errkind"
)

// SerialSource adapts an already-opened io.ReadWriteCloser (a serial port
// handle) to the Source capability. The pack carries no serial-port
// library, so unlike FileSource/TCPSource/UDPSource this adapter accepts
// the opened handle rather than owning the open call itself — callers
// that need a concrete serial transport (e.g. via an external library
// added later) just need to hand in something satisfying
// io.ReadWriteCloser.
type SerialSource struct {
	rwc     io.ReadWriteCloser
	ring    *ring
	readBuf []byte
}

// SerialConfig configures a SerialSource.
type SerialConfig struct {
	RingBufferCapacity int
	ReadChunkSize      int
}

// NewSerialSource wraps rwc as a Source.
func NewSerialSource(rwc io.ReadWriteCloser, cfg SerialConfig) *SerialSource {
	chunkSize := cfg.ReadChunkSize
	if chunkSize <= 0 {
		chunkSize = 4096
	}
	return &SerialSource{
		rwc:     rwc,
		ring:    newRing(cfg.RingBufferCapacity),
		readBuf: make([]byte, chunkSize),
	}
}

// Load implements Source.
func (s *SerialSource) Load() (LoadResult, error) {
	if s.ring.nearCapacity() {
		return LoadResult{Info: ReloadInfo{Available: s.ring.available()}}, nil
	}
	n, err := s.rwc.Read(s.readBuf[:min(len(s.readBuf), s.ring.remaining())])
	if n > 0 {
		if appendErr := s.ring.append(s.readBuf[:n]); appendErr != nil {
			return LoadResult{}, appendErr
		}
		debug.Source("serial read %d bytes", n)
		return LoadResult{Info: ReloadInfo{NewlyLoaded: n, Available: s.ring.available()}}, nil
	}
	if errors.Is(err, io.EOF) {
		return LoadResult{EOF: true}, nil
	}
	if err != nil {
		return LoadResult{}, errkind.IO("source.serial.read", err)
	}
	return LoadResult{Info: ReloadInfo{Available: s.ring.available()}}, nil
}

// Write implements Writable.
func (s *SerialSource) Write(p []byte) error {
	if _, err := s.rwc.Write(p); err != nil {
		return errkind.IO("source.serial.write", err)
	}
	return nil
}

// CurrentSlice implements Source.
func (s *SerialSource) CurrentSlice() []byte { return s.ring.slice() }

// Consume implements Source.
func (s *SerialSource) Consume(n int) error { return s.ring.consume(n) }

// Len implements Source.
func (s *SerialSource) Len() int { return s.ring.available() }

// Close implements Source.
func (s *SerialSource) Close() error {
	if err := s.rwc.Close(); err != nil {
		return errkind.IO("source.serial.close", err)
	}
	return nil
}
