package source

import (
	"errors"
	"io"
	"os/exec"

	"github.com/loglens/obscore/internal/debug"
	"github.com/loglens/obscore/internal/errkind"
)

// ProcessConfig configures a ProcessSource.
type ProcessConfig struct {
	Command            string
	Args               []string
	RingBufferCapacity int
	ReadChunkSize      int
}

// ProcessSource runs an external command and tails its combined stdout
// and stderr as a byte source. It is not Reconnectable: a dead process
// is a Done condition, not a link to re-dial (mirrors UDPSource's
// reasoning for omitting Reconnectable).
type ProcessSource struct {
	cmd     *exec.Cmd
	stdout  io.ReadCloser
	ring    *ring
	readBuf []byte
}

// NewProcessSource starts cfg.Command and begins capturing its output.
func NewProcessSource(cfg ProcessConfig) (*ProcessSource, error) {
	cmd := exec.Command(cfg.Command, cfg.Args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, errkind.IO("source.process.pipe", err)
	}
	cmd.Stderr = cmd.Stdout
	if err := cmd.Start(); err != nil {
		return nil, errkind.IO("source.process.start", err)
	}

	chunkSize := cfg.ReadChunkSize
	if chunkSize <= 0 {
		chunkSize = 64 * 1024
	}
	return &ProcessSource{
		cmd:     cmd,
		stdout:  stdout,
		ring:    newRing(cfg.RingBufferCapacity),
		readBuf: make([]byte, chunkSize),
	}, nil
}

// Load implements Source.
func (p *ProcessSource) Load() (LoadResult, error) {
	if p.ring.nearCapacity() {
		return LoadResult{Info: ReloadInfo{Available: p.ring.available()}}, nil
	}
	n, err := p.stdout.Read(p.readBuf[:min(len(p.readBuf), p.ring.remaining())])
	if n > 0 {
		if appendErr := p.ring.append(p.readBuf[:n]); appendErr != nil {
			return LoadResult{}, appendErr
		}
		debug.Source("process %s read %d bytes", p.cmd.Path, n)
		return LoadResult{Info: ReloadInfo{NewlyLoaded: n, Available: p.ring.available()}}, nil
	}
	if errors.Is(err, io.EOF) {
		return LoadResult{EOF: true}, nil
	}
	if err != nil {
		return LoadResult{}, errkind.IO("source.process.read", err)
	}
	return LoadResult{Info: ReloadInfo{Available: p.ring.available()}}, nil
}

// CurrentSlice implements Source.
func (p *ProcessSource) CurrentSlice() []byte { return p.ring.slice() }

// Consume implements Source.
func (p *ProcessSource) Consume(n int) error { return p.ring.consume(n) }

// Len implements Source.
func (p *ProcessSource) Len() int { return p.ring.available() }

// Close implements Source.
func (p *ProcessSource) Close() error {
	closeErr := p.stdout.Close()
	_ = p.cmd.Wait()
	if closeErr != nil {
		return errkind.IO("source.process.close", closeErr)
	}
	return nil
}
