package producer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loglens/obscore/internal/logparse"
	"github.com/loglens/obscore/internal/source"
)

// fakeSource is a minimal in-memory Source for producer tests: it yields
// chunks on demand and reports EOF once exhausted, mirroring a
// non-reconnectable file tail.
type fakeSource struct {
	chunks   [][]byte
	eofAtEnd bool
	cursor   int
	buf      []byte
	closed   bool
}

func (f *fakeSource) Load() (source.LoadResult, error) {
	if f.cursor >= len(f.chunks) {
		if f.eofAtEnd {
			return source.LoadResult{EOF: true}, nil
		}
		return source.LoadResult{}, nil
	}
	next := f.chunks[f.cursor]
	f.cursor++
	f.buf = append(f.buf, next...)
	return source.LoadResult{Info: source.ReloadInfo{NewlyLoaded: len(next)}}, nil
}

func (f *fakeSource) CurrentSlice() []byte { return f.buf }

func (f *fakeSource) Consume(n int) error {
	f.buf = f.buf[n:]
	return nil
}

func (f *fakeSource) Len() int { return len(f.buf) }

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

// noiseSkippingParser skips every leading 0x00 byte as noise, then
// delegates to TextParser, exercising the producer's Skipped coalescing.
type noiseSkippingParser struct{}

func (noiseSkippingParser) Parse(data []byte, final bool) (logparse.Result, error) {
	if len(data) > 0 && data[0] == 0x00 {
		return logparse.Result{Kind: logparse.KindSkipped, Consumed: 1}, nil
	}
	return (&logparse.TextParser{}).Parse(data, final)
}

func TestProducerEmitsItemsThenDone(t *testing.T) {
	src := &fakeSource{chunks: [][]byte{[]byte("a\nb\n"), []byte("c\n")}, eofAtEnd: true}
	p := New(src, &logparse.TextParser{}, Config{QueueDepth: 4})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(ctx) }()

	var items []string
	var sawDone bool
	for ev := range p.Events() {
		switch ev.Kind {
		case EventItem:
			items = append(items, ev.Record.Text)
		case EventDone:
			sawDone = true
		}
	}

	require.NoError(t, <-errCh)
	assert.Equal(t, []string{"a", "b", "c"}, items)
	assert.True(t, sawDone)
}

func TestProducerCoalescesSkippedSpans(t *testing.T) {
	src := &fakeSource{chunks: [][]byte{[]byte("\x00\x00\x00a\n")}, eofAtEnd: true}
	p := New(src, noiseSkippingParser{}, Config{QueueDepth: 4})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(ctx) }()

	var kinds []EventKind
	for ev := range p.Events() {
		kinds = append(kinds, ev.Kind)
	}
	require.NoError(t, <-errCh)
	require.Len(t, kinds, 3)
	assert.Equal(t, EventSkipped, kinds[0])
	assert.Equal(t, EventItem, kinds[1])
	assert.Equal(t, EventDone, kinds[2])
}

// TestProducerFollowsGrowingFile drives a real source.FileSource (not
// fakeSource) with Follow enabled and appends to the file mid-run,
// proving a line written after Observe started still surfaces as an
// Item rather than the producer having already finished on the file's
// first empty read.
func TestProducerFollowsGrowingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "growing.log")
	require.NoError(t, os.WriteFile(path, []byte("a\n"), 0o644))

	fs, err := source.NewFileSource(path, source.FileSourceConfig{
		RingBufferCapacity: 4096,
		ReadChunkSize:      64,
		Follow:             true,
	})
	require.NoError(t, err)
	defer fs.Close()

	p := New(fs, &logparse.TextParser{}, Config{QueueDepth: 4, PollInterval: 100 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(ctx) }()

	first := <-p.Events()
	require.Equal(t, EventItem, first.Kind)
	assert.Equal(t, "a", first.Record.Text)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("b\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	select {
	case ev := <-p.Events():
		require.Equal(t, EventItem, ev.Kind)
		assert.Equal(t, "b", ev.Record.Text)
	case <-time.After(4 * time.Second):
		t.Fatal("expected the appended line to surface while Observe was still active")
	}

	cancel()
	for range p.Events() {
	}
	require.Error(t, <-errCh)
}

func TestProducerRespectsCancellation(t *testing.T) {
	src := &fakeSource{chunks: nil, eofAtEnd: false}
	p := New(src, &logparse.TextParser{}, Config{QueueDepth: 1, PollInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()
	for range p.Events() {
	}
	err := <-errCh
	require.Error(t, err)
}

