package source

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSourceReadsPreExistingContentFromStart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.txt")
	require.NoError(t, os.WriteFile(path, []byte("preexisting\n"), 0o644))

	fs, err := NewFileSource(path, FileSourceConfig{RingBufferCapacity: 1024, ReadChunkSize: 64})
	require.NoError(t, err)
	defer fs.Close()

	res, err := fs.Load()
	require.NoError(t, err)
	assert.False(t, res.EOF)
	assert.Equal(t, len("preexisting\n"), res.Info.NewlyLoaded)
	assert.Equal(t, "preexisting\n", string(fs.CurrentSlice()))

	require.NoError(t, fs.Consume(fs.Len()))
	res, err = fs.Load()
	require.NoError(t, err)
	assert.True(t, res.EOF)
}

func TestFileSourceReadsNewlyAppendedBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.txt")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	fs, err := NewFileSource(path, FileSourceConfig{RingBufferCapacity: 1024, ReadChunkSize: 64})
	require.NoError(t, err)
	defer fs.Close()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("hello\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	res, err := fs.Load()
	require.NoError(t, err)
	assert.Equal(t, 6, res.Info.NewlyLoaded)
	assert.Equal(t, "hello\n", string(fs.CurrentSlice()))

	require.NoError(t, fs.Consume(6))
	assert.Equal(t, 0, fs.Len())
}

func TestFileSourceNearCapacityDefersRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.txt")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	fs, err := NewFileSource(path, FileSourceConfig{RingBufferCapacity: 10, ReadChunkSize: 64})
	require.NoError(t, err)
	defer fs.Close()

	require.NoError(t, fs.ring.append([]byte("123456789")))

	res, err := fs.Load()
	require.NoError(t, err)
	assert.Equal(t, 0, res.Info.NewlyLoaded)
	assert.False(t, res.EOF)
}

func TestFileSourceLastKnownTimestampTracksReads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.txt")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	fs, err := NewFileSource(path, FileSourceConfig{RingBufferCapacity: 1024, ReadChunkSize: 64})
	require.NoError(t, err)
	defer fs.Close()

	_, ok := fs.LastKnownTimestamp()
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("y")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = fs.Load()
	require.NoError(t, err)
	ts, ok := fs.LastKnownTimestamp()
	assert.True(t, ok)
	assert.WithinDuration(t, time.Now(), ts, 5*time.Second)
}

func TestFileSourceNotifyFiresOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.txt")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	fs, err := NewFileSource(path, FileSourceConfig{RingBufferCapacity: 1024, ReadChunkSize: 64})
	require.NoError(t, err)
	defer fs.Close()

	if fs.watcher == nil {
		t.Skip("fsnotify watcher unavailable in this environment")
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("z\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	select {
	case <-fs.Notify():
	case <-time.After(2 * time.Second):
		t.Fatal("expected a notification for the write")
	}
}

func TestFileSourceFollowNeverReportsEOF(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.txt")
	require.NoError(t, os.WriteFile(path, []byte("a\n"), 0o644))

	fs, err := NewFileSource(path, FileSourceConfig{RingBufferCapacity: 1024, ReadChunkSize: 64, Follow: true})
	require.NoError(t, err)
	defer fs.Close()

	res, err := fs.Load()
	require.NoError(t, err)
	assert.False(t, res.EOF)
	require.NoError(t, fs.Consume(fs.Len()))

	// The file has nothing more right now, but Follow means this must
	// never look like EOF to the caller — only a non-following source
	// terminates on an empty read.
	res, err = fs.Load()
	require.NoError(t, err)
	assert.False(t, res.EOF)
	assert.Equal(t, 0, res.Info.NewlyLoaded)

	if fs.watcher == nil {
		t.Skip("fsnotify watcher unavailable in this environment")
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("b\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	select {
	case <-fs.Notify():
	case <-time.After(2 * time.Second):
		t.Fatal("expected a notification for the write")
	}

	res, err = fs.Load()
	require.NoError(t, err)
	assert.False(t, res.EOF)
	assert.Equal(t, "b\n", string(fs.CurrentSlice()))
}

func TestFileSourceCloseStopsWatchLoop(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.txt")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	fs, err := NewFileSource(path, FileSourceConfig{RingBufferCapacity: 1024, ReadChunkSize: 64})
	require.NoError(t, err)
	require.NoError(t, fs.Close())
}
