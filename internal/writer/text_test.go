package writer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextWriterAppendsLFTerminatedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.txt")
	w, err := NewTextWriter(path)
	require.NoError(t, err)
	defer w.Close()

	n, err := w.Append("hello")
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)

	n, err = w.Append("world")
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\nworld\n", string(data))
}

func TestTextWriterNotifiesOnFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.txt")
	w, err := NewTextWriter(path)
	require.NoError(t, err)
	defer w.Close()

	var totalAdded int
	w.OnFlush(func(n int) { totalAdded += n })

	_, err = w.Append("abc")
	require.NoError(t, err)
	assert.Equal(t, 4, totalAdded)
}

func TestTextWriterResumesFromExistingLength(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.txt")
	require.NoError(t, os.WriteFile(path, []byte("preexisting\n"), 0o644))

	w, err := NewTextWriter(path)
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, int64(12), w.BytesOnDisk())
	n, err := w.Append("more")
	require.NoError(t, err)
	assert.Equal(t, int64(17), n)
}
