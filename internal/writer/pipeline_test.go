package writer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loglens/obscore/internal/logparse"
	"github.com/loglens/obscore/internal/mapindex"
	"github.com/loglens/obscore/internal/producer"
	"github.com/loglens/obscore/internal/source"
	"github.com/loglens/obscore/internal/types"
)

func TestPipelineAdvancesMapPerRecord(t *testing.T) {
	dir := t.TempDir()
	srcPath := filepath.Join(dir, "in.txt")
	require.NoError(t, os.WriteFile(srcPath, nil, 0o644))

	fs, err := source.NewFileSource(srcPath, source.FileSourceConfig{RingBufferCapacity: 4096, ReadChunkSize: 64})
	require.NoError(t, err)
	defer fs.Close()

	f, err := os.OpenFile(srcPath, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("a\nb\nc\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, err = fs.Load()
	require.NoError(t, err)

	prod := producer.New(fs, &logparse.TextParser{}, producer.Config{QueueDepth: 4})

	textPath := filepath.Join(dir, "session.text")
	tw, err := NewTextWriter(textPath)
	require.NoError(t, err)
	defer tw.Close()

	m := mapindex.New()
	pipeline := NewPipeline(tw, nil, nil, m)

	var lastRows uint64
	pipeline.OnStreamUpdated(func(rows uint64) { lastRows = rows })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	prodErrCh := make(chan error, 1)
	go func() { prodErrCh <- prod.Run(ctx) }()

	require.NoError(t, pipeline.Run(ctx, prod.Events()))
	require.NoError(t, <-prodErrCh)

	assert.Equal(t, uint64(3), m.RowsTotal())
	assert.Equal(t, uint64(3), lastRows)

	data, err := os.ReadFile(textPath)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nc\n", string(data))
}

func TestPipelineWritesAttachmentOnRecord(t *testing.T) {
	dir := t.TempDir()
	textPath := filepath.Join(dir, "session.text")
	tw, err := NewTextWriter(textPath)
	require.NoError(t, err)
	defer tw.Close()

	m := mapindex.New()
	store := NewAttachmentStore(dir)
	pipeline := NewPipeline(tw, nil, store, m)

	var got *types.Attachment
	pipeline.OnAttachment(func(att *types.Attachment) { got = att })

	events := make(chan producer.Event, 1)
	events <- producer.Event{
		Kind: producer.EventItem,
		Record: types.Record{
			Text:       "frame",
			Attachment: &types.RecordAttachment{Data: []byte{0x01, 0x02}, Ext: ".bin"},
		},
	}
	close(events)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, pipeline.Run(ctx, events))

	require.NotNil(t, got)
	assert.Contains(t, got.Rows, uint64(0))
	assert.Len(t, store.List(), 1)
}
