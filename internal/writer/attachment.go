package writer

import (
	"mime"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/loglens/obscore/internal/errkind"
	"github.com/loglens/obscore/internal/types"
)

// AttachmentStore writes sidecar binary blobs referenced by rows (spec
// §3's Attachment entity), deduplicating by content hash so the same
// payload observed on multiple rows (e.g. a repeated DLT non-verbose
// descriptor blob) is written to disk once and just gains another row
// reference — a supplemented feature grounded on original_source's
// attachment conversion path, which tracks a set of referencing rows per
// attachment rather than one attachment per occurrence.
type AttachmentStore struct {
	mu      sync.Mutex
	dir     string
	byHash  map[uint64]*types.Attachment
	ordered []*types.Attachment
}

// NewAttachmentStore creates a store writing into dir.
func NewAttachmentStore(dir string) *AttachmentStore {
	return &AttachmentStore{dir: dir, byHash: make(map[uint64]*types.Attachment)}
}

// Put records that row references the blob data with the given suggested
// file extension (used only for MIME sniffing and the on-disk name).
// Returns the attachment, writing a new file the first time this exact
// content is seen.
func (s *AttachmentStore) Put(data []byte, ext string, row uint64) (*types.Attachment, error) {
	h := xxhash.Sum64(data)

	s.mu.Lock()
	defer s.mu.Unlock()

	if att, ok := s.byHash[h]; ok {
		att.Rows[row] = struct{}{}
		return att, nil
	}

	id := uuid.New()
	name := id.String()
	if ext != "" {
		name += ext
	}
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, errkind.IO("writer.attachment.write", err)
	}

	att := &types.Attachment{
		UUID: id,
		Path: path,
		Size: int64(len(data)),
		Mime: sniffMime(ext),
		Ext:  ext,
		Rows: map[uint64]struct{}{row: {}},
	}
	s.byHash[h] = att
	s.ordered = append(s.ordered, att)
	return att, nil
}

// List returns a defensive snapshot of every attachment written so far,
// in creation order.
func (s *AttachmentStore) List() []*types.Attachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.Attachment, len(s.ordered))
	copy(out, s.ordered)
	return out
}

func sniffMime(ext string) string {
	if ext == "" {
		return ""
	}
	if !hasDot(ext) {
		ext = "." + ext
	}
	if m := mime.TypeByExtension(ext); m != "" {
		return m
	}
	return "application/octet-stream"
}

func hasDot(s string) bool {
	return len(s) > 0 && s[0] == '.'
}
