// Package session implements the Session façade of spec §4.10: it
// composes every other package into the object a command producer and
// event consumer actually talk to, owning the scratch files (spec §6),
// the operation orchestrator, and the two grabbers (content, search
// match) that answer grab/grab_search.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/loglens/obscore/internal/config"
	"github.com/loglens/obscore/internal/errkind"
	"github.com/loglens/obscore/internal/grabber"
	"github.com/loglens/obscore/internal/mapindex"
	"github.com/loglens/obscore/internal/orchestrator"
	"github.com/loglens/obscore/internal/producer"
	"github.com/loglens/obscore/internal/state"
	"github.com/loglens/obscore/internal/types"
	"github.com/loglens/obscore/internal/writer"
)

const (
	contentSourceID uint16 = 0
	searchSourceID  uint16 = 1
)

// Session is the public façade of spec §4.10. Exactly one goroutine owns
// SessionState (internal/state), reached only by message; every other
// component here holds a cheap, cloneable handle to it or to the
// orchestrator, per spec §3's ownership model.
type Session struct {
	id  types.SessionID
	cfg *config.Config
	rt  RuntimeContext

	dir        string
	textPath   string
	binPath    string
	searchPath string
	attachDir  string

	text        *writer.TextWriter
	binary      *writer.BinaryWriter
	attachments *writer.AttachmentStore
	contentMap  *mapindex.Map
	content     *grabber.Grabber

	st   *state.State
	orch *orchestrator.Orchestrator

	events chan Event

	mu            sync.Mutex
	searchGrab    *grabber.Grabber
	searchByteMap *mapindex.Map
}

// Open creates a new session rooted at cfg.Scratch.Dir, eagerly creating
// the three scratch files spec §6 names ({uuid}.session, {uuid}.bin,
// {uuid}.search) so the content grabber has something to open from
// first byte. rt may be the zero value.
func Open(id types.SessionID, cfg *config.Config, rt RuntimeContext) (*Session, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	dir := cfg.Scratch.Dir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errkind.IO("session.Open.mkdir", err)
	}

	textPath := filepath.Join(dir, id.String()+".session")
	binPath := filepath.Join(dir, id.String()+".bin")
	searchPath := filepath.Join(dir, id.String()+".search")
	attachDir := filepath.Join(dir, id.String()+"_attachments")
	if err := os.MkdirAll(attachDir, 0o755); err != nil {
		return nil, errkind.IO("session.Open.mkdir_attachments", err)
	}

	text, err := writer.NewTextWriter(textPath)
	if err != nil {
		return nil, err
	}
	binary, err := writer.NewBinaryWriter(binPath)
	if err != nil {
		text.Close()
		return nil, err
	}
	contentMap := mapindex.New()
	content, err := grabber.New(textPath, contentMap, contentSourceID)
	if err != nil {
		text.Close()
		binary.Close()
		return nil, err
	}

	st := state.New()
	orch := orchestrator.New(st)

	s := &Session{
		id:          id,
		cfg:         cfg,
		rt:          rt,
		dir:         dir,
		textPath:    textPath,
		binPath:     binPath,
		searchPath:  searchPath,
		attachDir:   attachDir,
		text:        text,
		binary:      binary,
		attachments: writer.NewAttachmentStore(attachDir),
		contentMap:  contentMap,
		content:     content,
		st:          st,
		orch:        orch,
		events:      make(chan Event, 1024),
	}

	if rt.Tracker != nil {
		rt.Tracker.TrackOperation("session.open")
	}

	go orch.Run()
	go s.forwardOrchestratorEvents()
	return s, nil
}

// ID returns the session's identifier.
func (s *Session) ID() types.SessionID { return s.id }

// End submits the End operation (spec §4.9): CancelAll fires, the
// orchestrator drains in-flight operations, and SessionDestroyed is the
// last event on s.Events(). Callers must keep draining Events() until it
// closes; End itself does not block.
func (s *Session) End(id types.OperationID) {
	s.orch.Submit(id, orchestrator.Operation{Kind: orchestrator.KindEnd})
}

// closeResources releases every file handle the session owns. Called
// once, right before s.events is closed, from forwardOrchestratorEvents.
func (s *Session) closeResources() {
	s.mu.Lock()
	if s.searchGrab != nil {
		s.searchGrab.Close()
		s.searchGrab = nil
	}
	s.mu.Unlock()

	s.content.Close()
	s.text.Close()
	s.binary.Close()
	s.st.Shutdown()
}

// Stop submits a Cancel(target) operation under id (spec §4.10).
func (s *Session) Stop(id, target types.OperationID) {
	s.orch.Submit(id, orchestrator.Operation{Kind: orchestrator.KindCancel, Target: target})
}

// SetDebug flips the session-wide debug flag (spec §4.8).
func (s *Session) SetDebug(enabled bool) {
	s.st.SetDebug(enabled)
}

// OperationsStat returns a snapshot of every in-flight operation (spec
// §4.8's GetOperationsStat).
func (s *Session) OperationsStat() []state.Stat {
	return s.st.GetOperationsStat()
}

// Grab implements the façade's grab (spec §4.10): read rows directly from
// the content file via the content Grabber.
func (s *Session) Grab(rows mapindex.RowRange) ([]types.Element, error) {
	return s.content.Grab(rows)
}

// GrabSearch implements spec §4.10's grab_search algorithm: translate a
// search-view row range into the original rows it references, compress
// contiguous runs, grab each run from the content file, and annotate each
// element with its search-view row (Row) and original row (Position).
func (s *Session) GrabSearch(rows mapindex.RowRange) ([]types.Element, error) {
	s.mu.Lock()
	grab := s.searchGrab
	s.mu.Unlock()
	if grab == nil {
		return nil, nil
	}

	matchElems, err := grab.Grab(rows)
	if err != nil {
		return nil, err
	}
	if len(matchElems) == 0 {
		return nil, nil
	}

	type matchLine struct {
		N uint64 `json:"n"`
	}
	type pair struct {
		pos       uint64
		searchRow uint64
	}
	pairs := make([]pair, len(matchElems))
	for i, e := range matchElems {
		var ml matchLine
		if err := json.Unmarshal([]byte(e.Content), &ml); err != nil {
			return nil, errkind.Protocol("session.GrabSearch", err)
		}
		pairs[i] = pair{pos: ml.N, searchRow: e.Position}
	}

	out := make([]types.Element, 0, len(pairs))
	i := 0
	for i < len(pairs) {
		j := i
		for j+1 < len(pairs) && pairs[j+1].pos == pairs[j].pos+1 {
			j++
		}
		elems, err := s.content.Grab(mapindex.RowRange{Start: pairs[i].pos, End: pairs[j].pos})
		if err != nil {
			return nil, err
		}
		for k, el := range elems {
			el.Nature |= types.NatureSearchMatch
			el.Row = pairs[i+k].searchRow
			out = append(out, el)
		}
		i = j + 1
	}
	return out, nil
}

var errNoInputFiles = errors.New("no input files matched")

// runProducerPipeline wires a producer's event stream into the session's
// text/binary/attachment writers and the content Map, awaiting either
// completion or cancellation — the body shared by Observe's operation
// (spec §2's observe data-flow leg).
func (s *Session) runProducerPipeline(ctx context.Context, id types.OperationID, prod *producer.Producer) error {
	pipeline := writer.NewPipeline(s.text, s.binary, s.attachments, s.contentMap)
	pipeline.OnStreamUpdated(func(rows uint64) {
		s.emit(Event{Kind: EventStreamUpdated, OpID: id, Rows: rows})
	})
	pipeline.OnAttachment(func(att *types.Attachment) {
		s.emit(Event{Kind: EventAttachmentsUpdated, OpID: id, Attachment: att})
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return prod.Run(gctx) })
	g.Go(func() error { return pipeline.Run(gctx, prod.Events()) })
	if err := g.Wait(); err != nil {
		return err
	}
	s.emit(Event{Kind: EventStreamDone, OpID: id})
	return nil
}

// searchOverviewDefault applies the configured default bucket count when
// a caller doesn't specify one (e.g. the SearchUpdated→SearchMapUpdated
// hop Session fires on its own after ApplySearch completes).
func (s *Session) searchOverviewDefault() int {
	if s.cfg.Search.DefaultDatasetLen <= 0 {
		return 512
	}
	return s.cfg.Search.DefaultDatasetLen
}

// rebuildSearchGrabber replaces the search grabber/byte-map pair that
// backs grab_search, closing the previous one. Safe to call with a nil
// grab (the ApplySearch body calls this before running a fresh search so
// a stale grabber is never left answering against a truncated match
// file, per spec §4.6's StaleMap contract).
func (s *Session) rebuildSearchGrabber(grab *grabber.Grabber, byteMap *mapindex.Map) {
	s.mu.Lock()
	prev := s.searchGrab
	s.searchGrab = grab
	s.searchByteMap = byteMap
	s.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
}
