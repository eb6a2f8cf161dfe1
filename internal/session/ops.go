package session

import (
	"context"

	"github.com/loglens/obscore/internal/errkind"
	"github.com/loglens/obscore/internal/grabber"
	"github.com/loglens/obscore/internal/mapindex"
	"github.com/loglens/obscore/internal/orchestrator"
	"github.com/loglens/obscore/internal/producer"
	"github.com/loglens/obscore/internal/search"
	"github.com/loglens/obscore/internal/sourcedesc"
	"github.com/loglens/obscore/internal/types"
)

// Observe submits an Observe operation (spec §4.9): parse sourceDescKDL
// into a concrete source+parser pair, drive it through the session's
// writers, and emit StreamUpdated/StreamDone/AttachmentsUpdated.
func (s *Session) Observe(id types.OperationID, sourceDescKDL string) {
	s.orch.Submit(id, orchestrator.Operation{Kind: orchestrator.KindObserve, Body: s.observeBody(id, sourceDescKDL)})
}

func (s *Session) observeBody(id types.OperationID, sourceDescKDL string) orchestrator.Body {
	return func(ctx context.Context) (any, error) {
		desc, err := sourcedesc.Parse(sourceDescKDL)
		if err != nil {
			return nil, err
		}
		if desc.RingBufferCapacity <= 0 {
			desc.RingBufferCapacity = s.cfg.Source.RingBufferCapacity
		}
		if desc.ReconnectMaxAttempts <= 0 {
			desc.ReconnectMaxAttempts = s.cfg.Source.Reconnect.MaxAttempts
		}
		if desc.ReconnectIntervalMs <= 0 {
			desc.ReconnectIntervalMs = s.cfg.Source.Reconnect.IntervalMs
		}
		built, err := sourcedesc.Build(desc)
		if err != nil {
			return nil, err
		}
		defer built.Source.Close()

		prod := producer.New(built.Source, built.Parser, producer.Config{
			QueueDepth: s.cfg.Backpressure.QueueDepth,
		})
		if err := s.runProducerPipeline(ctx, id, prod); err != nil {
			return nil, err
		}
		return s.contentMap.RowsTotal(), nil
	}
}

// ApplySearch submits a Search operation (spec §4.9/§4.7): compile
// filters, stream the session text file, replace the live SearchMap, and
// rebuild the search grabber so GrabSearch reads against the fresh match
// file.
func (s *Session) ApplySearch(id types.OperationID, filters []types.Filter) {
	s.orch.Submit(id, orchestrator.Operation{Kind: orchestrator.KindSearch, Body: s.applySearchBody(id, filters)})
}

func (s *Session) applySearchBody(id types.OperationID, filters []types.Filter) orchestrator.Body {
	return func(ctx context.Context) (any, error) {
		engine, err := search.NewEngine(filters)
		if err != nil {
			return nil, err
		}

		// Drop the old map up front (spec §2: "state drops old search
		// map") so a grab_search racing this run sees "no search" rather
		// than a stale one while the new scan is in flight.
		s.rebuildSearchGrabber(nil, nil)
		s.st.SetMatches(nil)

		byteMap := mapindex.New()
		engine.OnLine(func(n int) { byteMap.Append(uint64(n), 1) })

		result, err := engine.Run(ctx, s.textPath, s.searchPath)
		if err != nil {
			return nil, err
		}

		grab, err := grabber.New(s.searchPath, byteMap, searchSourceID)
		if err != nil {
			return nil, err
		}
		s.rebuildSearchGrabber(grab, byteMap)
		s.st.SetMatches(result)

		rowsTotal := uint64(result.Len())
		s.emit(Event{Kind: EventSearchUpdated, OpID: id, Rows: rowsTotal})

		overview := result.Overview(s.searchOverviewDefault(), nil, nil, s.contentMap.RowsTotal())
		s.emit(Event{Kind: EventSearchMapUpdated, OpID: id, Overview: overview})

		return rowsTotal, nil
	}
}

// Extract submits an Extract operation (spec §4.9): run the same
// compiled-filter scan as ApplySearch, but write the matched lines to an
// arbitrary caller-chosen file instead of the session's live match file,
// and without touching the live SearchMap.
func (s *Session) Extract(id types.OperationID, filters []types.Filter, outPath string) {
	s.orch.Submit(id, orchestrator.Operation{Kind: orchestrator.KindExtract, Body: s.extractBody(id, filters, outPath)})
}

func (s *Session) extractBody(id types.OperationID, filters []types.Filter, outPath string) orchestrator.Body {
	return func(ctx context.Context) (any, error) {
		if outPath == "" {
			return nil, errkind.DestinationMissing("session.extract", errNoDestination)
		}
		engine, err := search.NewEngine(filters)
		if err != nil {
			return nil, err
		}
		result, err := engine.Run(ctx, s.textPath, outPath)
		if err != nil {
			return nil, err
		}
		return result.Len(), nil
	}
}

// Map submits a Map operation (spec §4.9/§4.7): build a scaled overview
// of the current live SearchMap over the given dataset length and
// optional row range.
func (s *Session) Map(id types.OperationID, datasetLen int, from, to *uint64) {
	s.orch.Submit(id, orchestrator.Operation{Kind: orchestrator.KindMap, Body: s.mapBody(id, datasetLen, from, to)})
}

func (s *Session) mapBody(id types.OperationID, datasetLen int, from, to *uint64) orchestrator.Body {
	return func(ctx context.Context) (any, error) {
		m := s.st.GetSearchMap()
		if m == nil {
			return nil, errkind.SearchMapAbsent("session.map")
		}
		overview := m.Overview(datasetLen, from, to, s.contentMap.RowsTotal())
		s.emit(Event{Kind: EventSearchMapUpdated, OpID: id, Overview: overview})
		return overview, nil
	}
}

// GetNearest submits a GetNearest operation (spec §4.9/§4.7): the
// closest search-match row to the given row, tie-broken to the lower row.
func (s *Session) GetNearest(id types.OperationID, row uint64) {
	s.orch.Submit(id, orchestrator.Operation{Kind: orchestrator.KindGetNearest, Body: s.getNearestBody(row)})
}

func (s *Session) getNearestBody(row uint64) orchestrator.Body {
	return func(ctx context.Context) (any, error) {
		m := s.st.GetSearchMap()
		if m == nil {
			return nil, errkind.SearchMapAbsent("session.get_nearest")
		}
		nearest, ok := m.NearestPosition(row)
		if !ok {
			return nil, errkind.NoAssignedContent("session.get_nearest")
		}
		return nearest, nil
	}
}

type sentinelErr string

func (e sentinelErr) Error() string { return string(e) }

const errNoDestination = sentinelErr("extract requires a non-empty output path")
