// Package state implements the SessionState of spec §4.8: a
// single-writer state machine reachable only by message, the same
// actor-over-a-channel pattern the teacher's internal/core uses for its
// IndexOperation queue (one goroutine owns the mutable registry; every
// other goroutine talks to it through typed request structs on a
// channel, never through a shared mutex).
package state

import (
	"context"
	"time"

	"github.com/loglens/obscore/internal/search"
	"github.com/loglens/obscore/internal/types"
)

// OperationInfo is one entry of the operation registry (spec §4.8).
type OperationInfo struct {
	ID      types.OperationID
	Label   string
	Token   context.CancelFunc
	Started time.Time
	Ticks   int
}

// Stat is one row of GetOperationsStat's reply. Ticks is a SUPPLEMENTED
// FEATURE (SPEC_FULL.md #2): a running count of Progress{Ticks} events
// seen for this operation, mirroring the original's unbound/tracker.rs
// job accounting.
type Stat struct {
	ID       types.OperationID
	Label    string
	Started  time.Time
	Duration time.Duration
	Ticks    int
}

// State owns the session's mutable registry: in-flight operations, the
// current search map, and the debug flag. It is reachable only through
// the methods below, each of which is a message sent to the single
// goroutine started by New — callers never touch the registry directly.
type State struct {
	requests chan request
	done     chan struct{}
}

type request struct {
	kind     requestKind
	opID     types.OperationID
	label    string
	token    context.CancelFunc
	matches  *search.Map
	debug    bool
	reply    chan reply
}

type requestKind int

const (
	reqAddOperation requestKind = iota
	reqRemoveOperation
	reqCancelOperation
	reqCancelAll
	reqSetMatches
	reqGetSearchMap
	reqSetDebug
	reqGetOperationsStat
	reqIsDebug
	reqTick
	reqShutdown
)

type reply struct {
	added      bool
	canceled   bool
	matches    *search.Map
	stats      []Stat
	debug      bool
}

// New starts the state task and returns a handle. The handle is cheap to
// copy (it wraps two channels) — spec §3's "send-safe, cloneable" handle
// requirement.
func New() *State {
	s := &State{
		requests: make(chan request),
		done:     make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *State) run() {
	operations := make(map[types.OperationID]OperationInfo)
	var matches *search.Map
	var debug bool

	for req := range s.requests {
		switch req.kind {
		case reqAddOperation:
			if _, exists := operations[req.opID]; exists {
				req.reply <- reply{added: false}
				continue
			}
			operations[req.opID] = OperationInfo{
				ID:      req.opID,
				Label:   req.label,
				Token:   req.token,
				Started: time.Now(),
			}
			req.reply <- reply{added: true}

		case reqRemoveOperation:
			delete(operations, req.opID)
			req.reply <- reply{}

		case reqCancelOperation:
			op, exists := operations[req.opID]
			if !exists {
				req.reply <- reply{canceled: false}
				continue
			}
			op.Token()
			req.reply <- reply{canceled: true}

		case reqCancelAll:
			for _, op := range operations {
				op.Token()
			}
			req.reply <- reply{}

		case reqSetMatches:
			matches = req.matches
			req.reply <- reply{}

		case reqGetSearchMap:
			req.reply <- reply{matches: matches}

		case reqSetDebug:
			debug = req.debug
			req.reply <- reply{}

		case reqIsDebug:
			req.reply <- reply{debug: debug}

		case reqTick:
			if op, exists := operations[req.opID]; exists {
				op.Ticks++
				operations[req.opID] = op
			}
			req.reply <- reply{}

		case reqGetOperationsStat:
			stats := make([]Stat, 0, len(operations))
			now := time.Now()
			for _, op := range operations {
				stats = append(stats, Stat{
					ID:       op.ID,
					Label:    op.Label,
					Started:  op.Started,
					Duration: now.Sub(op.Started),
					Ticks:    op.Ticks,
				})
			}
			req.reply <- reply{stats: stats}

		case reqShutdown:
			for _, op := range operations {
				op.Token()
			}
			req.reply <- reply{}
			close(s.done)
			return
		}
	}
}

func (s *State) call(req request) reply {
	req.reply = make(chan reply, 1)
	s.requests <- req
	return <-req.reply
}

// AddOperation registers op, returning added=false if id is already in
// use (spec §4.8: "AddOperation with a duplicate id returns added=false").
func (s *State) AddOperation(id types.OperationID, label string, token context.CancelFunc) bool {
	return s.call(request{kind: reqAddOperation, opID: id, label: label, token: token}).added
}

// RemoveOperation drops id from the registry.
func (s *State) RemoveOperation(id types.OperationID) {
	s.call(request{kind: reqRemoveOperation, opID: id})
}

// CancelOperation fires id's cancellation token, returning false if id is
// not registered.
func (s *State) CancelOperation(id types.OperationID) bool {
	return s.call(request{kind: reqCancelOperation, opID: id}).canceled
}

// CancelAll fires every registered operation's token, the first step of
// End (spec §4.9).
func (s *State) CancelAll() {
	s.call(request{kind: reqCancelAll})
}

// SetMatches replaces the current search map. A nil map clears it.
func (s *State) SetMatches(m *search.Map) {
	s.call(request{kind: reqSetMatches, matches: m})
}

// GetSearchMap returns the current search map, or nil if none has been
// set (spec §4.10 step 1: "Load search map; if absent, return empty").
func (s *State) GetSearchMap() *search.Map {
	return s.call(request{kind: reqGetSearchMap}).matches
}

// SetDebug flips the per-session debug flag.
func (s *State) SetDebug(enabled bool) {
	s.call(request{kind: reqSetDebug, debug: enabled})
}

// IsDebug reports the current per-session debug flag.
func (s *State) IsDebug() bool {
	return s.call(request{kind: reqIsDebug}).debug
}

// GetOperationsStat returns a snapshot of every in-flight operation.
func (s *State) GetOperationsStat() []Stat {
	return s.call(request{kind: reqGetOperationsStat}).stats
}

// Tick increments id's progress tick counter. A no-op if id is not
// registered (e.g. a tick racing the operation's own removal).
func (s *State) Tick(id types.OperationID) {
	s.call(request{kind: reqTick, opID: id})
}

// Shutdown drains outstanding operations' tokens, waits for the state
// task to confirm, and exits (spec §4.8). After Shutdown returns, further
// calls on s panic (the request channel is closed) — callers must not
// retain the handle past End.
func (s *State) Shutdown() {
	s.call(request{kind: reqShutdown})
	close(s.requests)
	<-s.done
}
