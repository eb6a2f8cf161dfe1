package session

import (
	"github.com/loglens/obscore/internal/errkind"
	"github.com/loglens/obscore/internal/orchestrator"
	"github.com/loglens/obscore/internal/search"
	"github.com/loglens/obscore/internal/types"
)

// EventKind discriminates one tagged value of the event protocol a
// Session emits to its external consumer (spec §6).
type EventKind int

const (
	EventStreamUpdated EventKind = iota
	EventStreamDone
	EventSearchUpdated
	EventSearchMapUpdated
	EventAttachmentsUpdated
	EventIndexedMapUpdated
	EventProgress
	EventOperationStarted
	EventOperationProcessing
	EventOperationDone
	EventOperationError
	EventSessionError
	EventSessionDestroyed
)

// Event is one value of the event protocol (spec §6). Only the fields
// relevant to Kind are populated; the rest are zero.
type Event struct {
	Kind EventKind
	OpID types.OperationID

	Rows uint64 // StreamUpdated, SearchUpdated

	Overview []search.Bucket // SearchMapUpdated

	Attachment *types.Attachment // AttachmentsUpdated

	IndexedLen int // IndexedMapUpdated

	Ticks        *orchestrator.Ticks        // Progress
	Notification *orchestrator.Notification // Progress

	Outcome orchestrator.Outcome // OperationDone
	Result  any                  // OperationDone with Outcome=Finished

	Severity types.Severity // OperationError, SessionError
	ErrKind  errkind.Kind   // OperationError, SessionError
	Message  string         // OperationError, SessionError
}

// Events returns the session's single output event stream. It is closed
// after EventSessionDestroyed is emitted, mirroring
// orchestrator.Orchestrator.Events.
func (s *Session) Events() <-chan Event {
	return s.events
}

// emit forwards ev to the session's output channel. The channel is
// generously buffered (spec §5: "the state→event channel is unbounded");
// a session-internal send never blocks the operation producing it under
// normal load.
func (s *Session) emit(ev Event) {
	s.events <- ev
}

// forwardOrchestratorEvents translates every orchestrator.Event into a
// session Event and forwards it, closing s.events once the orchestrator's
// stream closes (after SessionDestroyed) — the one place an
// orchestrator-level event and a pipeline/search-level event interleave
// onto the same consumer-facing channel.
func (s *Session) forwardOrchestratorEvents() {
	defer close(s.events)
	for ev := range s.orch.Events() {
		s.emit(translateOrchestratorEvent(ev))
	}
	s.closeResources()
}

func translateOrchestratorEvent(ev orchestrator.Event) Event {
	out := Event{OpID: ev.OpID, Outcome: ev.Outcome, Result: ev.Result, ErrKind: ev.ErrKind, Message: ev.Message, Ticks: ev.Ticks, Notification: ev.Notification}
	switch ev.Kind {
	case orchestrator.EventOperationStarted:
		out.Kind = EventOperationStarted
	case orchestrator.EventOperationProcessing:
		out.Kind = EventOperationProcessing
	case orchestrator.EventOperationDone:
		out.Kind = EventOperationDone
	case orchestrator.EventOperationError:
		out.Kind = EventOperationError
		out.Severity = types.SeverityError
	case orchestrator.EventProgress:
		out.Kind = EventProgress
	case orchestrator.EventSessionDestroyed:
		out.Kind = EventSessionDestroyed
	}
	return out
}
