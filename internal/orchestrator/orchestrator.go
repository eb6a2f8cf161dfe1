// Package orchestrator implements the OperationOrchestrator of spec §4.9:
// a single command channel multiplexed into independent, cancellable
// tasks, each reporting its own lifecycle back on a shared event channel.
// The supervision pattern — one goroutine per submitted unit of work,
// joined on shutdown — is grounded on the teacher's internal/core worker
// pool (internal/core/file_loader.go's bounded worker fan-out) and
// generalized here with golang.org/x/sync/errgroup in place of a bare
// sync.WaitGroup, the way the bigmachine example in the retrieval pack
// supervises a dynamic set of remote tasks.
package orchestrator

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/loglens/obscore/internal/errkind"
	"github.com/loglens/obscore/internal/types"
)

// Kind is one member of the closed Operation set (spec §4.9).
type Kind string

const (
	KindObserve    Kind = "observe"
	KindSearch     Kind = "search"
	KindExtract    Kind = "extract"
	KindMap        Kind = "map"
	KindConcat     Kind = "concat"
	KindMerge      Kind = "merge"
	KindGetNearest Kind = "get_nearest"
	KindCancel     Kind = "cancel"
	KindSleep      Kind = "sleep" // test-only, spec §4.9
	KindEnd        Kind = "end"
)

// Body is the domain-specific work of a non-control operation (Observe,
// Search, Extract, Map, Concat, Merge, GetNearest). Control operations
// (Cancel, Sleep, End) are handled by the orchestrator itself and ignore
// Body. Body must return promptly once ctx is cancelled (spec §5's
// "observe the cancellation token at every suspension point").
type Body func(ctx context.Context) (any, error)

// Operation is one submitted unit of work.
type Operation struct {
	Kind  Kind
	Body  Body   // required for all kinds except Cancel, Sleep, End
	Target types.OperationID // Cancel's target_op_id
	Sleep time.Duration      // Sleep's duration
}

// Canceler fires an operation's cancellation token and reports whether it
// was registered — the subset of state.State the orchestrator needs,
// kept as an interface so tests can supply a fake registry.
type Canceler interface {
	AddOperation(id types.OperationID, label string, token context.CancelFunc) bool
	RemoveOperation(id types.OperationID)
	CancelOperation(id types.OperationID) bool
	CancelAll()
	Tick(id types.OperationID)
}

// Outcome discriminates a terminal OperationDone event (spec §4.9's
// state machine: Pending → Running → {Finished, Cancelled, Failed}).
type Outcome int

const (
	OutcomeFinished Outcome = iota
	OutcomeCancelled
)

// EventKind discriminates one lifecycle event (spec §6).
type EventKind int

const (
	EventOperationStarted EventKind = iota
	EventOperationProcessing
	EventOperationDone
	EventOperationError
	EventProgress
	EventSessionDestroyed
)

// Ticks is the numeric-progress variant of a Progress event (spec §6):
// count out of total, plus a caller-defined state label (e.g. "scanning").
type Ticks struct {
	Count int
	Total int
	State string
}

// Notification is the free-text variant of a Progress event (spec §6): a
// severity-tagged message, optionally anchored to a row.
type Notification struct {
	Severity types.Severity
	Content  string
	Line     *uint64
}

// Event is one lifecycle notification emitted to the external consumer.
type Event struct {
	Kind    EventKind
	OpID    types.OperationID
	Outcome Outcome      // valid on EventOperationDone
	Result  any          // valid on EventOperationDone with Outcome=Finished
	ErrKind errkind.Kind // valid on EventOperationError
	Message string       // valid on EventOperationError

	// Ticks and Notification are the two Progress variants (spec §6);
	// exactly one is set on an EventProgress event.
	Ticks        *Ticks
	Notification *Notification
}

// Orchestrator consumes (op_id, Operation) pairs from a single channel
// and multiplexes them into independent cancellable tasks.
type Orchestrator struct {
	state    Canceler
	commands chan command
	events   chan Event

	sessionCtx    context.Context
	sessionCancel context.CancelFunc
	group         *errgroup.Group
}

type command struct {
	id types.OperationID
	op Operation
}

// New builds an Orchestrator rooted at a fresh session cancellation
// token (spec §3: "Cancellation tokens form a tree rooted at the session
// token; each operation owns a child").
func New(state Canceler) *Orchestrator {
	sessionCtx, sessionCancel := context.WithCancel(context.Background())
	return &Orchestrator{
		state:         state,
		commands:      make(chan command),
		events:        make(chan Event, 64),
		sessionCtx:    sessionCtx,
		sessionCancel: sessionCancel,
		group:         &errgroup.Group{},
	}
}

// Events returns the orchestrator's lifecycle event stream. It is closed
// after SessionDestroyed is emitted.
func (o *Orchestrator) Events() <-chan Event {
	return o.events
}

// EmitTicks reports numeric progress for id, both to the event stream and
// to the operation registry's running tick counter (SPEC_FULL.md
// SUPPLEMENTED FEATURES #2). Operation bodies call this directly. It takes
// no context: the send to the event stream is not tied to cancellation and
// blocks while the event buffer is full.
func (o *Orchestrator) EmitTicks(id types.OperationID, count, total int, state string) {
	o.state.Tick(id)
	o.events <- Event{Kind: EventProgress, OpID: id, Ticks: &Ticks{Count: count, Total: total, State: state}}
}

// EmitNotification reports a free-text progress message for id.
func (o *Orchestrator) EmitNotification(id types.OperationID, severity types.Severity, content string, line *uint64) {
	o.events <- Event{Kind: EventProgress, OpID: id, Notification: &Notification{Severity: severity, Content: content, Line: line}}
}

// Submit enqueues op under id. Submit blocks until the orchestrator's Run
// loop accepts it; callers on a cancelled session should not call Submit
// after an End has been submitted.
func (o *Orchestrator) Submit(id types.OperationID, op Operation) {
	o.commands <- command{id: id, op: op}
}

// Run consumes commands until an End operation is processed, then drains
// in-flight tasks, emits SessionDestroyed, and returns.
func (o *Orchestrator) Run() {
	defer close(o.events)
	for cmd := range o.commands {
		if cmd.op.Kind == KindEnd {
			o.state.CancelAll()
			o.group.Wait()
			o.events <- Event{Kind: EventSessionDestroyed}
			return
		}
		o.dispatch(cmd.id, cmd.op)
	}
}

func (o *Orchestrator) dispatch(id types.OperationID, op Operation) {
	ctx, cancel := context.WithCancel(o.sessionCtx)

	if !o.state.AddOperation(id, string(op.Kind), cancel) {
		cancel()
		o.events <- Event{Kind: EventOperationError, OpID: id, ErrKind: errkind.KindInvalidArgs, Message: "duplicate operation id"}
		return
	}

	o.events <- Event{Kind: EventOperationStarted, OpID: id}

	body := op.Body
	if body == nil {
		body = o.controlBody(op)
	}

	o.group.Go(func() error {
		defer cancel()
		defer o.state.RemoveOperation(id)

		o.events <- Event{Kind: EventOperationProcessing, OpID: id}

		result, err := o.runBody(ctx, body)

		switch {
		case err != nil && (errkind.IsKind(err, errkind.KindCancelled) || errors.Is(err, context.Canceled)):
			o.events <- Event{Kind: EventOperationDone, OpID: id, Outcome: OutcomeCancelled}
		case err != nil:
			kind := errkind.KindUnsupported
			var e *errkind.Error
			if errors.As(err, &e) {
				kind = e.Kind
			}
			o.events <- Event{Kind: EventOperationError, OpID: id, ErrKind: kind, Message: err.Error()}
		default:
			o.events <- Event{Kind: EventOperationDone, OpID: id, Outcome: OutcomeFinished, Result: result}
		}
		return nil
	})
}

// runBody awaits the operation body against ctx, which already observes
// both the operation's own token and the session token (it is derived
// from the session context via context.WithCancel) — the "three-way
// select" of spec §4.9 step 3 collapses to two, since cancelling either
// parent propagates through ctx.Done() without a separate select arm.
func (o *Orchestrator) runBody(ctx context.Context, body Body) (any, error) {
	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := body(ctx)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		return nil, errkind.Cancelled("orchestrator.runBody")
	}
}

func (o *Orchestrator) controlBody(op Operation) Body {
	switch op.Kind {
	case KindCancel:
		return func(ctx context.Context) (any, error) {
			return o.state.CancelOperation(op.Target), nil
		}
	case KindSleep:
		return func(ctx context.Context) (any, error) {
			select {
			case <-time.After(op.Sleep):
				return nil, nil
			case <-ctx.Done():
				return nil, errkind.Cancelled("orchestrator.sleep")
			}
		}
	default:
		return func(ctx context.Context) (any, error) {
			return nil, errkind.InvalidArgs("orchestrator.dispatch", errors.New("operation has no body"))
		}
	}
}
