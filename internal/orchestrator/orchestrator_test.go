package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loglens/obscore/internal/errkind"
	"github.com/loglens/obscore/internal/types"
)

// fakeCanceler is a minimal in-memory Canceler test double, mirroring
// producer_test.go's fakeSource: just enough state.State behavior to drive
// the orchestrator's dispatch/cancel/tick paths without a real actor.
type fakeCanceler struct {
	mu     sync.Mutex
	tokens map[types.OperationID]context.CancelFunc
	ticks  map[types.OperationID]int
}

func newFakeCanceler() *fakeCanceler {
	return &fakeCanceler{
		tokens: make(map[types.OperationID]context.CancelFunc),
		ticks:  make(map[types.OperationID]int),
	}
}

func (f *fakeCanceler) AddOperation(id types.OperationID, label string, token context.CancelFunc) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tokens[id]; ok {
		return false
	}
	f.tokens[id] = token
	return true
}

func (f *fakeCanceler) RemoveOperation(id types.OperationID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tokens, id)
}

func (f *fakeCanceler) CancelOperation(id types.OperationID) bool {
	f.mu.Lock()
	token, ok := f.tokens[id]
	f.mu.Unlock()
	if !ok {
		return false
	}
	token()
	return true
}

func (f *fakeCanceler) CancelAll() {
	f.mu.Lock()
	tokens := make([]context.CancelFunc, 0, len(f.tokens))
	for _, token := range f.tokens {
		tokens = append(tokens, token)
	}
	f.mu.Unlock()
	for _, token := range tokens {
		token()
	}
}

func (f *fakeCanceler) Tick(id types.OperationID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticks[id]++
}

func collectUntilDestroyed(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	for ev := range events {
		out = append(out, ev)
		if ev.Kind == EventSessionDestroyed {
			break
		}
	}
	return out
}

func TestOrchestratorRunsOperationToCompletion(t *testing.T) {
	o := New(newFakeCanceler())
	go o.Run()

	id := uuid.New()
	o.Submit(id, Operation{Kind: KindObserve, Body: func(ctx context.Context) (any, error) {
		return 42, nil
	}})

	var kinds []EventKind
	var result any
	for i := 0; i < 3; i++ {
		ev := <-o.Events()
		kinds = append(kinds, ev.Kind)
		if ev.Kind == EventOperationDone {
			result = ev.Result
		}
	}
	assert.Equal(t, []EventKind{EventOperationStarted, EventOperationProcessing, EventOperationDone}, kinds)
	assert.Equal(t, 42, result)

	endID := uuid.New()
	o.Submit(endID, Operation{Kind: KindEnd})
	events := collectUntilDestroyed(t, o.Events())
	require.Len(t, events, 1)
	assert.Equal(t, EventSessionDestroyed, events[0].Kind)
}

func TestOrchestratorRejectsDuplicateOperationID(t *testing.T) {
	o := New(newFakeCanceler())
	go o.Run()

	id := uuid.New()
	release := make(chan struct{})
	o.Submit(id, Operation{Kind: KindObserve, Body: func(ctx context.Context) (any, error) {
		<-release
		return nil, nil
	}})
	require.Equal(t, EventOperationStarted, (<-o.Events()).Kind)
	require.Equal(t, EventOperationProcessing, (<-o.Events()).Kind)

	o.Submit(id, Operation{Kind: KindObserve, Body: func(ctx context.Context) (any, error) {
		return nil, nil
	}})
	dup := <-o.Events()
	assert.Equal(t, EventOperationError, dup.Kind)
	assert.Equal(t, errkind.KindInvalidArgs, dup.ErrKind)

	close(release)
	require.Equal(t, EventOperationDone, (<-o.Events()).Kind)

	o.Submit(uuid.New(), Operation{Kind: KindEnd})
	collectUntilDestroyed(t, o.Events())
}

func TestOrchestratorCancelStopsBodyWithCancelledOutcome(t *testing.T) {
	o := New(newFakeCanceler())
	go o.Run()

	id := uuid.New()
	o.Submit(id, Operation{Kind: KindObserve, Body: func(ctx context.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}})
	require.Equal(t, EventOperationStarted, (<-o.Events()).Kind)
	require.Equal(t, EventOperationProcessing, (<-o.Events()).Kind)

	cancelID := uuid.New()
	o.Submit(cancelID, Operation{Kind: KindCancel, Target: id})
	require.Equal(t, EventOperationStarted, (<-o.Events()).Kind)
	require.Equal(t, EventOperationProcessing, (<-o.Events()).Kind)

	// The cancelled op's own Done and the cancel op's Done race each other;
	// only their relative order to the cancel's Started/Processing (above)
	// is guaranteed, so collect both without assuming which comes first.
	var targetDone, cancelDone *Event
	for targetDone == nil || cancelDone == nil {
		ev := <-o.Events()
		switch ev.OpID {
		case id:
			targetDone = &ev
		case cancelID:
			cancelDone = &ev
		}
	}
	assert.Equal(t, EventOperationDone, targetDone.Kind)
	assert.Equal(t, OutcomeCancelled, targetDone.Outcome)
	assert.Equal(t, EventOperationDone, cancelDone.Kind)

	o.Submit(uuid.New(), Operation{Kind: KindEnd})
	collectUntilDestroyed(t, o.Events())
}

func TestOrchestratorSleepHonorsDuration(t *testing.T) {
	o := New(newFakeCanceler())
	go o.Run()

	id := uuid.New()
	start := time.Now()
	o.Submit(id, Operation{Kind: KindSleep, Sleep: 20 * time.Millisecond})
	require.Equal(t, EventOperationStarted, (<-o.Events()).Kind)
	require.Equal(t, EventOperationProcessing, (<-o.Events()).Kind)
	done := <-o.Events()
	assert.Equal(t, EventOperationDone, done.Kind)
	assert.Equal(t, OutcomeFinished, done.Outcome)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	o.Submit(uuid.New(), Operation{Kind: KindEnd})
	collectUntilDestroyed(t, o.Events())
}

func TestOrchestratorEmitTicksAndNotificationReachEventStream(t *testing.T) {
	fc := newFakeCanceler()
	o := New(fc)
	go o.Run()

	id := uuid.New()
	o.Submit(id, Operation{Kind: KindObserve, Body: func(ctx context.Context) (any, error) {
		o.EmitTicks(id, 1, 2, "scanning")
		line := uint64(7)
		o.EmitNotification(id, types.SeverityWarning, "slow source", &line)
		return nil, nil
	}})

	require.Equal(t, EventOperationStarted, (<-o.Events()).Kind)
	require.Equal(t, EventOperationProcessing, (<-o.Events()).Kind)

	tickEv := <-o.Events()
	require.Equal(t, EventProgress, tickEv.Kind)
	require.NotNil(t, tickEv.Ticks)
	assert.Equal(t, 1, tickEv.Ticks.Count)
	assert.Equal(t, 2, tickEv.Ticks.Total)
	assert.Equal(t, "scanning", tickEv.Ticks.State)

	noteEv := <-o.Events()
	require.Equal(t, EventProgress, noteEv.Kind)
	require.NotNil(t, noteEv.Notification)
	assert.Equal(t, types.SeverityWarning, noteEv.Notification.Severity)
	assert.Equal(t, "slow source", noteEv.Notification.Content)
	require.NotNil(t, noteEv.Notification.Line)
	assert.Equal(t, uint64(7), *noteEv.Notification.Line)

	require.Equal(t, EventOperationDone, (<-o.Events()).Kind)

	fc.mu.Lock()
	assert.Equal(t, 1, fc.ticks[id])
	fc.mu.Unlock()

	o.Submit(uuid.New(), Operation{Kind: KindEnd})
	collectUntilDestroyed(t, o.Events())
}
