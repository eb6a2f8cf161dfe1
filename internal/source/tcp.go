package source

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/loglens/obscore/internal/debug"
	"github.com/loglens/obscore/internal/errkind"
)

// ReconnectPolicy configures the network reconnect state machine of spec
// §4.1.
type ReconnectPolicy struct {
	MaxAttempts int
	Interval    time.Duration
}

// TCPConfig configures a TCPSource.
type TCPConfig struct {
	Address            string // host:port
	RingBufferCapacity int
	ReadChunkSize      int
	Reconnect          ReconnectPolicy
	// DialFunc is overridable for tests; defaults to net.Dial.
	DialFunc func(network, address string) (net.Conn, error)
}

// TCPSource reads a stream from a TCP peer and implements the
// Connected/Reconnecting(attempts)/Failed state machine of spec §4.1.
type TCPSource struct {
	cfg     TCPConfig
	ring    *ring
	readBuf []byte

	mu       sync.Mutex
	conn     net.Conn
	state    ConnState
	attempts int
	observer chan<- StateTransition
	closed   chan struct{}
	closeOne sync.Once
}

// NewTCPSource dials cfg.Address and returns a ready TCPSource. observer
// may be nil; if non-nil it receives every state transition (spec §4.1).
func NewTCPSource(cfg TCPConfig, observer chan<- StateTransition) (*TCPSource, error) {
	if cfg.DialFunc == nil {
		cfg.DialFunc = net.Dial
	}
	chunkSize := cfg.ReadChunkSize
	if chunkSize <= 0 {
		chunkSize = 64 * 1024
	}

	conn, err := cfg.DialFunc("tcp", cfg.Address)
	if err != nil {
		return nil, errkind.IO("source.tcp.dial", err)
	}

	return &TCPSource{
		cfg:      cfg,
		ring:     newRing(cfg.RingBufferCapacity),
		readBuf:  make([]byte, chunkSize),
		conn:     conn,
		state:    StateConnected,
		observer: observer,
		closed:   make(chan struct{}),
	}, nil
}

// publish reports tr to the observer, if configured, guaranteeing delivery
// (spec §4.1: "A state observer channel ... receives every transition; the
// initial Reconnecting{0} must be observable before the first attempt so
// subscribers do not miss it"), matching the original's
// tokio::sync::watch send_replace + yield_now guarantee. It blocks on the
// send so an observer of any buffer depth, including zero, still receives
// every transition; Close unblocks a send left in flight when the source
// is torn down mid-reconnect.
func (t *TCPSource) publish(tr StateTransition) {
	t.mu.Lock()
	t.state = tr.State
	t.attempts = tr.Attempts
	obs := t.observer
	t.mu.Unlock()

	if obs == nil {
		return
	}
	select {
	case obs <- tr:
	case <-t.closed:
	}
}

// State reports the current reconnect state machine state.
func (t *TCPSource) State() ConnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Load implements Source.
func (t *TCPSource) Load() (LoadResult, error) {
	if t.ring.nearCapacity() {
		return LoadResult{Info: ReloadInfo{Available: t.ring.available()}}, nil
	}

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()

	n, err := conn.Read(t.readBuf[:min(len(t.readBuf), t.ring.remaining())])
	if n > 0 {
		if appendErr := t.ring.append(t.readBuf[:n]); appendErr != nil {
			return LoadResult{}, appendErr
		}
		return LoadResult{Info: ReloadInfo{NewlyLoaded: n, Available: t.ring.available()}}, nil
	}

	if err == nil {
		return LoadResult{Info: ReloadInfo{Available: t.ring.available()}}, nil
	}

	// Zero-byte read or read error: attempt reconnect (spec §4.1).
	if reconnectErr := t.runReconnect(err); reconnectErr != nil {
		return LoadResult{}, reconnectErr
	}
	return LoadResult{Info: ReloadInfo{Available: t.ring.available()}}, nil
}

// Reconnect implements Reconnectable for an explicit, user-triggered
// reconnect (as opposed to the one Load triggers automatically on error).
func (t *TCPSource) Reconnect() (ReconnectOutcome, error) {
	if t.cfg.Reconnect.MaxAttempts <= 0 {
		return ReconnectOutcomeNotConfigured, nil
	}
	if err := t.runReconnect(nil); err != nil {
		return ReconnectOutcomeNotConfigured, err
	}
	return ReconnectOutcomeReconnected, nil
}

// runReconnect drives the state machine: publish Reconnecting{0} before
// the first attempt, then Reconnecting{k} before each subsequent attempt,
// until a dial succeeds (publish Connected) or attempts are exhausted
// (publish Failed and return an error carrying both causes).
func (t *TCPSource) runReconnect(originalErr error) error {
	policy := t.cfg.Reconnect
	if policy.MaxAttempts <= 0 {
		t.publish(StateTransition{State: StateFailed})
		return errkind.IO("source.tcp.reconnect", fmt.Errorf("connection lost and reconnect not configured: %w", nonNilOr(originalErr, io.EOF)))
	}

	t.publish(StateTransition{State: StateReconnecting, Attempts: 0})

	var lastErr error = originalErr
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		if attempt > 1 {
			t.publish(StateTransition{State: StateReconnecting, Attempts: attempt - 1})
		}
		if policy.Interval > 0 {
			time.Sleep(policy.Interval)
		}
		debug.Source("tcp %s reconnect attempt %d/%d", t.cfg.Address, attempt, policy.MaxAttempts)
		conn, dialErr := t.cfg.DialFunc("tcp", t.cfg.Address)
		if dialErr == nil {
			t.mu.Lock()
			t.conn.Close()
			t.conn = conn
			t.mu.Unlock()
			t.publish(StateTransition{State: StateConnected})
			return nil
		}
		lastErr = dialErr
	}

	t.publish(StateTransition{State: StateFailed})
	return errkind.IO("source.tcp.reconnect", fmt.Errorf("exhausted %d attempts, original error: %v, last reconnect error: %w", policy.MaxAttempts, originalErr, lastErr))
}

func nonNilOr(err, fallback error) error {
	if err != nil {
		return err
	}
	return fallback
}

// CurrentSlice implements Source.
func (t *TCPSource) CurrentSlice() []byte { return t.ring.slice() }

// Consume implements Source.
func (t *TCPSource) Consume(n int) error { return t.ring.consume(n) }

// Len implements Source.
func (t *TCPSource) Len() int { return t.ring.available() }

// Write implements Writable: TCP sources can write back to the peer.
func (t *TCPSource) Write(p []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	_, err := conn.Write(p)
	if err != nil {
		return errkind.IO("source.tcp.write", err)
	}
	return nil
}

// Close implements Source.
func (t *TCPSource) Close() error {
	t.closeOne.Do(func() { close(t.closed) })

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	if err != nil && !errors.Is(err, net.ErrClosed) {
		return errkind.IO("source.tcp.close", err)
	}
	return nil
}
