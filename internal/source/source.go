// Package source implements the ByteSource capability of spec §4.1: a
// ring-buffered byte producer that a MessageProducer drains through
// Load/CurrentSlice/Consume, plus the reconnect state machine for network
// sources. Concrete adapters — file, TCP, UDP, serial, process — satisfy
// the same small interface so the producer never branches on wire
// transport, the "dynamic dispatch over sources" design note in spec §9.
package source

import (
	"time"
)

// ReloadInfo is the successful outcome of a Load call (spec §4.1).
type ReloadInfo struct {
	NewlyLoaded        int
	Available          int
	Skipped            int
	LastKnownTimestamp *time.Time
}

// LoadResult is the three-way outcome of Load: a ReloadInfo, an EOF
// sentinel, or an error (spec §4.1: "ReloadInfo | EOF | Fail<ErrorKind>").
// EOF is reported via the EOF field rather than a sentinel error so
// callers don't need errors.Is plumbing for a condition that isn't a
// failure.
type LoadResult struct {
	Info ReloadInfo
	EOF  bool
}

// Source is the ByteSource capability. Implementations are not required
// to be safe for concurrent use from more than one goroutine — the
// producer is the sole caller (spec §4.3).
type Source interface {
	// Load attempts to pull more bytes into the internal ring buffer.
	// Idempotent when no data is available and the source is configured
	// for reconnect (spec §4.1).
	Load() (LoadResult, error)

	// CurrentSlice returns the buffered, not-yet-consumed prefix. The
	// returned slice is only valid until the next Load or Consume call.
	CurrentSlice() []byte

	// Consume advances the read cursor by n, where n must not exceed
	// len(CurrentSlice()).
	Consume(n int) error

	// Len reports the number of currently buffered, unconsumed bytes.
	Len() int

	// Close releases any resources (file handles, sockets, watchers).
	Close() error
}

// Writable is an optional capability: a source whose peer can be written
// back to (spec §4.1: write(bytes) → ok | Fail).
type Writable interface {
	Write(p []byte) error
}

// ReconnectOutcome is the result of an explicit Reconnect call.
type ReconnectOutcome int

const (
	ReconnectOutcomeReconnected ReconnectOutcome = iota
	ReconnectOutcomeNotConfigured
)

// Reconnectable is an optional capability: sources that can re-establish
// a dropped connection (spec §4.1).
type Reconnectable interface {
	Reconnect() (ReconnectOutcome, error)
}

// ConnState is one state of the reconnect state machine (spec §4.1).
type ConnState int

const (
	StateConnected ConnState = iota
	StateReconnecting
	StateFailed
)

func (s ConnState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StateTransition is one observable reconnect state machine transition.
// Attempts is only meaningful in StateReconnecting.
type StateTransition struct {
	State    ConnState
	Attempts int
}
