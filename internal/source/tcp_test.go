package source

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func acceptOnce(t *testing.T, l net.Listener) <-chan net.Conn {
	t.Helper()
	ch := make(chan net.Conn, 1)
	go func() {
		conn, err := l.Accept()
		if err == nil {
			ch <- conn
		}
	}()
	return ch
}

func TestTCPSourceReadsData(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	accepted := acceptOnce(t, l)

	src, err := NewTCPSource(TCPConfig{
		Address:            l.Addr().String(),
		RingBufferCapacity: 1024,
		ReadChunkSize:      64,
	}, nil)
	require.NoError(t, err)
	defer src.Close()

	serverConn := <-accepted
	defer serverConn.Close()
	_, err = serverConn.Write([]byte("hello\n"))
	require.NoError(t, err)

	res, err := src.Load()
	require.NoError(t, err)
	assert.Equal(t, 6, res.Info.NewlyLoaded)
	assert.Equal(t, "hello\n", string(src.CurrentSlice()))
}

func TestTCPSourceReconnectStateMachine(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	accepted := acceptOnce(t, l)

	observer := make(chan StateTransition, 8)
	src, err := NewTCPSource(TCPConfig{
		Address:            addr,
		RingBufferCapacity: 1024,
		ReadChunkSize:      64,
		Reconnect:          ReconnectPolicy{MaxAttempts: 3, Interval: 20 * time.Millisecond},
	}, observer)
	require.NoError(t, err)
	defer src.Close()

	serverConn := <-accepted
	// Force the peer connection closed so the next Load sees a read error
	// and closing the listener makes the first reconnect dial fail.
	serverConn.Close()
	l.Close()

	go func() {
		time.Sleep(50 * time.Millisecond)
		l2, err := net.Listen("tcp", addr)
		if err != nil {
			return
		}
		defer l2.Close()
		conn, err := l2.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	_, err = src.Load()
	require.NoError(t, err)

	var states []ConnState
	timeout := time.After(2 * time.Second)
collect:
	for {
		select {
		case tr := <-observer:
			states = append(states, tr.State)
			if tr.State == StateConnected || tr.State == StateFailed {
				break collect
			}
		case <-timeout:
			t.Fatal("timed out waiting for reconnect transitions")
		}
	}

	require.NotEmpty(t, states)
	assert.Equal(t, StateReconnecting, states[0])
	assert.Equal(t, StateConnected, states[len(states)-1])
	assert.Equal(t, StateConnected, src.State())
}

func TestTCPSourceReconnectExhaustsAttempts(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	accepted := acceptOnce(t, l)

	observer := make(chan StateTransition, 8)
	src, err := NewTCPSource(TCPConfig{
		Address:            addr,
		RingBufferCapacity: 1024,
		ReadChunkSize:      64,
		Reconnect:          ReconnectPolicy{MaxAttempts: 2, Interval: 5 * time.Millisecond},
	}, observer)
	require.NoError(t, err)
	defer src.Close()

	serverConn := <-accepted
	serverConn.Close()
	l.Close()

	_, err = src.Load()
	require.Error(t, err)
	assert.Equal(t, StateFailed, src.State())

	var sawFailed bool
	for i := 0; i < 8; i++ {
		select {
		case tr := <-observer:
			if tr.State == StateFailed {
				sawFailed = true
			}
		default:
		}
	}
	assert.True(t, sawFailed)
}

func TestTCPSourceWrite(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	accepted := acceptOnce(t, l)

	src, err := NewTCPSource(TCPConfig{Address: l.Addr().String(), RingBufferCapacity: 64, ReadChunkSize: 64}, nil)
	require.NoError(t, err)
	defer src.Close()

	serverConn := <-accepted
	defer serverConn.Close()

	require.NoError(t, src.Write([]byte("ping")))

	buf := make([]byte, 4)
	_, err = io.ReadFull(serverConn, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))
}
