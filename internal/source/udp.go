package source

import (
	"errors"
	"net"

	"github.com/loglens/obscore/internal/debug"
	"github.com/loglens/obscore/internal/errkind"
)

// UDPConfig configures a UDPSource.
type UDPConfig struct {
	Address            string // local address to listen on, host:port
	RingBufferCapacity int
	ReadChunkSize      int
}

// UDPSource reads datagrams from a UDP socket. Unlike TCPSource it is not
// Reconnectable: UDP is connectionless, so there is no peer link to lose
// and re-establish (spec §4.1 scopes the reconnect state machine to
// "network sources" that have one; the Non-goal list doesn't force UDP to
// fake a connection state it doesn't have).
type UDPSource struct {
	conn    *net.UDPConn
	ring    *ring
	readBuf []byte
}

// NewUDPSource binds cfg.Address and returns a ready UDPSource.
func NewUDPSource(cfg UDPConfig) (*UDPSource, error) {
	addr, err := net.ResolveUDPAddr("udp", cfg.Address)
	if err != nil {
		return nil, errkind.IO("source.udp.resolve", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, errkind.IO("source.udp.listen", err)
	}
	chunkSize := cfg.ReadChunkSize
	if chunkSize <= 0 {
		chunkSize = 64 * 1024
	}
	return &UDPSource{
		conn:    conn,
		ring:    newRing(cfg.RingBufferCapacity),
		readBuf: make([]byte, chunkSize),
	}, nil
}

// Load implements Source.
func (u *UDPSource) Load() (LoadResult, error) {
	if u.ring.nearCapacity() {
		return LoadResult{Info: ReloadInfo{Available: u.ring.available()}}, nil
	}
	n, _, err := u.conn.ReadFromUDP(u.readBuf[:min(len(u.readBuf), u.ring.remaining())])
	if n > 0 {
		if appendErr := u.ring.append(u.readBuf[:n]); appendErr != nil {
			return LoadResult{}, appendErr
		}
		debug.Source("udp %s read %d bytes", u.conn.LocalAddr(), n)
		return LoadResult{Info: ReloadInfo{NewlyLoaded: n, Available: u.ring.available()}}, nil
	}
	if err != nil {
		if errors.Is(err, net.ErrClosed) {
			return LoadResult{EOF: true}, nil
		}
		return LoadResult{}, errkind.IO("source.udp.read", err)
	}
	return LoadResult{Info: ReloadInfo{Available: u.ring.available()}}, nil
}

// CurrentSlice implements Source.
func (u *UDPSource) CurrentSlice() []byte { return u.ring.slice() }

// Consume implements Source.
func (u *UDPSource) Consume(n int) error { return u.ring.consume(n) }

// Len implements Source.
func (u *UDPSource) Len() int { return u.ring.available() }

// Close implements Source.
func (u *UDPSource) Close() error {
	if err := u.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return errkind.IO("source.udp.close", err)
	}
	return nil
}
