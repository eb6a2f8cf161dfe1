package source

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUDPSourceReadsDatagram(t *testing.T) {
	src, err := NewUDPSource(UDPConfig{Address: "127.0.0.1:0", RingBufferCapacity: 1024, ReadChunkSize: 64})
	require.NoError(t, err)
	defer src.Close()

	clientConn, err := net.DialUDP("udp", nil, src.conn.LocalAddr().(*net.UDPAddr))
	require.NoError(t, err)
	defer clientConn.Close()

	_, err = clientConn.Write([]byte("datagram"))
	require.NoError(t, err)

	res, err := src.Load()
	require.NoError(t, err)
	assert.Equal(t, 8, res.Info.NewlyLoaded)
	assert.Equal(t, "datagram", string(src.CurrentSlice()))
}

func TestUDPSourceCloseIsEOF(t *testing.T) {
	src, err := NewUDPSource(UDPConfig{Address: "127.0.0.1:0", RingBufferCapacity: 1024, ReadChunkSize: 64})
	require.NoError(t, err)
	require.NoError(t, src.Close())

	res, err := src.Load()
	require.NoError(t, err)
	assert.True(t, res.EOF)
}
