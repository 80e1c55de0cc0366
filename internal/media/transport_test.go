package media

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicecore/gateway/internal/crypto"
)

func runDiscoveryServer(t *testing.T, ssrc uint32, address string, port uint16) *net.UDPAddr {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, err)

	go func() {
		buf := make([]byte, discoveryPacketSize)
		n, remote, err := conn.ReadFromUDP(buf)
		if err != nil || n != discoveryPacketSize {
			conn.Close()
			return
		}
		resp := packResponse(ssrc, address, port)
		conn.WriteToUDP(resp, remote)
		conn.Close()
	}()

	return conn.LocalAddr().(*net.UDPAddr)
}

func TestTransport_ConnectPerformsIPDiscoveryRoundTrip(t *testing.T) {
	addr := runDiscoveryServer(t, 777, "198.51.100.9", 61000)

	transport := NewTransport()
	resp, err := transport.Connect(context.Background(), 777, addr.IP.String(), uint16(addr.Port), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "198.51.100.9", resp.Address)
	assert.Equal(t, uint16(61000), resp.Port)
	require.NoError(t, transport.Disconnect())
}

func TestTransport_ConnectTimesOutWhenServerNeverReplies(t *testing.T) {
	silent, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, err)
	defer silent.Close()

	transport := NewTransport()
	_, err = transport.Connect(context.Background(), 1, "127.0.0.1", uint16(silent.LocalAddr().(*net.UDPAddr).Port), 50*time.Millisecond)
	require.Error(t, err)
}

func TestSendFrame_ErrorsBeforeConnect(t *testing.T) {
	transport := NewTransport()
	err := transport.SendFrame([]byte("frame"), 960)
	assert.Error(t, err)
}

func TestSendFrame_ErrorsBeforeInitialize(t *testing.T) {
	server, client := udpPair(t)
	defer server.Close()
	defer client.Close()

	transport := NewTransport()
	transport.mu.Lock()
	transport.conn = client
	transport.mu.Unlock()

	err := transport.SendFrame([]byte("frame"), 960)
	assert.Error(t, err)
}

func TestSelectEncryptionMode_ErrorsWhenNoneSupported(t *testing.T) {
	transport := NewTransport()
	_, err := transport.SelectEncryptionMode([]string{"unsupported_mode"})
	assert.ErrorIs(t, err, crypto.ErrNoSupportedMode)
}

func TestDisconnect_IsIdempotent(t *testing.T) {
	transport := NewTransport()
	require.NoError(t, transport.Disconnect())
	require.NoError(t, transport.Disconnect())
}
