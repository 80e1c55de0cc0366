package session

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicecore/gateway/internal/config"
	"github.com/voicecore/gateway/internal/gatewaybus"
	"github.com/voicecore/gateway/pkg/voice"
)

// runDiscoveryResponder answers every IP-discovery request it receives
// until the test ends, so a session under test may reconnect and
// re-discover more than once.
func runDiscoveryResponder(t *testing.T, ssrc uint32) *net.UDPAddr {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 74)
		for {
			n, remote, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			if n != 74 {
				continue
			}
			resp := make([]byte, 74)
			resp[1] = 2 // response type
			resp[3] = 70
			resp[4] = byte(ssrc >> 24)
			resp[5] = byte(ssrc >> 16)
			resp[6] = byte(ssrc >> 8)
			resp[7] = byte(ssrc)
			copy(resp[8:], "127.0.0.1")
			resp[72] = 0xEA
			resp[73] = 0x60 // port 60000
			conn.WriteToUDP(resp, remote)
		}
	}()

	return conn.LocalAddr().(*net.UDPAddr)
}

func runFakeVoiceGateway(t *testing.T, discoveryAddr *net.UDPAddr, ssrc uint32) (wsURL string, closeServer func()) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		send := func(p voice.Payload) {
			raw, err := voice.Encode(p)
			require.NoError(t, err)
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
		}
		recv := func() voice.Payload {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return nil
			}
			p, err := voice.Decode(raw)
			require.NoError(t, err)
			return p
		}

		send(&voice.HelloPayload{HeartbeatIntervalMS: 200})
		if _, ok := recv().(*voice.IdentifyPayload); !ok {
			return
		}
		send(&voice.ReadyPayload{
			SSRC:  ssrc,
			IP:    discoveryAddr.IP.String(),
			Port:  uint16(discoveryAddr.Port),
			Modes: []string{"xsalsa20_poly1305_lite"},
		})
		if _, ok := recv().(*voice.SelectProtocolPayload); !ok {
			return
		}
		var key voice.SecretKey
		send(&voice.SessionDescriptionPayload{Mode: "xsalsa20_poly1305_lite", SecretKey: key})

		for {
			p := recv()
			if p == nil {
				return
			}
			if hb, ok := p.(*voice.HeartbeatPayload); ok {
				send(&voice.HeartbeatAckPayload{Nonce: hb.Nonce})
			}
		}
	}))

	wsURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	return wsURL, srv.Close
}

// runFakeVoiceGatewayDroppingFirstConnectionAcks behaves like
// runFakeVoiceGateway, except the first websocket connection it accepts
// silently drops every Heartbeat it receives instead of acking it, and
// rejects a Resume attempt (forcing a fallback to full reconnect). Every
// later connection acks normally, so a session that detects the
// ack-timeout, tears down, and reconnects ends up Connected again.
func runFakeVoiceGatewayDroppingFirstConnectionAcks(t *testing.T, discoveryAddr *net.UDPAddr, ssrc uint32) (wsURL string, closeServer func(), connAttempts func() int32) {
	t.Helper()
	var connCount int32
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempt := atomic.AddInt32(&connCount, 1)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		send := func(p voice.Payload) {
			raw, err := voice.Encode(p)
			require.NoError(t, err)
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
		}
		recv := func() voice.Payload {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return nil
			}
			p, err := voice.Decode(raw)
			require.NoError(t, err)
			return p
		}

		send(&voice.HelloPayload{HeartbeatIntervalMS: 80})
		if _, ok := recv().(*voice.IdentifyPayload); !ok {
			return // rejects Resume attempts, which aren't Identify
		}
		send(&voice.ReadyPayload{
			SSRC:  ssrc,
			IP:    discoveryAddr.IP.String(),
			Port:  uint16(discoveryAddr.Port),
			Modes: []string{"xsalsa20_poly1305_lite"},
		})
		if _, ok := recv().(*voice.SelectProtocolPayload); !ok {
			return
		}
		var key voice.SecretKey
		send(&voice.SessionDescriptionPayload{Mode: "xsalsa20_poly1305_lite", SecretKey: key})

		for {
			p := recv()
			if p == nil {
				return
			}
			hb, ok := p.(*voice.HeartbeatPayload)
			if !ok {
				continue
			}
			if attempt == 1 {
				continue // drop the ack to trigger the liveness timeout
			}
			send(&voice.HeartbeatAckPayload{Nonce: hb.Nonce})
		}
	}))

	wsURL = "ws" + strings.TrimPrefix(srv.URL, "http")
	return wsURL, srv.Close, func() int32 { return atomic.LoadInt32(&connCount) }
}

func newTestSession(t *testing.T) (*Session, *gatewaybus.MemoryBus, string) {
	discoveryAddr := runDiscoveryResponder(t, 42)
	wsURL, closeServer := runFakeVoiceGateway(t, discoveryAddr, 42)
	t.Cleanup(closeServer)

	bus := gatewaybus.NewMemoryBus()
	bus.Responder = func(cmd gatewaybus.UpdateVoiceStateCommand, b *gatewaybus.MemoryBus) {
		b.PublishVoiceState(gatewaybus.VoiceStateSnapshot{ServerID: cmd.ServerID, UserID: "bot1", SessionID: "sess1"})
		b.PublishVoiceServer(gatewaybus.VoiceServerSnapshot{ServerID: cmd.ServerID, Endpoint: wsURL, Token: "tok"})
	}

	cfg := config.DefaultConfig()
	cfg.Voice.HandshakeTimeoutMS = 1000
	cfg.Voice.IPDiscoveryTimeoutMS = 1000
	cfg.Voice.SessionDescriptionTimeoutMS = 1000

	s := New(&cfg.Voice, bus, gatewaybus.StaticUserResolver("bot1"), nil)
	return s, bus, wsURL
}

func TestSession_ConnectDrivesFullHandshake(t *testing.T) {
	s, _, _ := newTestSession(t)

	err := s.Connect(context.Background(), "srv1", "chan1")
	require.NoError(t, err)
	assert.Equal(t, StatusConnected, s.Status())

	require.NoError(t, s.Disconnect())
	assert.Equal(t, StatusOffline, s.Status())
}

func TestSession_Heartbeat_ReceivesAcks(t *testing.T) {
	s, _, _ := newTestSession(t)
	require.NoError(t, s.Connect(context.Background(), "srv1", "chan1"))
	defer s.Disconnect()

	time.Sleep(300 * time.Millisecond)

	s.mu.Lock()
	acked := s.heartbeat.LastNonceAcked
	s.mu.Unlock()
	assert.GreaterOrEqual(t, acked, uint64(1))
}

func TestTransmitAudio_RejectsConcurrentCalls(t *testing.T) {
	s, _, _ := newTestSession(t)
	require.NoError(t, s.Connect(context.Background(), "srv1", "chan1"))
	defer s.Disconnect()

	pcm1 := make(chan []int16)
	pcm2 := make(chan []int16)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.TransmitAudio(ctx, pcm1)
	}()
	time.Sleep(20 * time.Millisecond)

	err := s.TransmitAudio(context.Background(), pcm2)
	assert.ErrorIs(t, err, ErrAlreadyTransmitting)

	cancel()
	<-errCh
}

func TestTransmitAudio_ErrorsWhenNotConnected(t *testing.T) {
	s, _, _ := newTestSession(t)
	pcm := make(chan []int16)
	err := s.TransmitAudio(context.Background(), pcm)
	assert.Error(t, err)
}

// TestSession_HeartbeatAckTimeout_DisconnectsThenReconnects exercises
// the "suppress acks -> Disconnected -> Resume" scenario: the peer stops
// acking heartbeats, the session must notice within two missed
// intervals, tear the stale transport down exactly once, and come back
// up on its own once a healthier connection is available.
func TestSession_HeartbeatAckTimeout_DisconnectsThenReconnects(t *testing.T) {
	discoveryAddr := runDiscoveryResponder(t, 99)
	wsURL, closeServer, connAttempts := runFakeVoiceGatewayDroppingFirstConnectionAcks(t, discoveryAddr, 99)
	t.Cleanup(closeServer)

	bus := gatewaybus.NewMemoryBus()
	bus.Responder = func(cmd gatewaybus.UpdateVoiceStateCommand, b *gatewaybus.MemoryBus) {
		b.PublishVoiceState(gatewaybus.VoiceStateSnapshot{ServerID: cmd.ServerID, UserID: "bot1", SessionID: "sess1"})
		b.PublishVoiceServer(gatewaybus.VoiceServerSnapshot{ServerID: cmd.ServerID, Endpoint: wsURL, Token: "tok"})
	}

	cfg := config.DefaultConfig()
	cfg.Voice.HandshakeTimeoutMS = 1000
	cfg.Voice.IPDiscoveryTimeoutMS = 1000
	cfg.Voice.SessionDescriptionTimeoutMS = 1000

	s := New(&cfg.Voice, bus, gatewaybus.StaticUserResolver("bot1"), nil)
	require.NoError(t, s.Connect(context.Background(), "srv1", "chan1"))
	require.Equal(t, StatusConnected, s.Status())
	require.EqualValues(t, 1, connAttempts())

	// The fake gateway drops every heartbeat ack on this first connection,
	// so the session must detect the timeout on its own, close the stale
	// transport, and dial again (attempt 2, a failed Resume) and again
	// (attempt 3, a full reconnect that the gateway acks normally).
	assert.Eventually(t, func() bool {
		return connAttempts() >= 3
	}, 2*time.Second, 10*time.Millisecond, "session never tore down the stale transport and reconnected")

	assert.Eventually(t, func() bool {
		return s.Status() == StatusConnected
	}, 5*time.Second, 10*time.Millisecond, "session never reconnected after the ack timeout")

	s.mu.Lock()
	acked := s.heartbeat.LastNonceAcked
	s.mu.Unlock()
	assert.GreaterOrEqual(t, acked, uint64(1), "reconnected session should be getting heartbeat acks again")

	require.NoError(t, s.Disconnect())
}
