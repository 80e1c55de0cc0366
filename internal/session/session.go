// Package session implements C5, the voice session lifecycle state
// machine: it drives the C1 handshake rendezvous, the C2 control
// transport's Identify/Ready/SelectProtocol/SessionDescription sequence,
// the C3 media transport's IP discovery and encrypted send path, and the
// heartbeat/reconnect policy that keeps the pair alive across transient
// failures.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/voicecore/gateway/internal/codec"
	"github.com/voicecore/gateway/internal/config"
	"github.com/voicecore/gateway/internal/gateway"
	"github.com/voicecore/gateway/internal/gatewaybus"
	"github.com/voicecore/gateway/internal/media"
	"github.com/voicecore/gateway/internal/rendezvous"
	"github.com/voicecore/gateway/pkg/voice"
	"github.com/voicecore/gateway/pkg/voiceerr"
	"github.com/voicecore/gateway/shared/backoff"
	"github.com/voicecore/gateway/shared/id"
)

// tracer emits spans around the handshake and transmit paths. No
// exporter is configured here; the host process wires its own
// TracerProvider via otel.SetTracerProvider, same as any other
// OpenTelemetry-instrumented library.
var tracer = otel.Tracer("github.com/voicecore/gateway/internal/session")

// ErrAlreadyTransmitting is returned by TransmitAudio when a
// transmission is already in progress on this session.
var ErrAlreadyTransmitting = fmt.Errorf("session: a transmission is already in progress")

// Session is a single voice channel connection: one ServerID, one
// control transport, one media transport. It is safe for concurrent use;
// TransmitAudio rejects concurrent calls rather than interleaving them.
type Session struct {
	cfg   *config.VoiceConfig
	bus   gatewaybus.Bus
	rdv   *rendezvous.Rendezvous
	users gatewaybus.UserResolver
	log   *slog.Logger

	correlationID string

	mu        sync.Mutex
	status    ConnectionStatus
	ctl       *gateway.Transport
	med       *media.Transport
	enc       *codec.Encoder
	pair      gatewaybus.HandshakePair
	heartbeat HeartbeatState
	cancel    context.CancelFunc

	wg           sync.WaitGroup
	transmitting atomic.Bool
}

// New constructs a Session and subscribes it to bus for voice state and
// voice server snapshots, forwarding both into its own C1 rendezvous.
func New(cfg *config.VoiceConfig, bus gatewaybus.Bus, users gatewaybus.UserResolver, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		cfg:           cfg,
		bus:           bus,
		users:         users,
		log:           logger,
		correlationID: id.NewSession(),
		status:        StatusOffline,
	}
	s.rdv = rendezvous.New(users)
	bus.Subscribe(s)
	return s
}

// OnVoiceStateUpdate implements gatewaybus.Subscriber.
func (s *Session) OnVoiceStateUpdate(snap gatewaybus.VoiceStateSnapshot) {
	_ = s.rdv.SubmitState(context.Background(), snap)
}

// OnVoiceServerUpdate implements gatewaybus.Subscriber.
func (s *Session) OnVoiceServerUpdate(snap gatewaybus.VoiceServerSnapshot) {
	_ = s.rdv.SubmitServer(context.Background(), snap)
}

func (s *Session) Status() ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) setStatus(st ConnectionStatus) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// Connect requests that the host bot join channelID in serverID, waits
// for the resulting handshake pair, and drives the full connection
// sequence through to a live, encrypted media path.
func (s *Session) Connect(ctx context.Context, serverID gatewaybus.ServerID, channelID string) error {
	ctx, span := tracer.Start(ctx, "session.Connect", trace.WithAttributes(
		attribute.String("server_id", string(serverID)),
		attribute.String("channel_id", channelID),
	))
	defer span.End()

	s.setStatus(StatusConnecting)
	s.log.Info("voice session connecting", "server_id", serverID, "correlation_id", s.correlationID)

	if err := s.bus.SubmitVoiceStateUpdate(ctx, gatewaybus.UpdateVoiceStateCommand{
		ServerID:  serverID,
		ChannelID: &channelID,
	}); err != nil {
		s.setStatus(StatusOffline)
		err = voiceerr.New(voiceerr.CategoryLocal, "submit_voice_state", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	timeout := time.Duration(s.cfg.HandshakeTimeoutMS) * time.Millisecond
	pair, err := s.rdv.WaitFor(ctx, serverID, timeout)
	if err != nil {
		s.setStatus(StatusOffline)
		err = voiceerr.New(voiceerr.CategoryLocal, "handshake_rendezvous", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if err := s.establish(ctx, pair); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// establish runs the full Identify handshake against a fresh control
// transport: Hello, Identify, Ready, IP discovery, SelectProtocol,
// SessionDescription, then starts the heartbeat and receive loops.
func (s *Session) establish(ctx context.Context, pair gatewaybus.HandshakePair) error {
	ctl := gateway.NewTransport()
	if err := ctl.Connect(ctx, pair.Server.Endpoint); err != nil {
		s.setStatus(StatusOffline)
		return err
	}

	hello, err := expectPayload[*voice.HelloPayload](ctl, ctx, "expected_hello")
	if err != nil {
		ctl.Disconnect()
		s.setStatus(StatusOffline)
		return err
	}

	if err := ctl.Send(&voice.IdentifyPayload{
		ServerID:  string(pair.Server.ServerID),
		UserID:    pair.State.UserID,
		SessionID: pair.State.SessionID,
		Token:     pair.Server.Token,
	}); err != nil {
		ctl.Disconnect()
		s.setStatus(StatusOffline)
		return err
	}

	ready, err := expectPayload[*voice.ReadyPayload](ctl, ctx, "expected_ready")
	if err != nil {
		ctl.Disconnect()
		s.setStatus(StatusOffline)
		return err
	}

	med := media.NewTransport()
	modeName, err := med.SelectEncryptionMode(ready.Modes)
	if err != nil {
		ctl.Disconnect()
		s.setStatus(StatusOffline)
		return err
	}

	discoveryTimeout := time.Duration(s.cfg.IPDiscoveryTimeoutMS) * time.Millisecond
	discovered, err := med.Connect(ctx, ready.SSRC, ready.IP, ready.Port, discoveryTimeout)
	if err != nil {
		ctl.Disconnect()
		s.setStatus(StatusOffline)
		return err
	}

	if err := ctl.Send(&voice.SelectProtocolPayload{
		Protocol: "udp",
		Data: voice.SelectProtocolData{
			Address: discovered.Address,
			Port:    discovered.Port,
			Mode:    modeName,
		},
	}); err != nil {
		med.Disconnect()
		ctl.Disconnect()
		s.setStatus(StatusOffline)
		return err
	}

	sdCtx, cancelSD := context.WithTimeout(ctx, time.Duration(s.cfg.SessionDescriptionTimeoutMS)*time.Millisecond)
	sd, err := expectPayload[*voice.SessionDescriptionPayload](ctl, sdCtx, "expected_session_description")
	cancelSD()
	if err != nil {
		med.Disconnect()
		ctl.Disconnect()
		s.setStatus(StatusOffline)
		return err
	}
	med.Initialize([32]byte(sd.SecretKey))

	enc, err := codec.NewEncoder(2, codec.Optimization(s.cfg.AudioOptimization), s.cfg.SampleDurationMS, s.cfg.BitrateBPS)
	if err != nil {
		med.Disconnect()
		ctl.Disconnect()
		s.setStatus(StatusOffline)
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.ctl = ctl
	s.med = med
	s.enc = enc
	s.pair = pair
	s.heartbeat = HeartbeatState{IntervalMS: hello.HeartbeatIntervalMS, SafetyMarginMS: s.cfg.HeartbeatSafetyMarginMS}
	s.cancel = cancel
	s.status = StatusConnected
	s.mu.Unlock()

	s.wg.Add(2)
	go s.heartbeatLoop(runCtx)
	go s.receiveLoop(runCtx)

	s.log.Info("voice session established", "ssrc", ready.SSRC, "mode", modeName, "correlation_id", s.correlationID)
	return nil
}

// resume re-establishes the control transport only, using Resume instead
// of a fresh Identify, on the assumption that the peer's session
// bookkeeping is still intact (§4.6's "Resume" disposition).
func (s *Session) resume(ctx context.Context, pair gatewaybus.HandshakePair) error {
	ctl := gateway.NewTransport()
	if err := ctl.Connect(ctx, pair.Server.Endpoint); err != nil {
		return err
	}

	hello, err := expectPayload[*voice.HelloPayload](ctl, ctx, "expected_hello")
	if err != nil {
		ctl.Disconnect()
		return err
	}

	if err := ctl.Send(&voice.ResumePayload{
		ServerID:  string(pair.Server.ServerID),
		SessionID: pair.State.SessionID,
		Token:     pair.Server.Token,
	}); err != nil {
		ctl.Disconnect()
		return err
	}

	if _, err := expectPayload[*voice.ResumedPayload](ctl, ctx, "expected_resumed"); err != nil {
		ctl.Disconnect()
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.ctl = ctl
	s.heartbeat = HeartbeatState{IntervalMS: hello.HeartbeatIntervalMS, SafetyMarginMS: s.cfg.HeartbeatSafetyMarginMS}
	s.cancel = cancel
	s.status = StatusConnected
	s.mu.Unlock()

	s.wg.Add(2)
	go s.heartbeatLoop(runCtx)
	go s.receiveLoop(runCtx)
	return nil
}

// expectPayload receives the next control frame and asserts its concrete
// type, returning a typed error if the peer sent something else.
func expectPayload[T voice.Payload](ctl *gateway.Transport, ctx context.Context, op string) (T, error) {
	var zero T
	payload, err := ctl.Recv(ctx)
	if err != nil {
		return zero, err
	}
	typed, ok := payload.(T)
	if !ok {
		return zero, voiceerr.New(voiceerr.CategoryRemoteControl, op, fmt.Errorf("unexpected opcode %s", payload.Opcode()))
	}
	return typed, nil
}

// Disconnect tears the session down: cancels the heartbeat/receive
// goroutines, waits for them to exit, then closes both transports.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	cancel := s.cancel
	ctl := s.ctl
	med := s.med
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	var firstErr error
	if med != nil {
		if err := med.Disconnect(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if ctl != nil {
		if err := ctl.Disconnect(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	s.mu.Lock()
	s.ctl = nil
	s.med = nil
	s.enc = nil
	s.cancel = nil
	s.status = StatusOffline
	s.mu.Unlock()

	return firstErr
}

func (s *Session) reconnect(resume bool) {
	s.setStatus(StatusDisconnected)

	s.mu.Lock()
	pair := s.pair
	s.mu.Unlock()

	ctx := context.Background()

	if resume {
		if err := s.resume(ctx, pair); err == nil {
			s.log.Info("voice session resumed", "correlation_id", s.correlationID)
			return
		}
		s.log.Warn("resume failed, falling back to full reconnect", "correlation_id", s.correlationID)
	}

	err := backoff.Retry(ctx, backoff.Reconnect, func(ctx context.Context, attempt int) error {
		return s.establish(ctx, pair)
	})
	if err != nil {
		s.log.Error("voice session reconnect failed permanently", "error", err, "correlation_id", s.correlationID)
		s.setStatus(StatusOffline)
	}
}
