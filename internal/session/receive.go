package session

import (
	"context"
	"time"

	"github.com/voicecore/gateway/pkg/voice"
	"github.com/voicecore/gateway/pkg/voiceerr"
)

// receiveLoop reads control-plane frames until the transport fails or ctx
// is cancelled, dispatching each opcode to the handling it needs.
func (s *Session) receiveLoop(ctx context.Context) {
	defer s.wg.Done()

	s.mu.Lock()
	ctl := s.ctl
	s.mu.Unlock()

	for {
		payload, err := ctl.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.handleTransportError(err)
			return
		}

		switch p := payload.(type) {
		case *voice.HeartbeatAckPayload:
			s.mu.Lock()
			s.heartbeat.LastNonceAcked = p.Nonce
			s.heartbeat.LastAckAt = time.Now()
			expected := s.heartbeat.LastNonceSent
			strict := s.cfg.StrictHeartbeatNonce
			s.mu.Unlock()
			if strict && p.Nonce != expected {
				s.log.Warn("heartbeat ack nonce mismatch", "expected", expected, "got", p.Nonce, "correlation_id", s.correlationID)
			}
		case *voice.ClientDisconnectPayload:
			s.log.Info("participant left voice channel", "user_id", p.UserID)
		case *voice.SpeakingPayload:
			s.log.Debug("speaking update", "ssrc", p.SSRC, "speaking", p.Speaking)
		case *voice.CodecDescriptionPayload:
			s.log.Debug("codec description", "audio_codec", p.AudioCodec, "media", p.Media)
		case *voice.ResumedPayload:
			s.log.Info("voice session resumed ack received", "correlation_id", s.correlationID)
		default:
			s.log.Debug("unhandled control payload", "opcode", payload.Opcode())
		}
	}
}

func (s *Session) handleTransportError(err error) {
	disposition := voiceerr.Classify(err)
	s.log.Warn("control transport error", "disposition", disposition, "error", err, "correlation_id", s.correlationID)

	switch disposition {
	case voiceerr.DispositionResume:
		go s.reconnect(true)
	case voiceerr.DispositionReconnect:
		go s.reconnect(false)
	case voiceerr.DispositionFatal:
		s.setStatus(StatusOffline)
	default:
		s.setStatus(StatusDisconnected)
	}
}
