package session

import (
	"context"
	"time"

	"github.com/voicecore/gateway/pkg/voice"
)

// heartbeatLoop sends a Heartbeat slightly ahead of the announced
// interval (minus the configured safety margin, defaulting to interval/8
// when unset) until ctx is cancelled or a send fails.
func (s *Session) heartbeatLoop(ctx context.Context) {
	defer s.wg.Done()

	s.mu.Lock()
	interval := time.Duration(s.heartbeat.IntervalMS) * time.Millisecond
	margin := time.Duration(s.heartbeat.SafetyMarginMS) * time.Millisecond
	ctl := s.ctl
	s.mu.Unlock()

	if margin <= 0 {
		margin = interval / 8
	}
	period := interval - margin
	if period <= 0 {
		period = interval
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var nonce uint64
	var missedAcks int
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			lastSentAt := s.heartbeat.LastSentAt
			lastAckAt := s.heartbeat.LastAckAt
			s.mu.Unlock()

			if !lastSentAt.IsZero() && lastAckAt.Before(lastSentAt) {
				missedAcks++
			} else {
				missedAcks = 0
			}

			if missedAcks >= 2 {
				s.log.Warn("heartbeat ack timeout, disconnecting", "missed_acks", missedAcks, "correlation_id", s.correlationID)
				s.onHeartbeatTimeout()
				return
			}

			nonce++
			s.mu.Lock()
			s.heartbeat.LastNonceSent = nonce
			s.heartbeat.LastSentAt = time.Now()
			s.mu.Unlock()

			if err := ctl.Send(&voice.HeartbeatPayload{Nonce: nonce}); err != nil {
				s.log.Warn("heartbeat send failed", "error", err, "correlation_id", s.correlationID)
				return
			}
		}
	}
}

// onHeartbeatTimeout tears down the current control transport after two
// consecutive heartbeat intervals pass without an ack, transitioning
// Connected -> Disconnected exactly once and driving a Resume attempt
// (the peer's session bookkeeping is assumed to still be intact, same
// disposition as a resumable transport error).
func (s *Session) onHeartbeatTimeout() {
	s.mu.Lock()
	cancel := s.cancel
	ctl := s.ctl
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ctl != nil {
		_ = ctl.Disconnect()
	}

	s.setStatus(StatusDisconnected)
	go s.reconnect(true)
}
