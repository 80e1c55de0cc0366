package session

import (
	"context"
	"fmt"
	"time"

	"github.com/voicecore/gateway/pkg/voice"
	"github.com/voicecore/gateway/pkg/voiceerr"
)

// TransmitAudio encodes and sends PCM frames read from pcm, one Opus
// frame per tick of the configured sample duration, until pcm closes or
// ctx is cancelled. Only one call may be in flight per Session at a time;
// a concurrent call returns ErrAlreadyTransmitting immediately rather
// than queuing or interleaving frames from two sources.
func (s *Session) TransmitAudio(ctx context.Context, pcm <-chan []int16) error {
	if !s.transmitting.CompareAndSwap(false, true) {
		return ErrAlreadyTransmitting
	}
	defer s.transmitting.Store(false)

	ctx, span := tracer.Start(ctx, "session.TransmitAudio")
	defer span.End()

	s.mu.Lock()
	enc := s.enc
	med := s.med
	ctl := s.ctl
	s.mu.Unlock()
	if enc == nil || med == nil || ctl == nil {
		return voiceerr.New(voiceerr.CategoryLocal, "transmit_audio", fmt.Errorf("session is not connected"))
	}

	if err := ctl.Send(&voice.SpeakingPayload{Speaking: voice.SpeakingMicrophone}); err != nil {
		s.log.Warn("failed to announce speaking state", "error", err, "correlation_id", s.correlationID)
	}
	defer func() {
		_ = ctl.Send(&voice.SpeakingPayload{Speaking: 0})
	}()

	frameDuration := time.Duration(s.cfg.SampleDurationMS) * time.Millisecond
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	samplesPerFrame := uint32(enc.SamplesPerFrame())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-pcm:
			if !ok {
				return nil
			}

			packet, err := enc.Encode(frame)
			if err != nil {
				return voiceerr.New(voiceerr.CategoryCodec, "transmit_audio_encode", err)
			}

			select {
			case <-ticker.C:
			case <-ctx.Done():
				return ctx.Err()
			}

			if err := med.SendFrame(packet, samplesPerFrame); err != nil {
				return err
			}
		}
	}
}
