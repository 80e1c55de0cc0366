// Package codec wraps gopkg.in/hraban/opus.v2 with the three audio
// optimization profiles and frame-size arithmetic the voice protocol's C4
// component needs, so the rest of the module never touches the cgo
// encoder handle directly.
package codec

import (
	"fmt"

	"gopkg.in/hraban/opus.v2"
)

// SampleRate is the fixed Opus sample rate the voice protocol uses.
const SampleRate = 48000

// Optimization selects the Opus encoder's internal tuning profile.
type Optimization string

const (
	OptimizationVoIP      Optimization = "voip"
	OptimizationAudio     Optimization = "audio"
	OptimizationLowDelay  Optimization = "lowdelay"
)

func (o Optimization) application() (opus.Application, error) {
	switch o {
	case OptimizationVoIP:
		return opus.AppVoIP, nil
	case OptimizationAudio:
		return opus.AppAudio, nil
	case OptimizationLowDelay:
		return opus.AppRestrictedLowdelay, nil
	default:
		return 0, fmt.Errorf("codec: unknown audio optimization %q", o)
	}
}

// Encoder wraps an Opus encoder instance configured for one channel
// count, optimization profile, and frame duration.
type Encoder struct {
	enc             *opus.Encoder
	channels        int
	samplesPerFrame int
}

// NewEncoder constructs an Encoder. channels is 1 or 2; sampleDurationMS
// must be a valid Opus frame duration (2.5, 5, 10, 20, 40, or 60 ms, per
// config.VoiceConfig.SampleDurationMS — this package rounds 2.5 down to 2
// the same way the config validator does); bitrateBPS is handed to the
// encoder unchanged, and config.Validate rejects values above the
// protocol's 128000 bps ceiling. The encoder is created with in-band FEC
// enabled and an expected packet loss of 15%.
func NewEncoder(channels int, optimization Optimization, sampleDurationMS int, bitrateBPS int) (*Encoder, error) {
	app, err := optimization.application()
	if err != nil {
		return nil, err
	}

	enc, err := opus.NewEncoder(SampleRate, channels, app)
	if err != nil {
		return nil, fmt.Errorf("codec: create encoder: %w", err)
	}
	if err := enc.SetBitrate(bitrateBPS); err != nil {
		return nil, fmt.Errorf("codec: set bitrate: %w", err)
	}
	if err := enc.SetComplexity(10); err != nil {
		return nil, fmt.Errorf("codec: set complexity: %w", err)
	}
	if err := enc.SetInBandFEC(true); err != nil {
		return nil, fmt.Errorf("codec: enable in-band fec: %w", err)
	}
	if err := enc.SetPacketLossPerc(15); err != nil {
		return nil, fmt.Errorf("codec: set packet loss percentage: %w", err)
	}

	return &Encoder{
		enc:             enc,
		channels:        channels,
		samplesPerFrame: SamplesPerFrame(sampleDurationMS),
	}, nil
}

// SamplesPerFrame returns the number of PCM samples per channel a frame
// of the given duration represents at SampleRate.
func SamplesPerFrame(sampleDurationMS int) int {
	return SampleRate * sampleDurationMS / 1000
}

// Encode encodes one frame of interleaved 16-bit PCM into an Opus packet.
// pcm must contain exactly SamplesPerFrame * channels int16 samples.
func (e *Encoder) Encode(pcm []int16) ([]byte, error) {
	want := e.samplesPerFrame * e.channels
	if len(pcm) != want {
		return nil, fmt.Errorf("codec: expected %d pcm samples, got %d", want, len(pcm))
	}

	out := make([]byte, 4000) // Opus's own worst-case packet size bound
	n, err := e.enc.Encode(pcm, out)
	if err != nil {
		return nil, fmt.Errorf("codec: encode: %w", err)
	}
	return out[:n], nil
}

// SetBitrate adjusts the encoder's target bitrate mid-stream.
func (e *Encoder) SetBitrate(bitrateBPS int) error {
	if err := e.enc.SetBitrate(bitrateBPS); err != nil {
		return fmt.Errorf("codec: set bitrate: %w", err)
	}
	return nil
}

// SamplesPerFrame returns the configured frame size in samples per
// channel, used by the media transport to advance RTP timestamps.
func (e *Encoder) SamplesPerFrame() int {
	return e.samplesPerFrame
}

// Channels returns the configured channel count.
func (e *Encoder) Channels() int {
	return e.channels
}
