package media

import (
	"fmt"

	"github.com/pion/rtp"
)

// headerSize is the fixed 12-byte RTP header this module emits: no CSRC
// list, no extension, matching the subset of RFC 3550 the voice protocol
// actually uses.
const headerSize = 12

// rtpPayloadType is the fixed payload type identifying Opus audio.
const rtpPayloadType uint8 = 0x78

// RtpCounters tracks the per-packet sequence number and timestamp a media
// transport increments on every SendFrame call. Both wrap naturally at
// their integer width, matching RFC 3550's wraparound semantics.
type RtpCounters struct {
	Sequence  uint16
	Timestamp uint32
}

// buildHeader renders the fixed 12-byte RTP header for the given SSRC and
// the counters' current sequence/timestamp, via pion/rtp's Header rather
// than a hand-rolled byte layout: this module only ever emits the
// no-CSRC/no-extension subset of RFC 3550, so the marshaled size is
// always exactly headerSize.
func buildHeader(ssrc uint32, counters RtpCounters) [headerSize]byte {
	h := rtp.Header{
		Version:        2,
		PayloadType:    rtpPayloadType,
		SequenceNumber: counters.Sequence,
		Timestamp:      counters.Timestamp,
		SSRC:           ssrc,
	}

	raw, err := h.Marshal()
	if err != nil || len(raw) != headerSize {
		panic(fmt.Sprintf("media: pion/rtp header marshal produced %d bytes, want %d (err=%v)", len(raw), headerSize, err))
	}

	var out [headerSize]byte
	copy(out[:], raw)
	return out
}

// advance increments the counters by one frame: sequence by 1, timestamp
// by the number of samples the frame represents.
func (c *RtpCounters) advance(samplesPerFrame uint32) {
	c.Sequence++
	c.Timestamp += samplesPerFrame
}
