// Package crypto implements the per-mode AEAD nonce construction and
// seal/open wrappers for the three XSalsa20-Poly1305 encryption modes the
// voice protocol's SelectProtocol/SessionDescription exchange can
// negotiate, built on golang.org/x/crypto/nacl/secretbox rather than a
// hand-rolled XSalsa20/Poly1305 implementation.
package crypto

import "fmt"

// Mode identifies one of the three encryption modes the voice protocol
// supports.
type Mode int

const (
	// ModeLite appends a 4-byte big-endian counter to the RTP packet and
	// uses it, zero-padded, as the secretbox nonce. Smallest per-packet
	// overhead.
	ModeLite Mode = iota
	// ModeSuffix appends a full 24-byte random nonce to the RTP packet.
	ModeSuffix
	// ModeNormal reuses the 12-byte RTP header, zero-padded to 24 bytes,
	// as the nonce, and appends nothing.
	ModeNormal
)

// wireNames lists every mode this module supports.
var wireNames = map[Mode]string{
	ModeLite:   "xsalsa20_poly1305_lite",
	ModeSuffix: "xsalsa20_poly1305_suffix",
	ModeNormal: "xsalsa20_poly1305",
}

func (m Mode) String() string {
	if name, ok := wireNames[m]; ok {
		return name
	}
	return "unknown"
}

// ParseMode returns the Mode matching the given wire name.
func ParseMode(name string) (Mode, bool) {
	for m, n := range wireNames {
		if n == name {
			return m, true
		}
	}
	return 0, false
}

// ErrNoSupportedMode is returned by SelectMode when none of the offered
// names match a mode this module implements.
var ErrNoSupportedMode = fmt.Errorf("crypto: no supported encryption mode in offered list")

// SelectMode picks the first mode in the peer-offered list that this
// module recognises, per §4.3 of the protocol: the offered list's order
// is the preference order, not this module's own.
func SelectMode(offered []string) (Mode, error) {
	for _, name := range offered {
		if m, ok := ParseMode(name); ok {
			return m, nil
		}
	}
	return 0, ErrNoSupportedMode
}
