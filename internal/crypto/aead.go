package crypto

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	KeySize           = 32
	NonceSize         = 24
	HeaderSize        = 12
	suffixTrailerSize = 24
	liteTrailerSize   = 4
)

// Sealer encrypts RTP frame payloads for one (mode, key) pair, tracking
// the monotonically increasing counter ModeLite needs across calls. A
// Sealer is not safe for concurrent use; the media transport that owns it
// serializes sends already.
type Sealer struct {
	mode        Mode
	key         [KeySize]byte
	liteCounter uint32
}

func NewSealer(mode Mode, key [KeySize]byte) *Sealer {
	return &Sealer{mode: mode, key: key}
}

// Seal encrypts frame under a nonce derived from header per s.mode, and
// returns the ciphertext plus any trailer bytes that must be appended to
// the RTP packet after it (nil for ModeNormal).
func (s *Sealer) Seal(header [HeaderSize]byte, frame []byte) (ciphertext, trailer []byte, err error) {
	var nonce [NonceSize]byte

	switch s.mode {
	case ModeNormal:
		copy(nonce[:], header[:])
	case ModeSuffix:
		if _, err := rand.Read(nonce[:]); err != nil {
			return nil, nil, fmt.Errorf("crypto: generate suffix nonce: %w", err)
		}
		trailer = append([]byte(nil), nonce[:]...)
	case ModeLite:
		s.liteCounter++
		binary.BigEndian.PutUint32(nonce[:4], s.liteCounter)
		trailer = make([]byte, liteTrailerSize)
		binary.BigEndian.PutUint32(trailer, s.liteCounter)
	default:
		return nil, nil, fmt.Errorf("crypto: unsupported mode %v", s.mode)
	}

	ciphertext = secretbox.Seal(nil, frame, &nonce, &s.key)
	return ciphertext, trailer, nil
}

// Opener decrypts RTP packet bodies for one (mode, key) pair. Unlike
// Sealer it carries no mutable state: the lite-mode counter travels on
// the wire, so the receiver reads it back rather than tracking its own.
type Opener struct {
	mode Mode
	key  [KeySize]byte
}

func NewOpener(mode Mode, key [KeySize]byte) *Opener {
	return &Opener{mode: mode, key: key}
}

// Open decrypts a packet's body (everything after the 12-byte RTP
// header: ciphertext plus any mode-specific trailer) and returns the
// plaintext Opus frame.
func (o *Opener) Open(header [HeaderSize]byte, body []byte) ([]byte, error) {
	var nonce [NonceSize]byte
	var ciphertext []byte

	switch o.mode {
	case ModeNormal:
		copy(nonce[:], header[:])
		ciphertext = body
	case ModeSuffix:
		if len(body) < suffixTrailerSize {
			return nil, fmt.Errorf("crypto: packet too short for suffix nonce")
		}
		split := len(body) - suffixTrailerSize
		ciphertext = body[:split]
		copy(nonce[:], body[split:])
	case ModeLite:
		if len(body) < liteTrailerSize {
			return nil, fmt.Errorf("crypto: packet too short for lite counter")
		}
		split := len(body) - liteTrailerSize
		ciphertext = body[:split]
		binary.BigEndian.PutUint32(nonce[:4], binary.BigEndian.Uint32(body[split:]))
	default:
		return nil, fmt.Errorf("crypto: unsupported mode %v", o.mode)
	}

	plain, ok := secretbox.Open(nil, ciphertext, &nonce, &o.key)
	if !ok {
		return nil, fmt.Errorf("crypto: authentication failed")
	}
	return plain, nil
}
