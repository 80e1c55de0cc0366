package voice

import (
	"encoding/json"
	"fmt"
)

// SecretKeyLength is the XSalsa20-Poly1305 key size used by every
// encryption mode this module supports.
const SecretKeyLength = 32

// SecretKey is the 32-byte AEAD key carried in SessionDescriptionPayload.
// The wire format encodes it as a JSON array of byte values rather than a
// base64 string (the convention this protocol inherited from its source),
// so it needs its own (Un)MarshalJSON instead of plain []byte.
type SecretKey [SecretKeyLength]byte

func (k SecretKey) MarshalJSON() ([]byte, error) {
	ints := make([]int, SecretKeyLength)
	for i, b := range k {
		ints[i] = int(b)
	}
	return json.Marshal(ints)
}

func (k *SecretKey) UnmarshalJSON(data []byte) error {
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return fmt.Errorf("secret_key: %w", err)
	}
	if len(ints) != SecretKeyLength {
		return fmt.Errorf("secret_key: expected %d bytes, got %d", SecretKeyLength, len(ints))
	}
	for i, v := range ints {
		if v < 0 || v > 255 {
			return fmt.Errorf("secret_key: byte %d out of range: %d", i, v)
		}
		k[i] = byte(v)
	}
	return nil
}
