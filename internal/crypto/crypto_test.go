package crypto

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() [KeySize]byte {
	var k [KeySize]byte
	for i := range k {
		k[i] = byte(i)
	}
	return k
}

func testHeader(seq uint16) [HeaderSize]byte {
	var h [HeaderSize]byte
	h[0] = 0x80
	h[1] = 0x78
	h[2] = byte(seq >> 8)
	h[3] = byte(seq)
	return h
}

func TestSelectMode_PicksFirstRecognisedInOfferedOrder(t *testing.T) {
	m, err := SelectMode([]string{"xsalsa20_poly1305", "xsalsa20_poly1305_suffix", "xsalsa20_poly1305_lite"})
	require.NoError(t, err)
	assert.Equal(t, ModeNormal, m)
}

func TestSelectMode_SkipsUnrecognisedEntriesAheadOfARecognisedOne(t *testing.T) {
	m, err := SelectMode([]string{"aes256_gcm", "xsalsa20_poly1305_suffix", "xsalsa20_poly1305_lite"})
	require.NoError(t, err)
	assert.Equal(t, ModeSuffix, m)
}

func TestSelectMode_PicksLiteWhenOfferedFirst(t *testing.T) {
	m, err := SelectMode([]string{"xsalsa20_poly1305_lite", "xsalsa20_poly1305"})
	require.NoError(t, err)
	assert.Equal(t, ModeLite, m)
}

func TestSelectMode_ErrorsWhenNothingSupported(t *testing.T) {
	_, err := SelectMode([]string{"aes256_gcm"})
	assert.ErrorIs(t, err, ErrNoSupportedMode)
}

func TestSealOpen_RoundTripsForEveryMode(t *testing.T) {
	key := testKey()
	for _, mode := range []Mode{ModeNormal, ModeSuffix, ModeLite} {
		t.Run(mode.String(), func(t *testing.T) {
			sealer := NewSealer(mode, key)
			opener := NewOpener(mode, key)
			header := testHeader(1)
			frame := []byte("opus frame payload")

			ciphertext, trailer, err := sealer.Seal(header, frame)
			require.NoError(t, err)

			body := append(append([]byte(nil), ciphertext...), trailer...)
			plain, err := opener.Open(header, body)
			require.NoError(t, err)
			assert.Equal(t, frame, plain)
		})
	}
}

func TestSeal_LiteCounterIncrementsAndIsRecoverable(t *testing.T) {
	key := testKey()
	sealer := NewSealer(ModeLite, key)
	opener := NewOpener(ModeLite, key)
	header := testHeader(1)

	for i := 1; i <= 3; i++ {
		ciphertext, trailer, err := sealer.Seal(header, []byte("frame"))
		require.NoError(t, err)
		require.Len(t, trailer, liteTrailerSize)
		assert.Equal(t, uint32(i), binary.BigEndian.Uint32(trailer))

		body := append(append([]byte(nil), ciphertext...), trailer...)
		plain, err := opener.Open(header, body)
		require.NoError(t, err)
		assert.Equal(t, []byte("frame"), plain)
	}
}

func TestOpen_RejectsTamperedCiphertext(t *testing.T) {
	key := testKey()
	sealer := NewSealer(ModeNormal, key)
	opener := NewOpener(ModeNormal, key)
	header := testHeader(1)

	ciphertext, _, err := sealer.Seal(header, []byte("frame"))
	require.NoError(t, err)
	ciphertext[0] ^= 0xFF

	_, err = opener.Open(header, ciphertext)
	assert.Error(t, err)
}

func TestOpen_RejectsMismatchedHeaderAsNonceInNormalMode(t *testing.T) {
	key := testKey()
	sealer := NewSealer(ModeNormal, key)
	opener := NewOpener(ModeNormal, key)

	ciphertext, _, err := sealer.Seal(testHeader(1), []byte("frame"))
	require.NoError(t, err)

	_, err = opener.Open(testHeader(2), ciphertext)
	assert.Error(t, err)
}

func TestOpen_RejectsShortSuffixBody(t *testing.T) {
	key := testKey()
	opener := NewOpener(ModeSuffix, key)
	_, err := opener.Open(testHeader(1), []byte("too short"))
	assert.Error(t, err)
}
