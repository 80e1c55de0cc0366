package media

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/voicecore/gateway/internal/crypto"
	"github.com/voicecore/gateway/pkg/voiceerr"
)

// Transport owns the C3 UDP media socket: IP discovery, encryption mode
// selection, and the encrypted RTP send path. It is not safe for
// concurrent SendFrame calls (the voice session serializes transmission
// through PendingTransmission); Disconnect may be called concurrently
// with a send in flight.
type Transport struct {
	mu   sync.Mutex
	conn *net.UDPConn

	ssrc     uint32
	mode     crypto.Mode
	sealer   *crypto.Sealer
	counters RtpCounters
}

// NewTransport constructs an unconnected Transport. Connect must be
// called before SendFrame.
func NewTransport() *Transport {
	return &Transport{}
}

// SelectEncryptionMode picks the first mode in the server-offered list
// (§4.3) that this module recognises and records it for later SendFrame
// calls. It must be called before Initialize.
func (t *Transport) SelectEncryptionMode(offered []string) (string, error) {
	mode, err := crypto.SelectMode(offered)
	if err != nil {
		return "", voiceerr.New(voiceerr.CategoryMedia, "select_encryption_mode", err)
	}
	t.mu.Lock()
	t.mode = mode
	t.mu.Unlock()
	return mode.String(), nil
}

// Connect dials the server-provided UDP endpoint, performs the IP
// discovery round trip with the assigned SSRC, and returns the externally
// visible address the caller should announce in SelectProtocol.
func (t *Transport) Connect(ctx context.Context, ssrc uint32, ip string, port uint16, timeout time.Duration) (DiscoveryResponse, error) {
	addr := &net.UDPAddr{IP: net.ParseIP(ip), Port: int(port)}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return DiscoveryResponse{}, voiceerr.New(voiceerr.CategoryMedia, "dial", err)
	}

	t.mu.Lock()
	t.conn = conn
	t.ssrc = ssrc
	randomizeCounters(&t.counters)
	t.mu.Unlock()

	deadline := time.Now().Add(timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return DiscoveryResponse{}, voiceerr.New(voiceerr.CategoryMedia, "set_deadline", err)
	}

	req := DiscoveryRequest{SSRC: ssrc}
	packed := req.Pack()
	if _, err := conn.Write(packed[:]); err != nil {
		conn.Close()
		return DiscoveryResponse{}, voiceerr.New(voiceerr.CategoryMedia, "discovery_send", err)
	}

	reply := make([]byte, discoveryPacketSize)
	n, err := conn.Read(reply)
	if err != nil {
		conn.Close()
		return DiscoveryResponse{}, voiceerr.New(voiceerr.CategoryMedia, "discovery_recv", err)
	}

	if err := conn.SetDeadline(time.Time{}); err != nil {
		conn.Close()
		return DiscoveryResponse{}, voiceerr.New(voiceerr.CategoryMedia, "clear_deadline", err)
	}

	resp, err := ParseDiscoveryResponse(reply[:n])
	if err != nil {
		conn.Close()
		return DiscoveryResponse{}, voiceerr.New(voiceerr.CategoryMedia, "discovery_parse", err)
	}
	return resp, nil
}

// Initialize records the secret key delivered in SessionDescription and
// constructs the Sealer used by all subsequent SendFrame calls. It must
// be called after SelectEncryptionMode.
func (t *Transport) Initialize(secretKey [crypto.KeySize]byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sealer = crypto.NewSealer(t.mode, secretKey)
}

// SendFrame encrypts and transmits one already-Opus-encoded audio frame,
// advancing the sequence number and timestamp by the frame's sample
// count. samplesPerFrame is the number of PCM samples (per channel) the
// frame represents, used to advance the RTP timestamp correctly
// regardless of frame duration.
func (t *Transport) SendFrame(opusFrame []byte, samplesPerFrame uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil {
		return voiceerr.New(voiceerr.CategoryMedia, "send_frame", fmt.Errorf("transport not connected"))
	}
	if t.sealer == nil {
		return voiceerr.New(voiceerr.CategoryMedia, "send_frame", fmt.Errorf("transport not initialized with a secret key"))
	}

	header := buildHeader(t.ssrc, t.counters)
	ciphertext, trailer, err := t.sealer.Seal(header, opusFrame)
	if err != nil {
		return voiceerr.New(voiceerr.CategoryCrypto, "send_frame_seal", err)
	}

	packet := make([]byte, 0, headerSize+len(ciphertext)+len(trailer))
	packet = append(packet, header[:]...)
	packet = append(packet, ciphertext...)
	packet = append(packet, trailer...)

	if _, err := t.conn.Write(packet); err != nil {
		return voiceerr.New(voiceerr.CategoryMedia, "send_frame_write", err)
	}

	t.counters.advance(samplesPerFrame)
	return nil
}

// Counters returns a snapshot of the current sequence/timestamp state,
// used by tests.
func (t *Transport) Counters() RtpCounters {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counters
}

// Disconnect closes the UDP socket. It is safe to call more than once.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	t.sealer = nil
	return err
}

// randomizeCounters seeds the initial sequence number and timestamp from
// a cryptographically random source, per §4.4: starting at zero would
// make the first handful of packets from every session trivially
// fingerprintable.
func randomizeCounters(c *RtpCounters) {
	var buf [6]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return
	}
	c.Sequence = binary.BigEndian.Uint16(buf[0:2])
	c.Timestamp = binary.BigEndian.Uint32(buf[2:6])
}
