// Package media implements the C3 media transport: the UDP IP-discovery
// handshake and the RTP-framed, AEAD-encrypted Opus packet stream.
package media

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	discoveryPacketSize   = 74
	discoveryAddressSize  = 64
	discoveryRequestType  uint16 = 0x1
	discoveryResponseType uint16 = 0x2
	discoveryBodyLength   uint16 = 70
)

// DiscoveryRequest is the 74-byte packet sent to the server-provided UDP
// endpoint immediately after Ready, carrying the SSRC assigned there.
type DiscoveryRequest struct {
	SSRC uint32
}

// Pack encodes the request into the fixed 74-byte wire layout: a 2-byte
// type, 2-byte length, 4-byte SSRC, then a zeroed 66-byte tail (64-byte
// address field plus 2-byte port, both unused on the outbound request).
func (r DiscoveryRequest) Pack() [discoveryPacketSize]byte {
	var buf [discoveryPacketSize]byte
	binary.BigEndian.PutUint16(buf[0:2], discoveryRequestType)
	binary.BigEndian.PutUint16(buf[2:4], discoveryBodyLength)
	binary.BigEndian.PutUint32(buf[4:8], r.SSRC)
	return buf
}

// DiscoveryResponse is the server's reply, carrying the externally
// visible IP and port the voice client should announce in SelectProtocol.
type DiscoveryResponse struct {
	SSRC    uint32
	Address string
	Port    uint16
}

// ErrUnexpectedDiscoveryType is returned by ParseDiscoveryResponse when
// the packet's type field is not the response type — most commonly
// because the caller handed it its own outbound request bytes.
var ErrUnexpectedDiscoveryType = fmt.Errorf("media: unexpected ip discovery packet type")

// ParseDiscoveryResponse decodes a 74-byte UDP datagram into a
// DiscoveryResponse. A packet of the wrong size or the wrong type is an
// error. The address is read up to the first NUL; an address field with
// no NUL is taken whole, all 64 bytes. The length field is not checked.
func ParseDiscoveryResponse(buf []byte) (DiscoveryResponse, error) {
	if len(buf) != discoveryPacketSize {
		return DiscoveryResponse{}, fmt.Errorf("media: ip discovery packet must be %d bytes, got %d", discoveryPacketSize, len(buf))
	}

	packetType := binary.BigEndian.Uint16(buf[0:2])
	if packetType != discoveryResponseType {
		return DiscoveryResponse{}, fmt.Errorf("%w: %d", ErrUnexpectedDiscoveryType, packetType)
	}

	ssrc := binary.BigEndian.Uint32(buf[4:8])
	addrField := buf[8 : 8+discoveryAddressSize]
	nul := bytes.IndexByte(addrField, 0)
	if nul < 0 {
		nul = len(addrField)
	}
	address := string(addrField[:nul])
	port := binary.BigEndian.Uint16(buf[8+discoveryAddressSize : discoveryPacketSize])

	return DiscoveryResponse{SSRC: ssrc, Address: address, Port: port}, nil
}
