// Package id provides ID generation helpers for identifiers that are
// generated locally rather than supplied by a peer. Wire identifiers that
// come from the main gateway or voice gateway (ServerID, session_id, SSRC)
// are never generated here — only local correlation IDs used for log
// correlation and test fixtures.
package id

import (
	nanoid "github.com/matoous/go-nanoid/v2"
)

const DefaultLength = 21

const (
	PrefixSession     = "vsess"
	PrefixTransmit    = "tx"
	PrefixCorrelation = "corr"
)

func New(prefix string) string {
	v, err := nanoid.New(DefaultLength)
	if err != nil {
		panic("nanoid generation failed: " + err.Error())
	}
	return prefix + "_" + v
}

func NewWithLength(prefix string, length int) string {
	v, err := nanoid.New(length)
	if err != nil {
		panic("nanoid generation failed: " + err.Error())
	}
	return prefix + "_" + v
}

// NewSession generates a local correlation ID for one voice session's
// lifetime, distinct from the peer-issued session_id carried in
// VoiceStateSnapshot. Useful for structured log correlation across the
// heartbeat and receive goroutines of a single session.
func NewSession() string { return New(PrefixSession) }

// NewTransmit generates a local correlation ID for one transmit_audio call.
func NewTransmit() string { return New(PrefixTransmit) }

// NewCorrelation generates a generic local correlation ID for test fixtures.
func NewCorrelation() string { return New(PrefixCorrelation) }
