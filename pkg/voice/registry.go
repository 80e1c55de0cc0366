package voice

import "errors"

// ErrUnknownOpcode is returned by Decode when the envelope's op field does
// not match any entry in the registry.
var ErrUnknownOpcode = errors.New("unknown opcode")

// registry maps each opcode to a factory producing a fresh, pointer-typed
// zero value of its payload. This mirrors the teacher's
// messageTypeRegistry: dispatch goes through one table instead of a type
// switch scattered across call sites, so adding an opcode means adding one
// line here rather than hunting down every place that inspects op.
var registry = map[Opcode]func() Payload{
	OpIdentify:           func() Payload { return &IdentifyPayload{} },
	OpSelectProtocol:     func() Payload { return &SelectProtocolPayload{} },
	OpReady:              func() Payload { return &ReadyPayload{} },
	OpHeartbeat:          func() Payload { return &HeartbeatPayload{} },
	OpSessionDescription: func() Payload { return &SessionDescriptionPayload{} },
	OpSpeaking:           func() Payload { return &SpeakingPayload{} },
	OpHeartbeatAck:       func() Payload { return &HeartbeatAckPayload{} },
	OpResume:             func() Payload { return &ResumePayload{} },
	OpHello:              func() Payload { return &HelloPayload{} },
	OpResumed:            func() Payload { return &ResumedPayload{} },
	OpClientDisconnect:   func() Payload { return &ClientDisconnectPayload{} },
	OpCodecDescription:   func() Payload { return &CodecDescriptionPayload{} },
}
