package voice

// Payload is implemented by every opcode-specific struct. It exists so the
// registry can hand back a concrete, already-typed value instead of a bare
// json.RawMessage for callers to re-parse (the redesign §9 calls out
// against: "opcode dispatch hidden behind runtime type assertions on
// interface{}").
type Payload interface {
	Opcode() Opcode
}

// IdentifyPayload is sent outbound once the C1 handshake pair has been
// resolved and the control transport's Hello has been received.
type IdentifyPayload struct {
	ServerID  string `json:"server_id"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
}

func (IdentifyPayload) Opcode() Opcode { return OpIdentify }

// SelectProtocolData is the nested "data" object of SelectProtocolPayload.
type SelectProtocolData struct {
	Address string `json:"address"`
	Port    uint16 `json:"port"`
	Mode    string `json:"mode"`
}

// SelectProtocolPayload is sent outbound once IP discovery has completed,
// announcing the chosen encryption mode and externally-visible UDP
// endpoint.
type SelectProtocolPayload struct {
	Protocol string             `json:"protocol"`
	Data     SelectProtocolData `json:"data"`
}

func (SelectProtocolPayload) Opcode() Opcode { return OpSelectProtocol }

// ReadyPayload is received inbound in response to Identify, carrying the
// SSRC and UDP rendezvous endpoint for IP discovery, plus the encryption
// modes the server offers.
type ReadyPayload struct {
	SSRC  uint32   `json:"ssrc"`
	IP    string   `json:"ip"`
	Port  uint16   `json:"port"`
	Modes []string `json:"modes"`
}

func (ReadyPayload) Opcode() Opcode { return OpReady }

// HeartbeatPayload carries a caller-chosen nonce that the peer is expected
// to echo back in a HeartbeatAck.
type HeartbeatPayload struct {
	Nonce uint64 `json:"nonce"`
}

func (HeartbeatPayload) Opcode() Opcode { return OpHeartbeat }

// SessionDescriptionPayload is received inbound after SelectProtocol,
// carrying the secret key used to encrypt/decrypt RTP payloads.
type SessionDescriptionPayload struct {
	Mode      string    `json:"mode"`
	SecretKey SecretKey `json:"secret_key"`
}

func (SessionDescriptionPayload) Opcode() Opcode { return OpSessionDescription }

// SpeakingPayload is bidirectional: sent to announce the local SSRC is
// about to transmit, received to learn another participant's SSRC/state.
type SpeakingPayload struct {
	Speaking uint32 `json:"speaking"`
	SSRC     uint32 `json:"ssrc"`
	UserID   string `json:"user_id,omitempty"`
}

func (SpeakingPayload) Opcode() Opcode { return OpSpeaking }

// HeartbeatAckPayload is received inbound, echoing the nonce from the most
// recent Heartbeat.
type HeartbeatAckPayload struct {
	Nonce uint64 `json:"nonce"`
}

func (HeartbeatAckPayload) Opcode() Opcode { return OpHeartbeatAck }

// ResumePayload is sent outbound on reconnect when the prior session_id is
// believed still valid, skipping a fresh Identify/Ready/SelectProtocol
// round trip.
type ResumePayload struct {
	ServerID  string `json:"server_id"`
	SessionID string `json:"session_id"`
	Token     string `json:"token"`
}

func (ResumePayload) Opcode() Opcode { return OpResume }

// HelloPayload is the first frame received inbound on every control
// connection, announcing the heartbeat interval to use.
type HelloPayload struct {
	HeartbeatIntervalMS float64 `json:"heartbeat_interval"`
}

func (HelloPayload) Opcode() Opcode { return OpHello }

// ResumedPayload is received inbound acknowledging a successful Resume.
type ResumedPayload struct{}

func (ResumedPayload) Opcode() Opcode { return OpResumed }

// ClientDisconnectPayload is received inbound when another participant
// leaves the voice channel.
type ClientDisconnectPayload struct {
	UserID string `json:"user_id"`
}

func (ClientDisconnectPayload) Opcode() Opcode { return OpClientDisconnect }

// CodecDescriptionPayload is received inbound, announcing the codec in
// use for a media type (this module only ever expects "opus"/"audio").
type CodecDescriptionPayload struct {
	AudioCodec string `json:"audio_codec"`
	Media      string `json:"media"`
}

func (CodecDescriptionPayload) Opcode() Opcode { return OpCodecDescription }
