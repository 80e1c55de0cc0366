package gateway

// closeCode values carried in a WebSocket close frame from the control
// plane, and the §4.6/§7 disposition each implies.
const (
	closeUnknownOpcode      = 4001
	closeNotAuthenticated   = 4003
	closeAuthenticationFail = 4004
	closeAlreadyAuthed      = 4005
	closeSessionNoLongerValid = 4006
	closeSessionTimeout     = 4009
	closeServerNotFound     = 4011
	closeUnknownProtocol    = 4012
	closeDisconnected       = 4014
	closeVoiceServerCrashed = 4015
	closeUnknownEncryptionMode = 4016
)

// resumableCloseCodes are codes where the peer's own session bookkeeping
// is expected to still be intact, so a Resume (skipping Identify) is
// worth attempting before falling back to a full Reconnect.
var resumableCloseCodes = map[int]bool{
	closeSessionTimeout:     true,
	closeVoiceServerCrashed: true,
}

// fatalCloseCodes are codes where retrying at all is pointless: the
// server has explicitly told the client its credentials or protocol
// usage are wrong, or that the bot left the channel deliberately.
var fatalCloseCodes = map[int]bool{
	closeNotAuthenticated:      true,
	closeAuthenticationFail:    true,
	closeDisconnected:          true,
	closeUnknownProtocol:       true,
	closeUnknownEncryptionMode: true,
}

// classifyClose reports whether the given close code should be treated as
// fatal, and if not, whether it's resumable (vs. requiring a full
// reconnect with a new Identify).
func classifyClose(code int) (fatal bool, resumable bool) {
	if fatalCloseCodes[code] {
		return true, false
	}
	return false, resumableCloseCodes[code]
}
