package gatewaybus

import "context"

// Subscriber receives the two event types the main gateway forwards. A
// voice session registers one of these on startup and routes both calls
// into its C1 rendezvous.
type Subscriber interface {
	OnVoiceStateUpdate(VoiceStateSnapshot)
	OnVoiceServerUpdate(VoiceServerSnapshot)
}

// UserResolver answers "what is the bot's own user id", used by C1 to
// discard voice-state updates belonging to other participants in the
// channel. Implementations typically cache this after the first REST
// call or gateway Ready event.
type UserResolver interface {
	CurrentUserID(ctx context.Context) (string, error)
}

// Bus is the main-gateway collaborator the voice core depends on: it can
// submit a voice-state-update command and be subscribed to for the
// resulting snapshots. A real implementation forwards SubmitVoiceStateUpdate
// over the host framework's own main-gateway WebSocket; Subscribe is
// driven by whatever dispatches that gateway's inbound event stream.
type Bus interface {
	SubmitVoiceStateUpdate(ctx context.Context, cmd UpdateVoiceStateCommand) error
	Subscribe(sub Subscriber) (unsubscribe func())
}
