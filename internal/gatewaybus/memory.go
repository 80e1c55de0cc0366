package gatewaybus

import (
	"context"
	"sync"
)

// MemoryBus is an in-process reference Bus used by tests and by the
// cmd/voicebot CLI harness's connect command. It fans submitted commands
// out to a pluggable responder instead of a real main-gateway socket, and
// notifies subscribers synchronously from Publish*, mirroring the teacher's
// Hub: a map of subscribers guarded by a single RWMutex, no internal
// buffering or goroutines of its own.
type MemoryBus struct {
	mu   sync.RWMutex
	subs map[int]Subscriber
	next int

	// Responder, if set, is invoked synchronously inside
	// SubmitVoiceStateUpdate and may call PublishVoiceState/PublishVoiceServer
	// on this bus to simulate the main gateway's asynchronous reply. Tests
	// that want to control timing precisely should leave Responder nil and
	// call Publish* directly instead.
	Responder func(cmd UpdateVoiceStateCommand, bus *MemoryBus)
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[int]Subscriber)}
}

func (b *MemoryBus) SubmitVoiceStateUpdate(ctx context.Context, cmd UpdateVoiceStateCommand) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.Responder != nil {
		b.Responder(cmd, b)
	}
	return nil
}

func (b *MemoryBus) Subscribe(sub Subscriber) (unsubscribe func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = sub
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// PublishVoiceState notifies every current subscriber of a voice-state
// snapshot, as the main gateway would after processing a join/move/leave.
func (b *MemoryBus) PublishVoiceState(snap VoiceStateSnapshot) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		sub.OnVoiceStateUpdate(snap)
	}
}

// PublishVoiceServer notifies every current subscriber of a voice-server
// snapshot, as the main gateway would once a voice server is assigned.
func (b *MemoryBus) PublishVoiceServer(snap VoiceServerSnapshot) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		sub.OnVoiceServerUpdate(snap)
	}
}
