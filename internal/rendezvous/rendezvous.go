// Package rendezvous implements the C1 handshake correlation described by
// the voice protocol: a VoiceStateSnapshot and a VoiceServerSnapshot arrive
// independently, on their own schedule, from the main gateway's event
// stream, and must be paired by ServerID before a voice session can
// Identify.
package rendezvous

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/voicecore/gateway/internal/gatewaybus"
)

var (
	// ErrTimeout is returned by WaitFor when the timeout elapses before
	// both halves of the pair have arrived.
	ErrTimeout = errors.New("rendezvous: timed out waiting for handshake pair")
	// ErrAlreadyPending is returned by WaitFor when another caller is
	// already waiting on the same ServerID; the protocol is one waiter
	// per server at a time.
	ErrAlreadyPending = errors.New("rendezvous: a wait is already pending for this server")
	// ErrCancelled is returned by WaitFor when the caller's context is
	// cancelled before both halves arrive.
	ErrCancelled = errors.New("rendezvous: wait cancelled")
)

const pollInterval = 10 * time.Millisecond

// Rendezvous correlates VoiceStateSnapshot and VoiceServerSnapshot events
// by ServerID. Submitters call SubmitState/SubmitServer as events arrive
// from gatewaybus.Subscriber; a single concurrent WaitFor per ServerID
// polls both half-maps until a complete pair is available, or the
// timeout/context expires first.
type Rendezvous struct {
	mu      sync.Mutex
	states  map[gatewaybus.ServerID]gatewaybus.VoiceStateSnapshot
	servers map[gatewaybus.ServerID]gatewaybus.VoiceServerSnapshot
	pending map[gatewaybus.ServerID]struct{}

	users        gatewaybus.UserResolver
	cachedUserID string
	userIDErr    error
}

func New(users gatewaybus.UserResolver) *Rendezvous {
	return &Rendezvous{
		states:  make(map[gatewaybus.ServerID]gatewaybus.VoiceStateSnapshot),
		servers: make(map[gatewaybus.ServerID]gatewaybus.VoiceServerSnapshot),
		pending: make(map[gatewaybus.ServerID]struct{}),
		users:   users,
	}
}

// currentUserID resolves and caches the bot's own user id. A failed
// resolution is not cached, so the next submit retries.
func (r *Rendezvous) currentUserID(ctx context.Context) (string, error) {
	r.mu.Lock()
	cached := r.cachedUserID
	r.mu.Unlock()
	if cached != "" {
		return cached, nil
	}

	id, err := r.users.CurrentUserID(ctx)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	r.cachedUserID = id
	r.mu.Unlock()
	return id, nil
}

// SubmitState records a voice-state snapshot, discarding it silently if it
// belongs to a different user than the bot itself (the main gateway's
// event stream is not filtered by user, since other participants' voice
// states flow over the same channel).
func (r *Rendezvous) SubmitState(ctx context.Context, snap gatewaybus.VoiceStateSnapshot) error {
	selfID, err := r.currentUserID(ctx)
	if err != nil {
		return err
	}
	if snap.UserID != selfID {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[snap.ServerID]; ok {
		r.states[snap.ServerID] = snap
	}
	return nil
}

// SubmitServer records a voice-server snapshot. Unlike voice states,
// voice-server assignment is always for the bot's own connection, so no
// user filtering applies.
func (r *Rendezvous) SubmitServer(ctx context.Context, snap gatewaybus.VoiceServerSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[snap.ServerID]; ok {
		r.servers[snap.ServerID] = snap
	}
	return nil
}

// WaitFor blocks until both a VoiceStateSnapshot and a VoiceServerSnapshot
// have been submitted for serverID, or until timeout/ctx expires first.
// Only one waiter may be pending per ServerID at a time.
func (r *Rendezvous) WaitFor(ctx context.Context, serverID gatewaybus.ServerID, timeout time.Duration) (gatewaybus.HandshakePair, error) {
	r.mu.Lock()
	if _, ok := r.pending[serverID]; ok {
		r.mu.Unlock()
		return gatewaybus.HandshakePair{}, ErrAlreadyPending
	}
	r.pending[serverID] = struct{}{}
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.pending, serverID)
		delete(r.states, serverID)
		delete(r.servers, serverID)
		r.mu.Unlock()
	}()

	deadline := time.After(timeout)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if pair, ok := r.tryComplete(serverID); ok {
			return pair, nil
		}

		select {
		case <-ctx.Done():
			return gatewaybus.HandshakePair{}, ErrCancelled
		case <-deadline:
			return gatewaybus.HandshakePair{}, ErrTimeout
		case <-ticker.C:
		}
	}
}

func (r *Rendezvous) tryComplete(serverID gatewaybus.ServerID) (gatewaybus.HandshakePair, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, hasState := r.states[serverID]
	server, hasServer := r.servers[serverID]
	if hasState && hasServer {
		return gatewaybus.HandshakePair{State: state, Server: server}, true
	}
	return gatewaybus.HandshakePair{}, false
}
