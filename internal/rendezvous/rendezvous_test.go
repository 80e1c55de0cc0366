package rendezvous

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicecore/gateway/internal/gatewaybus"
)

func TestWaitFor_CompletesOnceBothHalvesArrive(t *testing.T) {
	r := New(gatewaybus.StaticUserResolver("bot1"))

	var wg sync.WaitGroup
	wg.Add(1)
	var gotPair gatewaybus.HandshakePair
	var gotErr error
	go func() {
		defer wg.Done()
		gotPair, gotErr = r.WaitFor(context.Background(), "srv1", time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, r.SubmitServer(context.Background(), gatewaybus.VoiceServerSnapshot{ServerID: "srv1", Endpoint: "voice.test", Token: "tok"}))
	require.NoError(t, r.SubmitState(context.Background(), gatewaybus.VoiceStateSnapshot{ServerID: "srv1", UserID: "bot1", SessionID: "sess1"}))

	wg.Wait()
	require.NoError(t, gotErr)
	assert.Equal(t, "sess1", gotPair.State.SessionID)
	assert.Equal(t, "tok", gotPair.Server.Token)
}

func TestWaitFor_TimesOutWithoutBothHalves(t *testing.T) {
	r := New(gatewaybus.StaticUserResolver("bot1"))

	require.NoError(t, r.SubmitServer(context.Background(), gatewaybus.VoiceServerSnapshot{ServerID: "srv1"}))

	_, err := r.WaitFor(context.Background(), "srv1", 30*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestWaitFor_RejectsSecondConcurrentWaiterForSameServer(t *testing.T) {
	r := New(gatewaybus.StaticUserResolver("bot1"))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = r.WaitFor(context.Background(), "srv1", 50*time.Millisecond)
	}()
	time.Sleep(10 * time.Millisecond)

	_, err := r.WaitFor(context.Background(), "srv1", 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrAlreadyPending)

	wg.Wait()
}

func TestWaitFor_CancelledContextStopsWaitEarly(t *testing.T) {
	r := New(gatewaybus.StaticUserResolver("bot1"))
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := r.WaitFor(ctx, "srv1", time.Second)
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestSubmitState_DiscardsSnapshotsForForeignUsers(t *testing.T) {
	r := New(gatewaybus.StaticUserResolver("bot1"))

	// Submit while the wait is pending, so only the user filter can keep
	// the foreign state from completing the pair.
	errCh := make(chan error, 1)
	go func() {
		_, err := r.WaitFor(context.Background(), "srv1", 100*time.Millisecond)
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)

	require.NoError(t, r.SubmitServer(context.Background(), gatewaybus.VoiceServerSnapshot{ServerID: "srv1"}))
	require.NoError(t, r.SubmitState(context.Background(), gatewaybus.VoiceStateSnapshot{ServerID: "srv1", UserID: "someone-else"}))

	err := <-errCh
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestWaitFor_PendingEntryClearedAfterTimeoutAllowsRetry(t *testing.T) {
	r := New(gatewaybus.StaticUserResolver("bot1"))

	_, err := r.WaitFor(context.Background(), "srv1", 20*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)

	_, err = r.WaitFor(context.Background(), "srv1", 20*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout, "a second wait should be accepted, not rejected as already-pending")
}
