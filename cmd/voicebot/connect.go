package main

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/voicecore/gateway/internal/gatewaybus"
	"github.com/voicecore/gateway/internal/session"
)

// connectFlags holds the handshake details a real deployment's host bot
// framework would normally resolve via its own main gateway connection
// and forward through a gatewaybus.Bus implementation. This harness
// accepts them directly on the command line so the voice client core can
// be smoke-tested standalone, without wiring a real main gateway.
type connectFlags struct {
	serverID  string
	sessionID string
	endpoint  string
	token     string
	userID    string
	channelID string
	pcmFile   string
}

func newConnectCmd(state *rootState) *cobra.Command {
	flags := &connectFlags{}

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect to a voice channel and optionally stream raw PCM audio",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConnect(cmd.Context(), state, flags)
		},
	}

	cmd.Flags().StringVar(&flags.serverID, "server-id", "", "voice server/guild id")
	cmd.Flags().StringVar(&flags.sessionID, "session-id", "", "session id from the main gateway's voice state update")
	cmd.Flags().StringVar(&flags.endpoint, "endpoint", "", "voice control-plane websocket endpoint")
	cmd.Flags().StringVar(&flags.token, "token", "", "ephemeral per-connection token from the main gateway's voice server update")
	cmd.Flags().StringVar(&flags.userID, "user-id", "", "the bot's own user id")
	cmd.Flags().StringVar(&flags.channelID, "channel-id", "", "channel id to join")
	cmd.Flags().StringVar(&flags.pcmFile, "pcm-file", "", "path to raw signed 16-bit little-endian stereo 48kHz PCM to stream, or - for stdin; omit to connect only")

	for _, name := range []string{"server-id", "session-id", "endpoint", "token", "user-id", "channel-id"} {
		cmd.MarkFlagRequired(name)
	}

	return cmd
}

func runConnect(ctx context.Context, state *rootState, flags *connectFlags) error {
	bus := gatewaybus.NewMemoryBus()
	bus.Responder = func(cmd gatewaybus.UpdateVoiceStateCommand, b *gatewaybus.MemoryBus) {
		b.PublishVoiceState(gatewaybus.VoiceStateSnapshot{
			ServerID:  cmd.ServerID,
			UserID:    flags.userID,
			SessionID: flags.sessionID,
		})
		b.PublishVoiceServer(gatewaybus.VoiceServerSnapshot{
			ServerID: cmd.ServerID,
			Endpoint: flags.endpoint,
			Token:    flags.token,
		})
	}

	sess := session.New(&state.cfg.Voice, bus, gatewaybus.StaticUserResolver(flags.userID), state.logger)

	if err := sess.Connect(ctx, gatewaybus.ServerID(flags.serverID), flags.channelID); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	state.logger.Info("connected", "status", sess.Status().String())

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if flags.pcmFile != "" {
		if err := streamPCM(sigCtx, state, sess, flags.pcmFile); err != nil {
			state.logger.Error("streaming stopped", "error", err)
		}
	} else {
		<-sigCtx.Done()
	}

	return sess.Disconnect()
}

// streamPCM reads raw s16le stereo PCM in session-frame-sized chunks and
// feeds it to sess.TransmitAudio until EOF or ctx is cancelled.
func streamPCM(ctx context.Context, state *rootState, sess *session.Session, path string) error {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open pcm file: %w", err)
		}
		defer f.Close()
		r = f
	}

	const channels = 2
	samplesPerFrame := 48000 * state.cfg.Voice.SampleDurationMS / 1000 * channels

	reader := bufio.NewReader(r)
	pcm := make(chan []int16)
	errCh := make(chan error, 1)
	go func() { errCh <- sess.TransmitAudio(ctx, pcm) }()

	buf := make([]byte, samplesPerFrame*2)
	for {
		if _, err := io.ReadFull(reader, buf); err != nil {
			close(pcm)
			break
		}

		frame := make([]int16, samplesPerFrame)
		for i := range frame {
			frame[i] = int16(binary.LittleEndian.Uint16(buf[i*2 : i*2+2]))
		}

		select {
		case pcm <- frame:
		case <-ctx.Done():
			close(pcm)
			return <-errCh
		}
	}

	return <-errCh
}
