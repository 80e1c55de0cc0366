// Package gateway implements the C2 control transport: the WebSocket
// connection carrying the voice protocol's JSON-framed opcode stream,
// with a read pump decoding inbound frames and a mutex-serialized send
// path for outbound ones.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voicecore/gateway/pkg/voice"
	"github.com/voicecore/gateway/pkg/voiceerr"
)

const handshakeTimeout = 10 * time.Second

// Transport owns one control-plane WebSocket connection. Send may be
// called concurrently with Recv and with itself; Recv must only be
// called from one goroutine at a time (it is the session's single
// receive-loop owner).
type Transport struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	sendBuf *boundedBuffer

	incoming chan voice.Payload
	errCh    chan error
}

func NewTransport() *Transport {
	return &Transport{
		sendBuf:  newBoundedBuffer(maxPayloadBytes),
		incoming: make(chan voice.Payload, 16),
		errCh:    make(chan error, 1),
	}
}

// Connect dials the control-plane endpoint and starts the read pump.
func (t *Transport) Connect(ctx context.Context, url string) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return voiceerr.New(voiceerr.CategoryTransport, "dial", err)
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	go t.readPump()
	return nil
}

// readPump decodes inbound frames until the connection fails or is
// closed, pushing each decoded Payload to the incoming channel. A frame
// that fails to decode is silently skipped rather than killing the
// pump: a single malformed frame from the peer should not tear down an
// otherwise healthy session.
func (t *Transport) readPump() {
	for {
		t.mu.Lock()
		conn := t.conn
		t.mu.Unlock()
		if conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			t.errCh <- classifyReadErr(err)
			close(t.incoming)
			return
		}

		payload, err := voice.Decode(raw)
		if err != nil {
			continue
		}

		t.incoming <- payload
	}
}

func classifyReadErr(err error) error {
	if closeErr, ok := err.(*websocket.CloseError); ok {
		fatal, resumable := classifyClose(closeErr.Code)
		if fatal {
			return voiceerr.New(voiceerr.CategoryRemoteControl, "recv", err)
		}
		if resumable {
			return voiceerr.NewResumable("recv", err)
		}
		return voiceerr.New(voiceerr.CategoryRemoteControl, "recv", err)
	}
	return voiceerr.New(voiceerr.CategoryTransport, "recv", err)
}

// Recv blocks for the next inbound Payload, or returns the terminal error
// once the connection has failed or closed.
func (t *Transport) Recv(ctx context.Context) (voice.Payload, error) {
	select {
	case p, ok := <-t.incoming:
		if !ok {
			return nil, <-t.errCh
		}
		return p, nil
	case err := <-t.errCh:
		return nil, err
	case <-ctx.Done():
		return nil, voiceerr.New(voiceerr.CategoryCancelled, "recv", ctx.Err())
	}
}

// Send marshals and writes one outbound Payload, serialized against any
// other concurrent Send call.
func (t *Transport) Send(p voice.Payload) error {
	raw, err := voice.Encode(p)
	if err != nil {
		return voiceerr.New(voiceerr.CategoryLocal, "encode", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.sendBuf.Reset()
	if _, err := t.sendBuf.Write(raw); err != nil {
		if errors.Is(err, ErrPayloadTooLarge) {
			return voiceerr.NewPayloadTooLarge("send", err)
		}
		return voiceerr.New(voiceerr.CategoryLocal, "send", err)
	}
	if t.conn == nil {
		return voiceerr.New(voiceerr.CategoryLocal, "send", fmt.Errorf("transport not connected"))
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, t.sendBuf.Bytes()); err != nil {
		return voiceerr.New(voiceerr.CategoryTransport, "send", err)
	}
	return nil
}

// Disconnect closes the underlying connection, sending a normal-closure
// control frame first on a best-effort basis.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn == nil {
		return nil
	}

	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return conn.Close()
}
