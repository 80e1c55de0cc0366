package voice

import (
	"encoding/json"
	"fmt"
)

// Envelope is the outer JSON frame every control-plane message is wrapped
// in: {"op": <int>, "d": <opcode-specific object>}.
type Envelope struct {
	Op Opcode          `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
}

// Encode wraps a Payload into an Envelope and marshals it to the bytes
// that should be written to the control transport.
func Encode(p Payload) ([]byte, error) {
	d, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("voice: encode %s payload: %w", p.Opcode(), err)
	}
	env := Envelope{Op: p.Opcode(), D: d}
	out, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("voice: encode envelope: %w", err)
	}
	return out, nil
}

// Decode parses raw control-transport bytes into an Envelope and then, via
// the opcode registry, into the concrete Payload it carries. The returned
// Payload is always the correct concrete type for the opcode; callers
// type-switch on it rather than re-parsing json.RawMessage.
func Decode(raw []byte) (Payload, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("voice: decode envelope: %w", err)
	}

	factory, ok := registry[env.Op]
	if !ok {
		return nil, fmt.Errorf("voice: %w: opcode %d", ErrUnknownOpcode, env.Op)
	}

	p := factory()
	if len(env.D) > 0 {
		if err := json.Unmarshal(env.D, p); err != nil {
			return nil, fmt.Errorf("voice: decode %s payload: %w", env.Op, err)
		}
	}
	return p, nil
}
