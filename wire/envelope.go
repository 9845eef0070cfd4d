package wire

import (
	"encoding/json"
	"fmt"
	"time"
)

// Envelope is the single message shape every carrier sends and receives.
// Payload is left as raw JSON; callers decode it against the shape implied
// by Action.
type Envelope struct {
	Action        Action          `json:"action"`
	Payload       json.RawMessage `json:"payload,omitempty"`
	RequestID     string          `json:"request_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Timestamp     int64           `json:"timestamp"`
}

// NewEnvelope builds an envelope stamped with the current time. If payload
// is non-nil it is marshalled into Payload. A correlation id is assigned
// lazily by EnsureCorrelationID, not here, since not every envelope needs
// one (e.g. a Ping does not carry a password but still needs an id to be
// echoed by the Pong).
func NewEnvelope(action Action, payload any) (Envelope, error) {
	env := Envelope{Action: action, Timestamp: nowMillis()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("wire: marshal payload for %s: %w", action, err)
		}
		env.Payload = raw
	}
	return env, nil
}

// EnsureCorrelationID assigns a fresh correlation id if one is not already
// present, per spec: "Every object-form message is assigned a
// correlation_id on send if absent."
func (e *Envelope) EnsureCorrelationID() string {
	if e.CorrelationID == "" {
		e.CorrelationID = NewCorrelationID()
	}
	return e.CorrelationID
}

// DecodePayload unmarshals the envelope payload into v.
func (e Envelope) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("wire: envelope %s has no payload", e.Action)
	}
	return json.Unmarshal(e.Payload, v)
}

// Marshal serialises the envelope to its UTF-8 JSON wire form.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses raw bytes (a JSON string frame, or a UTF-8 decoded binary
// frame) into an Envelope, rejecting actions outside the closed action set.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("wire: %w: %v", ErrInvalidEnvelope, err)
	}
	if !env.Action.Valid() {
		return Envelope{}, fmt.Errorf("wire: %w: unknown action %q", ErrInvalidEnvelope, env.Action)
	}
	return env, nil
}

func nowMillis() int64 { return time.Now().UnixMilli() }
