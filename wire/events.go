package wire

import "encoding/json"

// EventRecord is a single blockchain domain event as it travels the wire.
// Payload is left opaque (an already-serialised JSON string) since the
// core never interprets aggregate-specific event bodies.
type EventRecord struct {
	ModelName    string          `json:"model_name"`
	EventType    string          `json:"event_type"`
	EventVersion NumericString   `json:"event_version"`
	RequestID    string          `json:"request_id,omitempty"`
	BlockHeight  *NumericString  `json:"block_height"`
	Payload      json.RawMessage `json:"payload"`
	Timestamp    int64           `json:"timestamp"`
}

// BatchPayload is the payload of an OutboxStreamBatch envelope. Ordering of
// Events is preserved end-to-end by every carrier.
type BatchPayload struct {
	Events []EventRecord `json:"events"`
}

// AckPayload is the payload of an OutboxStreamAck envelope. If AllOK is
// true every event in the corresponding batch was accepted in order; if
// false, OKIndices enumerates the zero-based accepted positions and the
// rest must be re-sent.
type AckPayload struct {
	AllOK     bool  `json:"all_ok"`
	OKIndices []int `json:"ok_indices,omitempty"`
}

// PongPayload carries the optional liveness password echo.
type PongPayload struct {
	Password string `json:"password,omitempty"`
}

// QueryRequestPayload is the payload of a query.request envelope.
type QueryRequestPayload struct {
	Name string          `json:"name"`
	DTO  json.RawMessage `json:"dto,omitempty"`
}

// QueryResponsePayload is the payload of a query.response envelope.
type QueryResponsePayload struct {
	OK   bool            `json:"ok"`
	Data json.RawMessage `json:"data,omitempty"`
	Err  string          `json:"err,omitempty"`
}
