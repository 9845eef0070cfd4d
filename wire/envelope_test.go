package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureCorrelationIDAssignsOnceWhenAbsent(t *testing.T) {
	env, err := NewEnvelope(ActionPing, nil)
	require.NoError(t, err)
	require.Empty(t, env.CorrelationID)

	id := env.EnsureCorrelationID()
	require.NotEmpty(t, id)
	require.Equal(t, id, env.EnsureCorrelationID(), "second call must not mint a new id")
}

func TestEnsureCorrelationIDPreservesExisting(t *testing.T) {
	env := Envelope{CorrelationID: "caller-supplied"}
	require.Equal(t, "caller-supplied", env.EnsureCorrelationID())
}

func TestDecodeRejectsUnknownAction(t *testing.T) {
	_, err := Decode([]byte(`{"action":"doTheThing","timestamp":1}`))
	require.ErrorIs(t, err, ErrInvalidEnvelope)
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	_, err := Decode([]byte(`{not json`))
	require.ErrorIs(t, err, ErrInvalidEnvelope)
}

func TestEnvelopeRoundTripsBatchPayload(t *testing.T) {
	batch := BatchPayload{Events: []EventRecord{
		{ModelName: "wallet", EventType: "created", EventVersion: 0, Timestamp: 1},
	}}
	env, err := NewEnvelope(ActionOutboxStreamBatch, batch)
	require.NoError(t, err)
	env.EnsureCorrelationID()

	raw, err := env.Marshal()
	require.NoError(t, err)

	decoded, err := Decode(raw)
	require.NoError(t, err)
	require.Equal(t, env.CorrelationID, decoded.CorrelationID)

	var got BatchPayload
	require.NoError(t, decoded.DecodePayload(&got))
	require.Equal(t, batch, got)
}

func TestNumericStringRoundTrip(t *testing.T) {
	n := NumericString(18446744073709551615) // max uint64
	raw, err := n.MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, `"18446744073709551615"`, string(raw))

	var got NumericString
	require.NoError(t, got.UnmarshalJSON(raw))
	require.Equal(t, n, got)
}

func TestNumericStringAcceptsBareNumber(t *testing.T) {
	var got NumericString
	require.NoError(t, got.UnmarshalJSON([]byte(`42`)))
	require.Equal(t, NumericString(42), got)
}
