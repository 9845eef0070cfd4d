package ipc

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/chainstream/core/transport"
	"github.com/chainstream/core/wire"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreCurrent())
}

// pipePair returns two Channels, each end connected to the other's.
func pipePair(t *testing.T) (*PipeChannel, *PipeChannel) {
	t.Helper()
	ar, bw := io.Pipe()
	br, aw := io.Pipe()
	a := NewPipeChannel(ar, aw)
	b := NewPipeChannel(br, bw)
	return a, b
}

func fastConfig() transport.Config {
	cfg := transport.DefaultConfig("ipc-test")
	cfg.HeartbeatIntervalMin = 15 * time.Millisecond
	cfg.HeartbeatIntervalMax = 15 * time.Millisecond
	cfg.HeartbeatMultiplier = 1
	cfg.PingStale = 200 * time.Millisecond
	return cfg
}

func TestNewChildRejectsNilChannel(t *testing.T) {
	_, err := NewChild(nil, fastConfig(), nil)
	require.ErrorIs(t, err, ErrNoChannel)
}

func TestIPCHeartbeatBringsBothSidesOnline(t *testing.T) {
	parentCh, childCh := pipePair(t)
	parent := NewParent(parentCh, fastConfig(), nil)
	defer parent.Destroy()
	child, err := NewChild(childCh, fastConfig(), nil)
	require.NoError(t, err)
	defer child.Destroy()

	require.Eventually(t, parent.IsOnline, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, child.IsOnline, 2*time.Second, 10*time.Millisecond)
}

func TestIPCBatchAckRoundTrip(t *testing.T) {
	parentCh, childCh := pipePair(t)
	parent := NewParent(parentCh, fastConfig(), nil)
	defer parent.Destroy()

	// The peer side is simulated with the raw channel directly (rather
	// than a second Carrier) since acknowledging a received batch is a
	// stream-consumer responsibility outside the transport contract;
	// Carrier itself never auto-acks an inbound OutboxStreamBatch.
	go func() {
		for {
			raw, err := childCh.Recv()
			if err != nil {
				return
			}
			env, err := wire.Decode(raw)
			if err != nil {
				continue
			}
			switch env.Action {
			case wire.ActionPing:
				pong, _ := wire.NewEnvelope(wire.ActionPong, wire.PongPayload{})
				pong.CorrelationID = env.CorrelationID
				b, _ := pong.Marshal()
				_ = childCh.Send(b)
			case wire.ActionOutboxStreamBatch:
				ack, _ := wire.NewEnvelope(wire.ActionOutboxStreamAck, wire.AckPayload{AllOK: true})
				ack.CorrelationID = env.CorrelationID
				b, _ := ack.Marshal()
				_ = childCh.Send(b)
			}
		}
	}()

	env, _ := wire.NewEnvelope(wire.ActionOutboxStreamBatch, wire.BatchPayload{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, parent.Send(ctx, env))

	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	ack, err := parent.WaitForAck(ctx2)
	require.NoError(t, err)
	require.True(t, ack.AllOK)
}
