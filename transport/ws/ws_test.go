package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/chainstream/core/transport"
	"github.com/chainstream/core/wire"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreCurrent())
}

func fastConfig() Config {
	c := Config{Config: transport.DefaultConfig("ws-test")}
	c.HeartbeatIntervalMin = 15 * time.Millisecond
	c.HeartbeatIntervalMax = 15 * time.Millisecond
	c.HeartbeatMultiplier = 1
	c.PingStale = 200 * time.Millisecond
	return c
}

// echoServer upgrades to WebSocket and acts as the "stream consumer" peer:
// it answers each Ping with a Pong and, when onBatch is set, each
// OutboxStreamBatch with onBatch's reply. It sends no Pings of its own.
func echoServer(t *testing.T, onBatch func(env wire.Envelope) wire.Envelope) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			env, err := wire.Decode(data)
			if err != nil {
				continue
			}
			switch env.Action {
			case wire.ActionPing:
				pong, _ := wire.NewEnvelope(wire.ActionPong, wire.PongPayload{})
				pong.CorrelationID = env.CorrelationID
				raw, _ := pong.Marshal()
				_ = conn.WriteMessage(websocket.TextMessage, raw)
			case wire.ActionOutboxStreamBatch:
				if onBatch != nil {
					resp := onBatch(env)
					raw, _ := resp.Marshal()
					_ = conn.WriteMessage(websocket.TextMessage, raw)
				}
			}
		}
	}))
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestWSCarrierBecomesOnlineAfterPong(t *testing.T) {
	srv := echoServer(t, nil)
	defer srv.Close()

	c, err := Dial(context.Background(), func() Config {
		cfg := fastConfig()
		cfg.URL = wsURL(srv.URL)
		return cfg
	}(), nil)
	require.NoError(t, err)
	defer c.Destroy()

	require.Eventually(t, c.IsOnline, 2*time.Second, 10*time.Millisecond)
}

func TestWSCarrierBatchAckRoundTrip(t *testing.T) {
	srv := echoServer(t, func(env wire.Envelope) wire.Envelope {
		ack, _ := wire.NewEnvelope(wire.ActionOutboxStreamAck, wire.AckPayload{AllOK: false, OKIndices: []int{0}})
		ack.CorrelationID = env.CorrelationID
		return ack
	})
	defer srv.Close()

	cfg := fastConfig()
	cfg.URL = wsURL(srv.URL)
	c, err := Dial(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer c.Destroy()

	env, _ := wire.NewEnvelope(wire.ActionOutboxStreamBatch, wire.BatchPayload{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Send(ctx, env))

	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	ack, err := c.WaitForAck(ctx2)
	require.NoError(t, err)
	require.Equal(t, []int{0}, ack.OKIndices)
}

func TestWSCarrierCloseMarksOffline(t *testing.T) {
	srv := echoServer(t, nil)
	cfg := fastConfig()
	cfg.URL = wsURL(srv.URL)
	c, err := Dial(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer c.Destroy()

	require.Eventually(t, c.IsOnline, 2*time.Second, 10*time.Millisecond)
	srv.Close()
	require.Eventually(t, func() bool { return !c.IsOnline() }, 2*time.Second, 10*time.Millisecond)
}
