// Package ws implements the WebSocket transport: a full-duplex carrier
// where heartbeats, batches, acks and queries all travel one logical
// "message" channel over a single connection.
package ws

import (
	"context"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/chainstream/core/heartbeat"
	"github.com/chainstream/core/metrics"
	"github.com/chainstream/core/query"
	"github.com/chainstream/core/transport"
	"github.com/chainstream/core/wire"
)

// Config is the WebSocket-specific configuration surface.
type Config struct {
	transport.Config
	URL       string
	Path      string
	Protocols []string
}

// Carrier is the WebSocket transport, wrapping a single *websocket.Conn
// established either by dialing out (Dial) or accepting an inbound
// upgrade (NewFromConn, typically from an http.Handler using
// websocket.Upgrader).
type Carrier struct {
	cfg       Config
	conn      *websocket.Conn
	state     *transport.State
	sched     *heartbeat.Scheduler
	responder *query.Responder

	writeMu sync.Mutex
	closed  chan struct{}
	once    sync.Once
}

// Dial connects to cfg.URL and returns a running Carrier. The connection
// is considered tentatively up immediately; IsOnline only becomes true
// once a valid Pong is received.
func Dial(ctx context.Context, cfg Config, responder *query.Responder) (*Carrier, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("ws: dial: %w", err)
	}
	return NewFromConn(cfg, conn, responder), nil
}

// NewFromConn wraps an already-established connection (e.g. from a server
// upgrade) and starts its heartbeat and receive loops.
func NewFromConn(cfg Config, conn *websocket.Conn, responder *query.Responder) *Carrier {
	c := &Carrier{
		cfg:       cfg,
		conn:      conn,
		state:     transport.NewState(cfg.Config),
		responder: responder,
		closed:    make(chan struct{}),
	}
	c.state.MarkAttached()

	sched := heartbeat.New(heartbeat.Params{
		IntervalMin: cfg.HeartbeatIntervalMin,
		Multiplier:  cfg.HeartbeatMultiplier,
		IntervalMax: cfg.HeartbeatIntervalMax,
	}, c.ping)
	c.sched = sched
	c.state.SetHeartbeat(sched)

	conn.SetCloseHandler(func(code int, text string) error {
		c.state.MarkDetached()
		return nil
	})

	go c.readLoop()
	return c
}

func (c *Carrier) Kind() transport.Kind { return transport.KindWS }

func (c *Carrier) IsOnline() bool { return c.state.IsOnline() }

func (c *Carrier) WaitForOnline(ctx context.Context) error { return c.state.WaitForOnline(ctx) }

func (c *Carrier) WaitForAck(ctx context.Context) (wire.AckPayload, error) {
	return c.state.WaitForAck(ctx)
}

func (c *Carrier) Send(ctx context.Context, env wire.Envelope) error {
	env.EnsureCorrelationID()
	if env.Action == wire.ActionOutboxStreamBatch {
		c.state.NoteBatchSent(env.CorrelationID)
	}
	raw, err := env.Marshal()
	if err != nil {
		return err
	}
	if len(raw) > c.maxBytes() {
		return fmt.Errorf("ws: send: message exceeds max_message_bytes")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		c.sched.Reset()
		return fmt.Errorf("ws: send: %w", transport.ErrDisconnected)
	}
	return nil
}

func (c *Carrier) maxBytes() int {
	if c.cfg.MaxMessageBytes > 0 {
		return c.cfg.MaxMessageBytes
	}
	return 1 << 20
}

func (c *Carrier) ping() error {
	env, err := wire.NewEnvelope(wire.ActionPing, nil)
	if err != nil {
		return err
	}
	env.EnsureCorrelationID()
	raw, err := env.Marshal()
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	err = c.conn.WriteMessage(websocket.TextMessage, raw)
	c.writeMu.Unlock()
	metrics.HeartbeatTotal.WithLabelValues(string(transport.KindWS), boolLabel(err == nil)).Inc()
	if err != nil {
		return fmt.Errorf("ws: ping: %w", err)
	}
	return nil
}

// readLoop decodes every inbound frame (text frames as JSON, binary frames
// decoded via UTF-8) and dispatches it. It exits, and marks the carrier
// detached, as soon as the connection errors or closes.
func (c *Carrier) readLoop() {
	defer func() {
		c.state.MarkDetached()
		close(c.closed)
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		env, err := wire.Decode(data)
		if err != nil {
			// InvalidEnvelope: silently dropped.
			continue
		}
		c.dispatch(env)
	}
}

func (c *Carrier) dispatch(env wire.Envelope) {
	switch env.Action {
	case wire.ActionPing:
		pong, _ := wire.NewEnvelope(wire.ActionPong, wire.PongPayload{Password: c.cfg.Password})
		pong.CorrelationID = env.CorrelationID
		raw, err := pong.Marshal()
		if err == nil {
			c.writeMu.Lock()
			_ = c.conn.WriteMessage(websocket.TextMessage, raw)
			c.writeMu.Unlock()
		}
	case wire.ActionPong:
		var p wire.PongPayload
		_ = env.DecodePayload(&p)
		c.state.HandlePong(p)
	case wire.ActionOutboxStreamAck:
		var p wire.AckPayload
		if err := env.DecodePayload(&p); err == nil {
			c.state.DeliverAck(env.CorrelationID, p)
		}
	case wire.ActionQueryRequest:
		if c.responder == nil {
			return
		}
		// Dispatched on the bounded worker pool so this receive loop is
		// free to process the next frame immediately.
		c.responder.Dispatch(context.Background(), env, func(resp wire.Envelope) {
			if resp.Action == "" {
				return
			}
			raw, err := resp.Marshal()
			if err != nil {
				return
			}
			c.writeMu.Lock()
			_ = c.conn.WriteMessage(websocket.TextMessage, raw)
			c.writeMu.Unlock()
		})
	}
}

// Destroy cancels the heartbeat, rejects any pending ack, and closes the
// underlying connection. It blocks until readLoop has observed the close
// and exited, so no goroutine outlives Destroy. Idempotent.
func (c *Carrier) Destroy() {
	c.once.Do(func() {
		c.state.Destroy()
		_ = c.conn.Close()
		<-c.closed
	})
}

func boolLabel(b bool) string {
	if b {
		return "ok"
	}
	return "error"
}
