// Package ipc implements the parent/child process-channel transport. Both
// sides run the exact same heartbeat and batch protocol; the only
// difference is the Kind they report and, for the child side, a
// constructor that asserts the channel exists before returning.
package ipc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chainstream/core/heartbeat"
	"github.com/chainstream/core/metrics"
	"github.com/chainstream/core/query"
	"github.com/chainstream/core/transport"
	"github.com/chainstream/core/wire"
)

// ErrNoChannel is returned by NewChild when constructed with a nil
// channel: the child asserts its channel exists before it runs.
var ErrNoChannel = errors.New("ipc: no channel attached to process")

// Carrier is one side of a parent<->child IPC transport.
type Carrier struct {
	kind      transport.Kind
	channel   Channel
	state     *transport.State
	sched     *heartbeat.Scheduler
	responder *query.Responder

	done chan struct{}
	once sync.Once
}

// NewChild builds the child side of the transport. The child asserts at
// construction that the channel exists, returning ErrNoChannel otherwise
// rather than proceeding in a half-built state.
func NewChild(channel Channel, cfg transport.Config, responder *query.Responder) (*Carrier, error) {
	if channel == nil {
		return nil, ErrNoChannel
	}
	return newCarrier(transport.KindIPCChild, channel, cfg, responder), nil
}

// NewParent builds the parent side of the transport.
func NewParent(channel Channel, cfg transport.Config, responder *query.Responder) *Carrier {
	return newCarrier(transport.KindIPCParent, channel, cfg, responder)
}

func newCarrier(kind transport.Kind, channel Channel, cfg transport.Config, responder *query.Responder) *Carrier {
	c := &Carrier{
		kind:      kind,
		channel:   channel,
		state:     transport.NewState(cfg),
		responder: responder,
		done:      make(chan struct{}),
	}
	c.state.MarkAttached()

	sched := heartbeat.New(heartbeat.Params{
		IntervalMin: cfg.HeartbeatIntervalMin,
		Multiplier:  cfg.HeartbeatMultiplier,
		IntervalMax: cfg.HeartbeatIntervalMax,
	}, c.ping)
	c.sched = sched
	c.state.SetHeartbeat(sched)

	go c.readLoop()
	return c
}

func (c *Carrier) Kind() transport.Kind { return c.kind }

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
	if !c.channel.Connected() {
		return fmt.Errorf("ipc: send: %w", transport.ErrDisconnected)
	}
	if err := c.channel.Send(raw); err != nil {
		c.sched.Reset()
		return fmt.Errorf("ipc: send: %w", transport.ErrDisconnected)
	}
	return nil
}

// ping emits a Ping the peer must reply to with a Pong carrying the
// password echo; either side sending Ping lets the other re-anchor its
// last-seen-pong time.
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
	sendErr := c.channel.Send(raw)
	metrics.HeartbeatTotal.WithLabelValues(string(c.kind), boolLabel(sendErr == nil)).Inc()
	if sendErr != nil {
		return fmt.Errorf("ipc: ping: %w", sendErr)
	}
	return nil
}

func (c *Carrier) readLoop() {
	defer func() {
		c.state.MarkDetached()
		close(c.done)
	}()
	for {
		raw, err := c.channel.Recv()
		if err != nil {
			return
		}
		if len(raw) == 0 {
			continue
		}
		env, err := wire.Decode(raw)
		if err != nil {
			continue // InvalidEnvelope: silently dropped.
		}
		c.dispatch(env)
	}
}

func (c *Carrier) dispatch(env wire.Envelope) {
	switch env.Action {
	case wire.ActionPing:
		pong := c.passwordPong(env.CorrelationID)
		raw, err := pong.Marshal()
		if err == nil {
			_ = c.channel.Send(raw)
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
		c.responder.Dispatch(context.Background(), env, func(resp wire.Envelope) {
			if resp.Action == "" {
				return
			}
			if raw, err := resp.Marshal(); err == nil {
				_ = c.channel.Send(raw)
			}
		})
	}
}

func (c *Carrier) passwordPong(correlationID string) wire.Envelope {
	cfg := c.state.Config()
	pong, _ := wire.NewEnvelope(wire.ActionPong, wire.PongPayload{Password: cfg.Password})
	pong.CorrelationID = correlationID
	return pong
}

// Destroy cancels the heartbeat, rejects any pending ack, and closes the
// channel. It blocks until readLoop has observed the close and exited, so
// no goroutine outlives Destroy. Idempotent.
func (c *Carrier) Destroy() {
	c.once.Do(func() {
		c.state.Destroy()
		_ = c.channel.Close()
		<-c.done
	})
}

func boolLabel(b bool) string {
	if b {
		return "ok"
	}
	return "error"
}
