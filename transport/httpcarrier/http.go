// Package httpcarrier implements the HTTP webhook transport: a half-duplex
// carrier that POSTs batches and heartbeat pings to a remote URL and reads
// Pong/OutboxStreamAck envelopes back out of the HTTP response body, plus
// an inbound mux a peer can POST QueryRequest/Pong envelopes into.
package httpcarrier

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"

	"github.com/chainstream/core/heartbeat"
	"github.com/chainstream/core/metrics"
	"github.com/chainstream/core/query"
	"github.com/chainstream/core/transport"
	"github.com/chainstream/core/wire"
)

// Config is the HTTP-specific configuration surface.
type Config struct {
	transport.Config
	URL     string
	PingURL string // defaults to URL when empty
	Token   string
	Timeout time.Duration // default 2s
}

func (c Config) pingURL() string {
	if c.PingURL != "" {
		return c.PingURL
	}
	return c.URL
}

func (c Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 2 * time.Second
}

// Carrier is the HTTP webhook transport.
type Carrier struct {
	cfg    Config
	state  *transport.State
	client *http.Client
	sched  *heartbeat.Scheduler

	responder *query.Responder
}

// New builds an HTTP carrier and starts its heartbeat loop. responder may
// be nil if this carrier never needs to serve inbound queries.
func New(cfg Config, responder *query.Responder) *Carrier {
	state := transport.NewState(cfg.Config)
	c := &Carrier{
		cfg:       cfg,
		state:     state,
		client:    &http.Client{Timeout: cfg.timeout()},
		responder: responder,
	}
	sched := heartbeat.New(heartbeat.Params{
		IntervalMin: cfg.HeartbeatIntervalMin,
		Multiplier:  cfg.HeartbeatMultiplier,
		IntervalMax: cfg.HeartbeatIntervalMax,
	}, c.ping)
	c.sched = sched
	state.SetHeartbeat(sched)
	return c
}

func (c *Carrier) Kind() transport.Kind { return transport.KindHTTP }

func (c *Carrier) IsOnline() bool { return c.state.IsOnline() }

func (c *Carrier) WaitForOnline(ctx context.Context) error { return c.state.WaitForOnline(ctx) }

// Destroy cancels the heartbeat and closes any idle keep-alive
// connections this carrier's client holds open.
func (c *Carrier) Destroy() {
	c.state.Destroy()
	c.client.CloseIdleConnections()
}

// ping POSTs a minimal Ping to PingURL (or URL) every heartbeat tick and
// applies whatever Pong comes back in the response body. A send error
// resets the scheduler's interval to the minimum by returning non-nil:
// the heartbeat runs independently of the carrier's batch traffic.
func (c *Carrier) ping() error {
	env, err := wire.NewEnvelope(wire.ActionPing, nil)
	if err != nil {
		return err
	}
	env.EnsureCorrelationID()

	body, err := c.post(context.Background(), c.cfg.pingURL(), env)
	metrics.HeartbeatTotal.WithLabelValues(string(transport.KindHTTP), boolLabel(err == nil)).Inc()
	if err != nil {
		return err
	}
	if body == nil {
		return nil
	}
	resp, err := wire.Decode(body)
	if err != nil {
		// A malformed or empty reply is not itself a liveness failure;
		// the next tick will try again.
		return nil
	}
	c.applyInbound(resp)
	return nil
}

// Send ensures a correlation id, records batch envelopes as the current
// in-flight batch, and POSTs the envelope to cfg.URL.
func (c *Carrier) Send(ctx context.Context, env wire.Envelope) error {
	env.EnsureCorrelationID()
	if env.Action == wire.ActionOutboxStreamBatch {
		c.state.NoteBatchSent(env.CorrelationID)
	}
	body, err := c.post(ctx, c.cfg.URL, env)
	if err != nil {
		c.sched.Reset()
		return fmt.Errorf("httpcarrier: send: %w", transport.ErrDisconnected)
	}
	if body != nil {
		if resp, err := wire.Decode(body); err == nil {
			c.applyInbound(resp)
		}
	}
	return nil
}

func (c *Carrier) WaitForAck(ctx context.Context) (wire.AckPayload, error) {
	return c.state.WaitForAck(ctx)
}

func (c *Carrier) post(ctx context.Context, url string, env wire.Envelope) ([]byte, error) {
	raw, err := env.Marshal()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.timeout())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("x-transport-token", c.cfg.Token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(io.LimitReader(resp.Body, int64(c.maxBytes())))
}

func (c *Carrier) maxBytes() int {
	if c.cfg.MaxMessageBytes > 0 {
		return c.cfg.MaxMessageBytes
	}
	return 1 << 20
}

// applyInbound handles whatever envelope the peer sent back, whether a
// Pong (for a Ping) or an OutboxStreamAck (for a batch). HTTP also
// accepts a Pong in a batch response body, not just a Ping response.
func (c *Carrier) applyInbound(env wire.Envelope) {
	switch env.Action {
	case wire.ActionPong:
		var p wire.PongPayload
		_ = env.DecodePayload(&p)
		c.state.HandlePong(p)
	case wire.ActionOutboxStreamAck:
		var p wire.AckPayload
		if err := env.DecodePayload(&p); err == nil {
			c.state.DeliverAck(env.CorrelationID, p)
		}
	}
}

// Handler returns an http.Handler a server can mount to receive inbound
// envelopes POSTed by the peer: Ping (replied to with Pong),
// QueryRequest (dispatched to the query responder, replied to with
// QueryResponse). This is what makes the "webhook" bidirectional: each
// side runs one of these pointed at the other's URL.
func (c *Carrier) Handler() http.Handler {
	router := httprouter.New()
	router.POST("/", c.serveEnvelope)
	return cors.Default().Handler(router)
}

func (c *Carrier) serveEnvelope(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if c.cfg.Token != "" && r.Header.Get("x-transport-token") != c.cfg.Token {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, int64(c.maxBytes())))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	env, err := wire.Decode(raw)
	if err != nil {
		// InvalidEnvelope: silently dropped.
		w.WriteHeader(http.StatusOK)
		return
	}

	switch env.Action {
	case wire.ActionPing:
		pong, _ := wire.NewEnvelope(wire.ActionPong, wire.PongPayload{Password: c.cfg.Password})
		pong.CorrelationID = env.CorrelationID
		writeEnvelope(w, pong)
	case wire.ActionPong:
		var p wire.PongPayload
		_ = env.DecodePayload(&p)
		c.state.HandlePong(p)
		w.WriteHeader(http.StatusOK)
	case wire.ActionOutboxStreamAck:
		var p wire.AckPayload
		if err := env.DecodePayload(&p); err == nil {
			c.state.DeliverAck(env.CorrelationID, p)
		}
		w.WriteHeader(http.StatusOK)
	case wire.ActionQueryRequest:
		if c.responder == nil {
			w.WriteHeader(http.StatusOK)
			return
		}
		resp := c.responder.Handle(r.Context(), env)
		if resp.Action == "" {
			w.WriteHeader(http.StatusOK)
			return
		}
		writeEnvelope(w, resp)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func writeEnvelope(w http.ResponseWriter, env wire.Envelope) {
	raw, err := env.Marshal()
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(raw)
}

func boolLabel(b bool) string {
	if b {
		return "ok"
	}
	return "error"
}
