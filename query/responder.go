package query

import (
	"context"
	"fmt"

	"github.com/JekaMas/workerpool"

	"github.com/chainstream/core/wire"
)

// Responder decodes QueryRequest envelopes, dispatches them against a Bus,
// and builds the matching QueryResponse envelope.
type Responder struct {
	bus  Bus
	pool *workerpool.WorkerPool
}

// NewResponder builds a Responder backed by bus. poolSize bounds how many
// queries may execute concurrently without blocking a carrier's receive
// loop (spec.md §5: "that work is not awaited before returning to the
// receive loop").
func NewResponder(bus Bus, poolSize int) *Responder {
	if poolSize < 1 {
		poolSize = 1
	}
	return &Responder{bus: bus, pool: workerpool.New(poolSize)}
}

// Handle runs a QueryRequest synchronously and returns the QueryResponse
// envelope to write back. Used by request/reply carriers (HTTP) where the
// peer is blocked waiting on this same call stack. Queries with an
// invalid or absent name are silently dropped: the zero Envelope is
// returned and the caller must check Action != "".
func (r *Responder) Handle(ctx context.Context, req wire.Envelope) wire.Envelope {
	var payload wire.QueryRequestPayload
	if err := req.DecodePayload(&payload); err != nil || payload.Name == "" {
		return wire.Envelope{}
	}
	return r.execute(ctx, req.CorrelationID, payload)
}

// Dispatch runs a QueryRequest on the bounded worker pool and invokes
// reply with the QueryResponse envelope once it completes, without
// blocking the caller. Used by push carriers (WebSocket, IPC) whose
// receive loop must stay free to process the next frame.
func (r *Responder) Dispatch(ctx context.Context, req wire.Envelope, reply func(wire.Envelope)) {
	var payload wire.QueryRequestPayload
	if err := req.DecodePayload(&payload); err != nil || payload.Name == "" {
		return
	}
	correlationID := req.CorrelationID
	r.pool.Submit(func() {
		reply(r.execute(ctx, correlationID, payload))
	})
}

func (r *Responder) execute(ctx context.Context, correlationID string, payload wire.QueryRequestPayload) wire.Envelope {
	data, err := r.bus.Dispatch(ctx, payload.Name, payload.DTO)
	var respPayload wire.QueryResponsePayload
	if err != nil {
		respPayload = wire.QueryResponsePayload{OK: false, Err: fmt.Sprintf("%v", err)}
	} else {
		respPayload = wire.QueryResponsePayload{OK: true, Data: data}
	}
	resp, _ := wire.NewEnvelope(wire.ActionQueryResponse, respPayload)
	resp.CorrelationID = correlationID
	return resp
}

// Close releases the worker pool.
func (r *Responder) Close() {
	r.pool.StopWait()
}
