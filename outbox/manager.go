// Package outbox implements the Outbox Stream Manager: the single-writer
// component that binds one provisioned transport by name and forwards
// batches of wire events to it (spec.md §4.4).
package outbox

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/chainstream/core/metrics"
	"github.com/chainstream/core/transport"
	"github.com/chainstream/core/wire"
)

var (
	// ErrProducerAlreadySet is returned by SetProducer on a second call: the
	// source permits overwrite at init only, and spec.md §9 forbids mid-life
	// replacement, so a Manager accepts exactly one producer per lifetime.
	ErrProducerAlreadySet = errors.New("outbox: producer already set")

	// ErrNoProducer is returned by SendBatch when no producer has been
	// assigned yet.
	ErrNoProducer = errors.New("outbox: no producer set")
)

// Manager selects the active streaming transport and forwards batches to
// it. Concurrent SendBatch calls are serialised: the manager is
// single-writer per spec.md §4.4, and concurrent callers are a programming
// error it nonetheless makes safe by queuing them behind writeMu.
type Manager struct {
	mu          sync.Mutex
	producer    transport.Transport
	producerSet bool

	writeMu sync.Mutex
}

// NewManager returns a Manager with no producer assigned yet.
func NewManager() *Manager {
	return &Manager{}
}

// NewManagerForTransport builds a Manager already bound to the transport
// registered under streaming in transports (the configured
// `streaming = "<name>"` selection from spec.md §6), failing fast if that
// kind isn't provisioned.
func NewManagerForTransport(transports map[transport.Kind]transport.Transport, streaming transport.Kind) (*Manager, error) {
	t, ok := transports[streaming]
	if !ok {
		return nil, fmt.Errorf("streaming transport %s was requested but not provisioned", streaming)
	}
	m := NewManager()
	if err := m.SetProducer(t); err != nil {
		return nil, err
	}
	return m, nil
}

// SetProducer assigns the transport this manager forwards batches to.
// Single-assignment per lifetime: a second call returns
// ErrProducerAlreadySet without disturbing the existing producer. The
// manager does not own the transport's lifecycle (it never calls Destroy).
func (m *Manager) SetProducer(t transport.Transport) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.producerSet {
		return ErrProducerAlreadySet
	}
	m.producer = t
	m.producerSet = true
	return nil
}

// GetProducer returns the assigned transport, or ok=false if none has been
// set yet.
func (m *Manager) GetProducer() (transport.Transport, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.producer, m.producerSet
}

// SendBatch runs the wait_for_online -> send(OutboxStreamBatch) ->
// wait_for_ack sequence from spec.md §4.4. Callers are serialised on
// writeMu so that, even if a programming error lets two goroutines call
// SendBatch concurrently, at most one OutboxStreamBatch from this manager
// is ever in flight.
func (m *Manager) SendBatch(ctx context.Context, events []wire.EventRecord) (wire.AckPayload, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	producer, ok := m.GetProducer()
	if !ok {
		return wire.AckPayload{}, ErrNoProducer
	}

	if err := producer.WaitForOnline(ctx); err != nil {
		return wire.AckPayload{}, fmt.Errorf("outbox: %w", err)
	}

	env, err := wire.NewEnvelope(wire.ActionOutboxStreamBatch, wire.BatchPayload{Events: events})
	if err != nil {
		return wire.AckPayload{}, err
	}
	env.EnsureCorrelationID()

	start := time.Now()
	kind := string(producer.Kind())

	if err := producer.Send(ctx, env); err != nil {
		metrics.AckLatency.WithLabelValues(kind, "send_error").Observe(time.Since(start).Seconds())
		return wire.AckPayload{}, fmt.Errorf("outbox: %w", err)
	}

	ack, err := producer.WaitForAck(ctx)
	metrics.OnlineGauge.WithLabelValues(kind).Set(boolToFloat(producer.IsOnline()))
	if err != nil {
		metrics.AckLatency.WithLabelValues(kind, "error").Observe(time.Since(start).Seconds())
		return wire.AckPayload{}, fmt.Errorf("outbox: %w", err)
	}

	outcome := "ok"
	if !ack.AllOK {
		outcome = "partial"
	}
	metrics.AckLatency.WithLabelValues(kind, outcome).Observe(time.Since(start).Seconds())
	return ack, nil
}

// PendingIndices returns the zero-based positions of an n-event batch that
// ack did not accept, so a caller can re-send exactly those events per
// spec.md §4.2's ok_indices semantics ("absence of an index means the
// event must be re-sent").
func PendingIndices(ack wire.AckPayload, n int) []int {
	if ack.AllOK {
		return nil
	}
	all := mapset.NewThreadUnsafeSet[int]()
	for i := 0; i < n; i++ {
		all.Add(i)
	}
	accepted := mapset.NewThreadUnsafeSet(ack.OKIndices...)
	pending := all.Difference(accepted).ToSlice()
	sort.Ints(pending)
	return pending
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
