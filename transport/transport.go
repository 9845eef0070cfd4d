// Package transport defines the carrier-agnostic contract every concrete
// transport (HTTP webhook, WebSocket, IPC parent/child) implements, plus
// the shared liveness/ack-correlation state machine common to all of them.
package transport

import (
	"context"
	"errors"
	"time"

	"github.com/chainstream/core/wire"
)

// Kind identifies a carrier implementation. The set is closed.
type Kind string

const (
	KindHTTP              Kind = "http"
	KindWS                Kind = "ws"
	KindIPCChild          Kind = "ipc-child"
	KindIPCParent         Kind = "ipc-parent"
	KindElectronIPCMain   Kind = "electron-ipc-main"
	KindElectronIPCRender Kind = "electron-ipc-renderer"
)

// Sentinel errors returned across all carriers.
var (
	ErrDisconnected      = errors.New("transport: disconnected")
	ErrNotOnline         = errors.New("transport: not online")
	ErrAckTimeout        = errors.New("transport: ack timeout")
	ErrAnotherAckPending = errors.New("transport: another ack pending")
	ErrNoBatch           = errors.New("transport: no batch in flight")
	ErrDestroyed         = errors.New("transport: destroyed")
)

// Transport is the uniform contract every carrier implements. Contexts
// passed to WaitForOnline/Send/WaitForAck carry caller-chosen deadlines;
// implementations must also honor a configured default deadline where one
// applies (e.g. webhook.timeout_ms).
type Transport interface {
	Kind() Kind

	// IsOnline is true iff the carrier is attached and a Pong was seen
	// within PingStaleDuration.
	IsOnline() bool

	// WaitForOnline polls IsOnline, nudging the heartbeat to fire
	// immediately, until ctx is done.
	WaitForOnline(ctx context.Context) error

	// Send ensures an object-form envelope carries a correlation id,
	// records OutboxStreamBatch envelopes as the current batch, and
	// writes to the carrier.
	Send(ctx context.Context, env wire.Envelope) error

	// WaitForAck resolves the ack matching the current batch's
	// correlation id.
	WaitForAck(ctx context.Context) (wire.AckPayload, error)

	// Destroy cancels the heartbeat, rejects any pending ack with
	// ErrDestroyed, and detaches listeners. Idempotent.
	Destroy()
}

// Config is the configuration surface shared by every carrier.
// Carrier-specific fields live alongside it in each sub-package.
type Config struct {
	Name                   string
	MaxMessageBytes        int
	AckTimeout             time.Duration
	HeartbeatIntervalMin   time.Duration
	HeartbeatMultiplier    float64
	HeartbeatIntervalMax   time.Duration
	PingStale              time.Duration
	Password               string
}

// DefaultConfig returns the baseline defaults, to be overridden field by
// field from internal/config.
func DefaultConfig(name string) Config {
	return Config{
		Name:                 name,
		MaxMessageBytes:      1 << 20, // 1 MiB
		AckTimeout:           3 * time.Second,
		HeartbeatIntervalMin: 200 * time.Millisecond,
		HeartbeatMultiplier:  1.5,
		HeartbeatIntervalMax: 10 * time.Second,
		PingStale:            15 * time.Second,
	}
}
