package transport

import (
	"context"
	"sync"
	"time"

	"github.com/chainstream/core/heartbeat"
	"github.com/chainstream/core/wire"
)

type pendingAck struct {
	correlationID string
	ch            chan ackResult
}

type ackResult struct {
	payload wire.AckPayload
	err     error
}

type bufferedAck struct {
	correlationID string
	payload       wire.AckPayload
}

// State is the liveness + single-in-flight-ack state machine shared by
// every carrier. Carriers embed it and drive it from their own send/receive
// paths; State never touches the wire itself.
type State struct {
	cfg Config

	mu                sync.Mutex
	online            bool
	lastPongAt        time.Time
	currentBatchID    string
	pending           *pendingAck
	buffered          *bufferedAck
	heartbeatSchedule *heartbeat.Scheduler
	destroyed         bool
}

// NewState builds a State for the given config. The heartbeat scheduler is
// attached separately via SetHeartbeat once the carrier has a callback
// that can actually reach the peer.
func NewState(cfg Config) *State {
	return &State{cfg: cfg}
}

// SetHeartbeat attaches the scheduler driving this transport's ping loop,
// so WaitForOnline can nudge it and Destroy can cancel it.
func (s *State) SetHeartbeat(sched *heartbeat.Scheduler) {
	s.mu.Lock()
	s.heartbeatSchedule = sched
	s.mu.Unlock()
}

// IsOnline reports whether the carrier is attached and a Pong arrived
// within PingStale.
func (s *State) IsOnline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isOnlineLocked()
}

func (s *State) isOnlineLocked() bool {
	if !s.online {
		return false
	}
	return time.Since(s.lastPongAt) < s.cfg.PingStale
}

// MarkAttached is called when the carrier connects (e.g. a WebSocket
// connect event). It leaves the online flag unchanged.
func (s *State) MarkAttached() {
	// Intentionally a no-op on the online flag: online only becomes true
	// on a valid Pong. Kept as a named hook so carriers have a place to
	// reset any prior ack state.
}

// MarkDetached immediately drops online to false, e.g. on socket close.
func (s *State) MarkDetached() {
	s.mu.Lock()
	s.online = false
	s.mu.Unlock()
}

// HandlePong applies the heartbeat protocol: online iff the configured
// password is absent or matches exactly.
func (s *State) HandlePong(payload wire.PongPayload) {
	if s.cfg.Password != "" && payload.Password != s.cfg.Password {
		return
	}
	s.mu.Lock()
	s.online = true
	s.lastPongAt = time.Now()
	s.mu.Unlock()
}

// WaitForOnline polls IsOnline, nudging the heartbeat to fire immediately,
// until ctx is done.
func (s *State) WaitForOnline(ctx context.Context) error {
	if s.IsOnline() {
		return nil
	}
	s.mu.Lock()
	sched := s.heartbeatSchedule
	s.mu.Unlock()
	if sched != nil {
		sched.Nudge()
	}

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ErrNotOnline
		case <-ticker.C:
			if s.IsOnline() {
				return nil
			}
		}
	}
}

// NoteBatchSent records correlationID as the current in-flight batch. At
// most one ack may be outstanding per transport.
func (s *State) NoteBatchSent(correlationID string) {
	s.mu.Lock()
	s.currentBatchID = correlationID
	s.mu.Unlock()
}

// WaitForAck resolves the ack matching the current batch's correlation
// id, consuming a pre-buffered ack if one arrived before this call. The
// wait ends at ctx's deadline or after the configured AckTimeout,
// whichever comes first.
func (s *State) WaitForAck(ctx context.Context) (wire.AckPayload, error) {
	if s.cfg.AckTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.AckTimeout)
		defer cancel()
	}
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return wire.AckPayload{}, ErrDestroyed
	}
	if s.currentBatchID == "" {
		s.mu.Unlock()
		return wire.AckPayload{}, ErrNoBatch
	}
	if s.pending != nil {
		s.mu.Unlock()
		return wire.AckPayload{}, ErrAnotherAckPending
	}
	if s.buffered != nil && s.buffered.correlationID == s.currentBatchID {
		payload := s.buffered.payload
		s.buffered = nil
		s.currentBatchID = ""
		s.mu.Unlock()
		return payload, nil
	}

	p := &pendingAck{correlationID: s.currentBatchID, ch: make(chan ackResult, 1)}
	s.pending = p
	s.mu.Unlock()

	select {
	case res := <-p.ch:
		return res.payload, res.err
	case <-ctx.Done():
		s.mu.Lock()
		if s.pending == p {
			s.pending = nil
			s.currentBatchID = ""
		}
		s.mu.Unlock()
		return wire.AckPayload{}, ErrAckTimeout
	}
}

// DeliverAck applies the ack-receipt logic: resolve a matching pending
// waiter, else buffer it for the next WaitForAck if it matches the
// current batch, else discard.
func (s *State) DeliverAck(correlationID string, payload wire.AckPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != nil && s.pending.correlationID == correlationID {
		p := s.pending
		s.pending = nil
		s.currentBatchID = ""
		select {
		case p.ch <- ackResult{payload: payload}:
		default:
		}
		return
	}
	if s.currentBatchID == correlationID {
		s.buffered = &bufferedAck{correlationID: correlationID, payload: payload}
		return
	}
	// Unknown or stale correlation id: discard silently.
}

// Destroy rejects any pending ack with ErrDestroyed and cancels the
// attached heartbeat. Idempotent.
func (s *State) Destroy() {
	s.mu.Lock()
	if s.destroyed {
		s.mu.Unlock()
		return
	}
	s.destroyed = true
	s.online = false
	if s.pending != nil {
		select {
		case s.pending.ch <- ackResult{err: ErrDestroyed}:
		default:
		}
		s.pending = nil
	}
	sched := s.heartbeatSchedule
	s.mu.Unlock()
	if sched != nil {
		sched.Destroy()
	}
}

// Config returns the transport's configuration.
func (s *State) Config() Config { return s.cfg }
