// Package metrics exposes the prometheus collectors the transport and
// outbox layers update. It is ambient observability, not part of the core
// contract: nothing in this package can cause a core operation to fail.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// HeartbeatTotal counts heartbeat ticks per transport kind, labeled by
	// whether the tick's send succeeded.
	HeartbeatTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chainstream",
		Subsystem: "transport",
		Name:      "heartbeat_total",
		Help:      "Heartbeat ticks per transport kind and outcome.",
	}, []string{"kind", "outcome"})

	// OnlineGauge reports 1 when a transport is online, 0 otherwise.
	OnlineGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chainstream",
		Subsystem: "transport",
		Name:      "online",
		Help:      "1 iff the named transport currently considers itself online.",
	}, []string{"kind"})

	// AckLatency observes the time from Send(OutboxStreamBatch) to a
	// resolved WaitForAck, successful or not.
	AckLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "chainstream",
		Subsystem: "outbox",
		Name:      "ack_latency_seconds",
		Help:      "Latency between sending a batch and resolving its ack.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"kind", "outcome"})

	// RingSize reports the current number of blocks held per ring
	// instance, labeled by name so multiple aggregates can be observed.
	RingSize = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "chainstream",
		Subsystem: "chain",
		Name:      "ring_size",
		Help:      "Current number of light blocks retained in a ring.",
	}, []string{"ring"})
)

// MustRegister registers every collector in this package against reg. Call
// once at wiring time; calling twice against the same registry panics, as
// with any prometheus collector.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(HeartbeatTotal, OnlineGauge, AckLatency, RingSize)
}
