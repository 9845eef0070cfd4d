package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/chainstream/core/transport"
)

const sampleTOML = `
streaming = "primary-ws"

[[transport]]
name = "primary-ws"
kind = "ws"
ack_timeout_ms = 4000
heartbeat_interval_min_ms = 250
heartbeat_multiplier = 2.0
heartbeat_interval_max_ms = 8000
password = "s3cret"

[[transport]]
name = "fallback-http"
kind = "http"

[webhook]
url = "https://example.test/webhook"
token = "tok"

[ws]
url = "wss://example.test/stream"
protocols = ["v1"]
`

func TestParseDecodesTransportsAndCarrierTables(t *testing.T) {
	cfg, err := Parse(sampleTOML)
	require.NoError(t, err)

	require.Equal(t, transport.KindWS, cfg.StreamingKind())
	require.Equal(t, "https://example.test/webhook", cfg.Webhook.URL)
	require.Equal(t, []string{"v1"}, cfg.WS.Protocols)

	tc, ok := cfg.ByName("primary-ws")
	require.True(t, ok)
	require.Equal(t, "ws", tc.Kind)
	require.Equal(t, 4000, tc.AckTimeoutMS)

	_, ok = cfg.ByName("nonexistent")
	require.False(t, ok)
}

func TestTransportConfigResolveOverlaysDefaults(t *testing.T) {
	cfg, err := Parse(sampleTOML)
	require.NoError(t, err)

	tc, _ := cfg.ByName("primary-ws")
	resolved := tc.Resolve()

	require.Equal(t, "primary-ws", resolved.Name)
	require.Equal(t, 4*time.Second, resolved.AckTimeout)
	require.Equal(t, 250*time.Millisecond, resolved.HeartbeatIntervalMin)
	require.Equal(t, 2.0, resolved.HeartbeatMultiplier)
	require.Equal(t, 8*time.Second, resolved.HeartbeatIntervalMax)
	require.Equal(t, "s3cret", resolved.Password)
	// Untouched by the TOML document: falls through to the package default.
	require.Equal(t, 1<<20, resolved.MaxMessageBytes)
}

func TestTransportConfigResolveLeavesDefaultsWhenFieldsAbsent(t *testing.T) {
	cfg, err := Parse(sampleTOML)
	require.NoError(t, err)

	tc, _ := cfg.ByName("fallback-http")
	resolved := tc.Resolve()
	defaults := transport.DefaultConfig("fallback-http")
	require.Equal(t, defaults.AckTimeout, resolved.AckTimeout)
	require.Equal(t, defaults.PingStale, resolved.PingStale)
}

func TestWebhookTimeoutDefaultsWhenUnset(t *testing.T) {
	w := WebhookConfig{}
	require.Equal(t, 2*time.Second, w.Timeout())

	w.TimeoutMS = 500
	require.Equal(t, 500*time.Millisecond, w.Timeout())
}

func TestWebhookEffectivePingURLFallsBackToURL(t *testing.T) {
	w := WebhookConfig{URL: "https://example.test/webhook"}
	require.Equal(t, w.URL, w.EffectivePingURL())

	w.PingURL = "https://example.test/ping"
	require.Equal(t, w.PingURL, w.EffectivePingURL())
}

func TestDefaultsAppliedBeforeDecode(t *testing.T) {
	cfg, err := Parse(`streaming = "x"`)
	require.NoError(t, err)
	require.Equal(t, 2000, cfg.Webhook.TimeoutMS)
}
