// Package config loads the TOML configuration surface for transports and
// carriers, layering file configuration under struct-literal defaults.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/chainstream/core/transport"
)

// TransportConfig is one `[[transport]]` table: the per-transport surface
// shared by every carrier kind.
type TransportConfig struct {
	Name                     string  `toml:"name"`
	Kind                     string  `toml:"kind"`
	MaxMessageBytes          int     `toml:"max_message_bytes"`
	AckTimeoutMS             int     `toml:"ack_timeout_ms"`
	HeartbeatIntervalMinMS   int     `toml:"heartbeat_interval_min_ms"`
	HeartbeatMultiplier      float64 `toml:"heartbeat_multiplier"`
	HeartbeatIntervalMaxMS   int     `toml:"heartbeat_interval_max_ms"`
	PingStaleMS              int     `toml:"ping_stale_ms"`
	Password                 string  `toml:"password"`
}

// WebhookConfig is the `[webhook]` table, additional surface for the HTTP
// carrier.
type WebhookConfig struct {
	URL       string `toml:"url"`
	PingURL   string `toml:"ping_url"`
	Token     string `toml:"token"`
	TimeoutMS int    `toml:"timeout_ms"`
}

// WSConfig is the `[ws]` table, additional surface for the WebSocket
// carrier.
type WSConfig struct {
	URL       string   `toml:"url"`
	Path      string   `toml:"path"`
	Protocols []string `toml:"protocols"`
}

// Config is the full configuration surface: one or more provisioned
// transports, carrier-specific tables, and the name of the transport
// selected for outbox streaming.
type Config struct {
	Streaming string            `toml:"streaming"`
	Transport []TransportConfig `toml:"transport"`
	Webhook   WebhookConfig     `toml:"webhook"`
	WS        WSConfig          `toml:"ws"`
}

// Defaults returns the configuration surface's field-level defaults, to be
// overwritten by whatever TOML document Load decodes on top of it.
func Defaults() Config {
	return Config{
		Webhook: WebhookConfig{TimeoutMS: 2000},
	}
}

// Load reads and decodes the TOML document at path on top of Defaults.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: load %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a TOML document already held in memory, for tests and for
// embedding a config alongside the binary.
func Parse(data string) (Config, error) {
	cfg := Defaults()
	if _, err := toml.Decode(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}
	return cfg, nil
}

// ByName returns the `[[transport]]` table named name.
func (c Config) ByName(name string) (TransportConfig, bool) {
	for _, t := range c.Transport {
		if t.Name == name {
			return t, true
		}
	}
	return TransportConfig{}, false
}

// StreamingKind returns the configured streaming transport's Kind: the kind
// of the `[[transport]]` table named by streaming, or streaming itself if
// no table has that name.
func (c Config) StreamingKind() transport.Kind {
	if t, ok := c.ByName(c.Streaming); ok {
		return transport.Kind(t.Kind)
	}
	return transport.Kind(c.Streaming)
}

// Resolve layers t's non-zero fields over transport.DefaultConfig(t.Name):
// the file only overrides what it sets, everything else falls back to the
// built-in default.
func (t TransportConfig) Resolve() transport.Config {
	cfg := transport.DefaultConfig(t.Name)
	if t.MaxMessageBytes > 0 {
		cfg.MaxMessageBytes = t.MaxMessageBytes
	}
	if t.AckTimeoutMS > 0 {
		cfg.AckTimeout = time.Duration(t.AckTimeoutMS) * time.Millisecond
	}
	if t.HeartbeatIntervalMinMS > 0 {
		cfg.HeartbeatIntervalMin = time.Duration(t.HeartbeatIntervalMinMS) * time.Millisecond
	}
	if t.HeartbeatMultiplier > 0 {
		cfg.HeartbeatMultiplier = t.HeartbeatMultiplier
	}
	if t.HeartbeatIntervalMaxMS > 0 {
		cfg.HeartbeatIntervalMax = time.Duration(t.HeartbeatIntervalMaxMS) * time.Millisecond
	}
	if t.PingStaleMS > 0 {
		cfg.PingStale = time.Duration(t.PingStaleMS) * time.Millisecond
	}
	cfg.Password = t.Password
	return cfg
}

// Timeout returns webhook.timeout_ms as a Duration, defaulting to 2s if
// unset.
func (w WebhookConfig) Timeout() time.Duration {
	if w.TimeoutMS <= 0 {
		return 2 * time.Second
	}
	return time.Duration(w.TimeoutMS) * time.Millisecond
}

// EffectivePingURL returns ping_url if set, else falls back to url.
func (w WebhookConfig) EffectivePingURL() string {
	if w.PingURL != "" {
		return w.PingURL
	}
	return w.URL
}
