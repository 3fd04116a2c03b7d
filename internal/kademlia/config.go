package kademlia

import (
	"fmt"
	"time"
)

// Config holds every tunable of a node. It is assembled by the external CLI
// collaborator (cmd/dhtnode) and handed to NewNode; the core never parses
// flags or environment variables itself.
type Config struct {
	// ListenAddr is the UDP address to bind, e.g. "0.0.0.0:9001". Required.
	ListenAddr string

	// BootstrapEndpoints lists optional "ip:port" seeds. NewNode does not
	// read it; seeds reach the node only through Node.Bootstrap.
	BootstrapEndpoints []string

	// K is the bucket size / replication width. Default 20.
	K int

	// Alpha is the lookup concurrency. Default 3.
	Alpha int

	// RequestTimeout is the per-RPC deadline. Default 5s.
	RequestTimeout time.Duration

	// RefreshInterval is the maintenance cadence. Default 5m.
	RefreshInterval time.Duration

	// LivenessWindow is the alive-contact cutoff. Default 15m.
	LivenessWindow time.Duration

	// MaxRetries is the retry budget for Transport.SendWithRetries, which
	// takes it as an argument; Node's own RPCs use Send and do not retry.
	// Default 3.
	MaxRetries int

	// MetricsAddr, if non-empty, is the "host:port" to serve Prometheus
	// metrics on. Leave empty to disable the metrics HTTP endpoint.
	MetricsAddr string

	// LogLevel controls the structured logger's verbosity: "debug", "info",
	// "warn", or "error". Default "info".
	LogLevel string
}

// DefaultConfig returns a Config with every documented default filled in;
// callers still must set ListenAddr.
func DefaultConfig() Config {
	return Config{
		K:               20,
		Alpha:           3,
		RequestTimeout:  5 * time.Second,
		RefreshInterval: 5 * time.Minute,
		LivenessWindow:  15 * time.Minute,
		MaxRetries:      3,
		LogLevel:        "info",
	}
}

// Validate fills in zero-valued defaults and rejects a configuration that
// cannot be used to start a node. A validation failure is fatal at startup
// (exit code 2).
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("%w: listen_port is required", ErrConfig)
	}
	if c.K <= 0 {
		c.K = 20
	}
	if c.Alpha <= 0 {
		c.Alpha = 3
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 5 * time.Second
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = 5 * time.Minute
	}
	if c.LivenessWindow <= 0 {
		c.LivenessWindow = 15 * time.Minute
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	switch c.LogLevel {
	case "":
		c.LogLevel = "info"
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: unknown log_level %q", ErrConfig, c.LogLevel)
	}
	return nil
}
