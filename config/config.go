// Package config centralises the numeric/env tunables that the original
// implementation exposed as a single module of constants (see design note
// in SPEC_FULL.md §9). A Config is built once at start-up via New, and
// passed explicitly to every component that needs a timeout or limit.
package config

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Default timeouts and limits (§5 of the spec).
const (
	DefaultResponseTimeout   = 5 * time.Second
	DefaultNonceExpire       = 5 * time.Minute
	DefaultTokenTTL          = 5 * time.Minute
	DefaultTunnelAnnounce    = 5 * time.Minute
	DefaultRouterClean       = time.Hour
	DefaultReentryIdle       = 10 * time.Minute
	DefaultShardSize         = 8 << 20 // 8 MiB
	DefaultTransferRetries   = 3
	DefaultRateLimitPerMin   = 120
	DefaultTunnelerBucketCap = 64
	DefaultMaxTunnels        = 16
)

// Env variable names, per spec §6.
const (
	EnvBridgeURL     = "STORJ_BRIDGE"
	EnvAllowLoopback = "STORJ_ALLOW_LOOPBACK"
	EnvDataDir       = "STORJ_DATA_DIR"
	EnvListenAddress = "STORJ_LISTEN_ADDRESS"
	EnvPublicWSURL   = "STORJ_PUBLIC_WS_URL"
)

// Config aggregates every tunable named across the spec. Zero-value
// Config is invalid; always construct via New or Load.
type Config struct {
	// Network identity.
	ListenAddress string
	BridgeURL     string
	AllowLoopback bool
	DataDir       string

	// Timeouts.
	ResponseTimeout time.Duration
	NonceExpire     time.Duration
	TokenTTL        time.Duration
	TunnelAnnounce  time.Duration
	RouterClean     time.Duration
	ReentryIdle     time.Duration

	// Shard/contract policy.
	ShardSize       int64
	TransferRetries int
	RateLimitPerMin int

	TunnelerBucketCap int

	// MaxTunnels bounds how many relay slots this node offers other
	// peers when acting as a tunneler (§4.8). PublicWSURL is the base
	// websocket URL this node advertises in OPEN_TUNNEL responses; a
	// node behind its own NAT with nothing to relay through leaves it
	// empty.
	MaxTunnels  int
	PublicWSURL string

	// LogLevel is a slog-style level name ("debug", "info", "warn", "error").
	LogLevel string
}

// defaults returns a Config populated entirely with package defaults.
func defaults() Config {
	return Config{
		ListenAddress:     ":4000",
		AllowLoopback:     false,
		DataDir:           "./data",
		ResponseTimeout:   DefaultResponseTimeout,
		NonceExpire:       DefaultNonceExpire,
		TokenTTL:          DefaultTokenTTL,
		TunnelAnnounce:    DefaultTunnelAnnounce,
		RouterClean:       DefaultRouterClean,
		ReentryIdle:       DefaultReentryIdle,
		ShardSize:         DefaultShardSize,
		TransferRetries:   DefaultTransferRetries,
		RateLimitPerMin:   DefaultRateLimitPerMin,
		TunnelerBucketCap: DefaultTunnelerBucketCap,
		MaxTunnels:        DefaultMaxTunnels,
		LogLevel:          "info",
	}
}

// Option mutates a Config under construction.
type Option func(*Config)

// WithListenAddress overrides the address the node advertises and listens
// its data channel/RPC transport on.
func WithListenAddress(addr string) Option {
	return func(c *Config) { c.ListenAddress = addr }
}

// WithBridgeURL overrides the bridge REST endpoint.
func WithBridgeURL(url string) Option {
	return func(c *Config) { c.BridgeURL = url }
}

// WithDataDir overrides the on-disk shard/metadata directory.
func WithDataDir(dir string) Option {
	return func(c *Config) { c.DataDir = dir }
}

// WithPublicWSURL overrides the base websocket URL this node advertises
// to peers it tunnels for.
func WithPublicWSURL(url string) Option {
	return func(c *Config) { c.PublicWSURL = url }
}

// New builds a Config from defaults, environment variables, and finally
// the given Options (highest precedence).
func New(opts ...Option) Config {
	c := defaults()
	if v := os.Getenv(EnvBridgeURL); v != "" {
		c.BridgeURL = v
	}
	if v := os.Getenv(EnvAllowLoopback); v == "1" || v == "true" {
		c.AllowLoopback = true
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv(EnvListenAddress); v != "" {
		c.ListenAddress = v
	}
	if v := os.Getenv(EnvPublicWSURL); v != "" {
		c.PublicWSURL = v
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Load reads a TOML file at path into a Config seeded with New()'s
// defaults/env, so a config file need only set the fields it overrides.
func Load(path string, opts ...Option) (Config, error) {
	c := New(opts...)
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return Config{}, err
	}
	return c, nil
}
