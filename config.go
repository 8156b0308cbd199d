package setstream

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
)

const (
	DefaultPoolMaxSize = 10
	DefaultDialTimeout = 5 * time.Second
)

// Config holds the Client configuration. Fields with an env tag can be loaded
// with ConfigFromEnv; the others are set in code.
type Config struct {
	// Servers is only read by ConfigFromEnv users; NewClient takes a Servers.
	Servers []string `env:"SETSTREAM_SERVERS" envSeparator:","`

	// MaxSize is the maximum number of connections per server.
	// Zero means DefaultPoolMaxSize.
	MaxSize int32 `env:"SETSTREAM_POOL_MAX_SIZE"`

	// ChannelPool selects NewChannelPool when Pool is nil.
	ChannelPool bool `env:"SETSTREAM_CHANNEL_POOL"`

	// MaxConnLifetime is the maximum duration a connection can be reused.
	// Zero means no limit.
	MaxConnLifetime time.Duration `env:"SETSTREAM_MAX_CONN_LIFETIME"`

	// MaxConnIdleTime is the maximum duration a connection can be idle before
	// being closed. Zero means no limit.
	MaxConnIdleTime time.Duration `env:"SETSTREAM_MAX_CONN_IDLE_TIME"`

	// HealthCheckInterval is how often idle connections are checked.
	// Zero disables health checks.
	HealthCheckInterval time.Duration `env:"SETSTREAM_HEALTH_CHECK_INTERVAL"`

	// DialTimeout bounds connection establishment when Dialer is nil.
	// Zero means DefaultDialTimeout.
	DialTimeout time.Duration `env:"SETSTREAM_DIAL_TIMEOUT"`

	// BatchConcurrency is the number of requests a batch keeps in flight.
	// Zero means DefaultConcurrency.
	BatchConcurrency int `env:"SETSTREAM_BATCH_CONCURRENCY"`

	// BatchPipeline is the maximum number of ready commands a batch sends to
	// the servers in one round trip. Zero means DefaultPipeline; 1 sends every
	// command on its own.
	BatchPipeline int `env:"SETSTREAM_BATCH_PIPELINE"`

	// CircuitBreaker enables a per-server breaker built with
	// NewCircuitBreakerConfig when NewCircuitBreaker is nil.
	CircuitBreaker            bool          `env:"SETSTREAM_CIRCUIT_BREAKER"`
	CircuitBreakerMaxRequests uint32        `env:"SETSTREAM_CIRCUIT_BREAKER_MAX_REQUESTS" envDefault:"1"`
	CircuitBreakerInterval    time.Duration `env:"SETSTREAM_CIRCUIT_BREAKER_INTERVAL" envDefault:"10s"`
	CircuitBreakerTimeout     time.Duration `env:"SETSTREAM_CIRCUIT_BREAKER_TIMEOUT" envDefault:"5s"`

	// Dialer is used to create new connections.
	// If nil, a net.Dialer with DialTimeout is used.
	Dialer *net.Dialer `env:"-"`

	// Logger receives client events. If nil, logging is disabled.
	Logger *zerolog.Logger `env:"-"`

	// Pool builds the connection pool of each server.
	// If nil, NewPuddlePool is used, or NewChannelPool with ChannelPool.
	Pool PoolFactory `env:"-"`

	// SelectServer picks which server owns a key.
	// If nil, DefaultServerSelector is used.
	SelectServer ServerSelector `env:"-"`

	// NewCircuitBreaker creates the circuit breaker of a server.
	// Called once per server address when its pool is created.
	NewCircuitBreaker func(addr string) *CircuitBreaker `env:"-"`

	// for testing purposes only
	constructor func(ctx context.Context) (*Connection, error)
}

// ConfigFromEnv loads a Config from SETSTREAM_* environment variables.
func ConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func (c Config) withDefaults() Config {
	if c.MaxSize <= 0 {
		c.MaxSize = DefaultPoolMaxSize
	}
	if c.BatchPipeline <= 0 {
		c.BatchPipeline = DefaultPipeline
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.Pool == nil && c.ChannelPool {
		c.Pool = NewChannelPool
	}
	if c.NewCircuitBreaker == nil && c.CircuitBreaker {
		c.NewCircuitBreaker = NewCircuitBreakerConfig(
			c.CircuitBreakerMaxRequests,
			c.CircuitBreakerInterval,
			c.CircuitBreakerTimeout,
			c.logger(),
		)
	}
	return c
}

func (c Config) dialer() *net.Dialer {
	if c.Dialer != nil {
		return c.Dialer
	}
	return &net.Dialer{Timeout: c.DialTimeout}
}

func (c Config) logger() zerolog.Logger {
	if c.Logger != nil {
		return *c.Logger
	}
	return zerolog.Nop()
}
