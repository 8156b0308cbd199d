package setstream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("SETSTREAM_SERVERS", "10.0.0.1:6379,10.0.0.2:6379")
	t.Setenv("SETSTREAM_POOL_MAX_SIZE", "4")
	t.Setenv("SETSTREAM_MAX_CONN_LIFETIME", "5m")
	t.Setenv("SETSTREAM_HEALTH_CHECK_INTERVAL", "30s")
	t.Setenv("SETSTREAM_BATCH_CONCURRENCY", "32")
	t.Setenv("SETSTREAM_BATCH_PIPELINE", "64")
	t.Setenv("SETSTREAM_CIRCUIT_BREAKER", "true")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, []string{"10.0.0.1:6379", "10.0.0.2:6379"}, cfg.Servers)
	assert.Equal(t, int32(4), cfg.MaxSize)
	assert.Equal(t, 5*time.Minute, cfg.MaxConnLifetime)
	assert.Equal(t, 30*time.Second, cfg.HealthCheckInterval)
	assert.Equal(t, 32, cfg.BatchConcurrency)
	assert.Equal(t, 64, cfg.BatchPipeline)
	assert.True(t, cfg.CircuitBreaker)
	assert.Equal(t, uint32(1), cfg.CircuitBreakerMaxRequests)
	assert.Equal(t, 10*time.Second, cfg.CircuitBreakerInterval)
	assert.Equal(t, 5*time.Second, cfg.CircuitBreakerTimeout)
}

func TestConfigFromEnv_Invalid(t *testing.T) {
	t.Setenv("SETSTREAM_DIAL_TIMEOUT", "soon")

	_, err := ConfigFromEnv()
	assert.ErrorContains(t, err, "parse env")
}

func TestConfig_WithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()

	assert.Equal(t, int32(DefaultPoolMaxSize), cfg.MaxSize)
	assert.Equal(t, DefaultDialTimeout, cfg.DialTimeout)
	assert.Equal(t, DefaultPipeline, cfg.BatchPipeline)
	assert.Nil(t, cfg.NewCircuitBreaker)
	assert.Nil(t, cfg.Pool)
	assert.Equal(t, DefaultDialTimeout, cfg.dialer().Timeout)
}

func TestConfig_WithDefaultsCircuitBreaker(t *testing.T) {
	cfg := Config{
		CircuitBreaker:            true,
		CircuitBreakerMaxRequests: 2,
		CircuitBreakerInterval:    time.Second,
		CircuitBreakerTimeout:     time.Second,
	}.withDefaults()

	require.NotNil(t, cfg.NewCircuitBreaker)
	cb := cfg.NewCircuitBreaker("127.0.0.1:6379")
	assert.Equal(t, "127.0.0.1:6379", cb.Name())
}

func TestConfig_WithDefaultsChannelPool(t *testing.T) {
	t.Setenv("SETSTREAM_CHANNEL_POOL", "true")

	cfg, err := ConfigFromEnv()
	require.NoError(t, err)

	cfg = cfg.withDefaults()
	require.NotNil(t, cfg.Pool)

	pool, err := cfg.Pool(mockConstructor(), 1)
	require.NoError(t, err)
	defer pool.Close()
	assert.IsType(t, &channelPool{}, pool)
}
