package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{
		"MAGBOT_ADDR", "JWT_SIGNING_KEY", "KAFKA_BROKERS", "REDIS_URL",
		"MAGBOT_CHAIN_ID", "CREDENTIAL_CACHE_TTL", "MAGBOT_BOOTSTRAP_ADMIN",
		"RATE_LIMIT_DISABLED", "RATE_LIMIT_READ", "RATE_LIMIT_WRITE", "RATE_LIMIT_WINDOW",
	} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()

	assert.Equal(t, ":8080", cfg.Addr)
	assert.NotEmpty(t, cfg.JWTSigningKey)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Empty(t, cfg.Redis.URL)
	assert.Equal(t, uint64(31337), cfg.Registry.ChainID)
	assert.Equal(t, 5*time.Minute, cfg.Redis.CacheTTL)
	assert.Empty(t, cfg.Registry.BootstrapAdmin)
	assert.Equal(t, RateLimitConfig{Enabled: true, ReadLimit: 300, WriteLimit: 60, Window: time.Minute}, cfg.RateLimit)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("MAGBOT_ADDR", ":9090")
	t.Setenv("KAFKA_BROKERS", " broker-1:9092, broker-2:9092,broker-1:9092,, ")
	t.Setenv("MAGBOT_CHAIN_ID", "84532")
	t.Setenv("MAGBOT_NETWORK", "base-sepolia")
	t.Setenv("CREDENTIAL_CACHE_TTL", "30s")
	t.Setenv("REDIS_POOL_SIZE", "not-a-number")
	t.Setenv("RATE_LIMIT_DISABLED", "true")
	t.Setenv("RATE_LIMIT_WRITE", "5")
	t.Setenv("RATE_LIMIT_WINDOW", "10s")

	cfg := FromEnv()

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, uint64(84532), cfg.Registry.ChainID)
	assert.Equal(t, "base-sepolia", cfg.Registry.Network)
	assert.Equal(t, 30*time.Second, cfg.Redis.CacheTTL)
	assert.Equal(t, 10, cfg.Redis.PoolSize, "invalid values fall back to defaults")
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 5, cfg.RateLimit.WriteLimit)
	assert.Equal(t, 10*time.Second, cfg.RateLimit.Window)
}
