package config

import (
	"os"
	"strconv"
	"time"

	pstrings "magbot/pkg/platform/strings"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	DatabaseURL   string
	JWTSigningKey string
	JWTIssuer     string
	LogLevel      string
	LogFormat     string

	Redis     RedisConfig
	Kafka     KafkaConfig
	Registry  RegistryConfig
	RateLimit RateLimitConfig
}

// RedisConfig configures the credential binding cache. An empty URL leaves
// the cache disabled.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CacheTTL     time.Duration
}

// KafkaConfig configures the audit outbox relay. No brokers disables it.
type KafkaConfig struct {
	Brokers       []string
	AuditTopic    string
	RelayInterval time.Duration
	RelayBatch    int
}

// RegistryConfig locates deployed registry instances.
type RegistryConfig struct {
	Network        string
	ChainID        uint64
	AddressBookDir string
	// BootstrapAdmin, when set, makes the server deploy the registry pair at
	// start if the address book has no entry yet.
	BootstrapAdmin string
}

// RateLimitConfig throttles API requests per client IP. Limits are requests
// per Window.
type RateLimitConfig struct {
	Enabled    bool
	ReadLimit  int
	WriteLimit int
	Window     time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:          getEnv("MAGBOT_ADDR", ":8080"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		JWTSigningKey: jwtSigningKey,
		JWTIssuer:     getEnv("JWT_ISSUER", "magbot"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "json"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			CacheTTL:     getDuration("CREDENTIAL_CACHE_TTL", 5*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers:       pstrings.SplitList(os.Getenv("KAFKA_BROKERS")),
			AuditTopic:    getEnv("KAFKA_AUDIT_TOPIC", "magbot.audit"),
			RelayInterval: getDuration("KAFKA_RELAY_INTERVAL", time.Second),
			RelayBatch:    getInt("KAFKA_RELAY_BATCH", 100),
		},
		Registry: RegistryConfig{
			Network:        getEnv("MAGBOT_NETWORK", "local"),
			ChainID:        uint64(getInt("MAGBOT_CHAIN_ID", 31337)),
			AddressBookDir: getEnv("MAGBOT_ADDRESS_BOOK_DIR", "deployments"),
			BootstrapAdmin: os.Getenv("MAGBOT_BOOTSTRAP_ADMIN"),
		},
		RateLimit: RateLimitConfig{
			Enabled:    os.Getenv("RATE_LIMIT_DISABLED") != "true",
			ReadLimit:  getInt("RATE_LIMIT_READ", 300),
			WriteLimit: getInt("RATE_LIMIT_WRITE", 60),
			Window:     getDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}
