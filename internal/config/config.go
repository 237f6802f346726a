package config

import (
	"fmt"
	"time"

	"callsync-core/pkg/env"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Call      CallConfig
	Reconnect ReconnectConfig
	Init      InitConfig
	Redis     RedisConfig
	Postgres  PostgresConfig
	Signaling SignalingConfig
	Log       LogConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port        int
	Environment string // development, staging, production
	ServiceName string
}

// CallConfig holds call session and navigation persistence configuration
type CallConfig struct {
	// MaxBackgroundDuration is the ceiling on background time before an
	// active call is treated as abandoned
	MaxBackgroundDuration time.Duration
	// InviteTTL bounds invite rehydration after a cold start
	InviteTTL time.Duration
	// NavStateTTL applies to ordinary persisted screen state
	NavStateTTL time.Duration
	// AuthRouteTTL applies to persisted auth-flow screen state
	AuthRouteTTL time.Duration
}

// ReconnectConfig holds the reconnection backoff schedule
type ReconnectConfig struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
	JitterRatio       float64
	NetworkAware      bool
	MinQuality        int
}

// InitConfig holds initialization coordinator configuration
type InitConfig struct {
	Timeout  time.Duration
	Cooldown time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	PoolSize int
	Timeout  time.Duration
}

// PostgresConfig holds call-history database configuration
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// SignalingConfig holds the signaling transport endpoint
type SignalingConfig struct {
	URL          string
	PingInterval time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level    string // debug, info, warn, error
	Format   string // json, text
	Output   string // stdout, file
	FilePath string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:        env.GetInt("PORT", 8080),
			Environment: env.GetString("ENV", "development"),
			ServiceName: env.GetString("SERVICE_NAME", "callsync"),
		},
		Call: CallConfig{
			MaxBackgroundDuration: env.GetDuration("CALL_MAX_BACKGROUND_DURATION", 5*time.Minute),
			InviteTTL:             env.GetDuration("CALL_INVITE_TTL", 2*time.Minute),
			NavStateTTL:           env.GetDuration("NAV_STATE_TTL", 24*time.Hour),
			AuthRouteTTL:          env.GetDuration("NAV_AUTH_ROUTE_TTL", 5*time.Minute),
		},
		Reconnect: ReconnectConfig{
			MaxAttempts:       env.GetInt("RECONNECT_MAX_ATTEMPTS", 5),
			BaseDelay:         env.GetDuration("RECONNECT_BASE_DELAY", time.Second),
			MaxDelay:          env.GetDuration("RECONNECT_MAX_DELAY", 30*time.Second),
			BackoffMultiplier: env.GetFloat("RECONNECT_BACKOFF_MULTIPLIER", 2.0),
			JitterRatio:       env.GetFloat("RECONNECT_JITTER_RATIO", 0.25),
			NetworkAware:      env.GetBool("RECONNECT_NETWORK_AWARE", true),
			MinQuality:        env.GetInt("RECONNECT_MIN_QUALITY", 1),
		},
		Init: InitConfig{
			Timeout:  env.GetDuration("INIT_TIMEOUT", 10*time.Second),
			Cooldown: env.GetDuration("INIT_TIMEOUT_COOLDOWN", 5*time.Second),
		},
		Redis: RedisConfig{
			Host:     env.GetString("REDIS_HOST", "localhost"),
			Port:     env.GetInt("REDIS_PORT", 6379),
			Password: env.GetStringFromFile("REDIS_PASSWORD", ""),
			DB:       env.GetInt("REDIS_DB", 0),
			PoolSize: env.GetInt("REDIS_POOL_SIZE", 10),
			Timeout:  env.GetDuration("REDIS_TIMEOUT", 5*time.Second),
		},
		Postgres: PostgresConfig{
			Host:     env.GetString("DB_HOST", "localhost"),
			Port:     env.GetInt("DB_PORT", 5432),
			User:     env.GetString("DB_USER", "callsync"),
			Password: env.GetStringFromFile("DB_PASSWORD", ""),
			Database: env.GetString("DB_NAME", "callsync"),
			SSLMode:  env.GetString("DB_SSL_MODE", "disable"),
		},
		Signaling: SignalingConfig{
			URL:          env.GetString("SIGNALING_URL", ""),
			PingInterval: env.GetDuration("SIGNALING_PING_INTERVAL", 15*time.Second),
		},
		Log: LogConfig{
			Level:    env.GetString("LOG_LEVEL", "info"),
			Format:   env.GetString("LOG_FORMAT", "json"),
			Output:   env.GetString("LOG_OUTPUT", "stdout"),
			FilePath: env.GetString("LOG_FILE_PATH", "/logs/callsync.log"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Call.MaxBackgroundDuration <= 0 {
		return fmt.Errorf("CALL_MAX_BACKGROUND_DURATION must be positive")
	}
	if c.Reconnect.MaxAttempts <= 0 {
		return fmt.Errorf("RECONNECT_MAX_ATTEMPTS must be positive")
	}
	if c.Reconnect.BackoffMultiplier < 1 {
		return fmt.Errorf("RECONNECT_BACKOFF_MULTIPLIER must be at least 1")
	}
	if c.Reconnect.JitterRatio < 0 || c.Reconnect.JitterRatio > 1 {
		return fmt.Errorf("RECONNECT_JITTER_RATIO must be in [0, 1]")
	}
	if c.Reconnect.MaxDelay < c.Reconnect.BaseDelay {
		return fmt.Errorf("RECONNECT_MAX_DELAY must not be below RECONNECT_BASE_DELAY")
	}
	return nil
}

// PostgresDSN builds the pgx connection string
func (c *PostgresConfig) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// RedisAddr builds the Redis address
func (c *RedisConfig) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
