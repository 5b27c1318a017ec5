package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const defaultJWTSecret = "change-me-in-production"

const (
	EnvLocal       = "local"
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

const (
	StorageMemory   = "memory"
	StorageRedis    = "redis"
	StoragePostgres = "postgres"
)

type Config struct {
	Port           string        `env:"PORT" env-default:"8080"`
	Environment    string        `env:"ENVIRONMENT" env-default:"development"`
	LogLevel       string        `env:"LOG_LEVEL"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" env-default:"http://localhost:3000,http://localhost:5173"`
	JWTSecret      string        `env:"JWT_SECRET" env-default:"change-me-in-production"`
	JWTTTL         time.Duration `env:"JWT_TTL" env-default:"24h"`
	NonceTTL       time.Duration `env:"NONCE_TTL" env-default:"5m"`
	StorageDriver  string        `env:"STORAGE_DRIVER" env-default:"memory"`
	ICEServers     []string      `env:"ICE_SERVERS" env-default:"stun:stun.l.google.com:19302"`
	Redis          RedisConfig
	Database       DatabaseConfig
	Signaling      SignalingConfig
}

type RedisConfig struct {
	Host     string `env:"REDIS_HOST" env-default:"localhost"`
	Port     string `env:"REDIS_PORT" env-default:"6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" env-default:"0"`
}

type DatabaseConfig struct {
	DSN string `env:"DATABASE_DSN"`
}

// SignalingConfig bounds a single websocket session.
type SignalingConfig struct {
	MaxMessageBytes int64         `env:"SIGNAL_MAX_MESSAGE_BYTES" env-default:"65536"`
	SendBuffer      int           `env:"SIGNAL_SEND_BUFFER" env-default:"256"`
	PongWait        time.Duration `env:"SIGNAL_PONG_WAIT" env-default:"60s"`
	WriteWait       time.Duration `env:"SIGNAL_WRITE_WAIT" env-default:"10s"`
}

// PingPeriod must stay below PongWait so the peer answers before the read deadline.
func (s SignalingConfig) PingPeriod() time.Duration {
	return (s.PongWait * 9) / 10
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Environment {
	case EnvLocal, EnvDevelopment, EnvProduction:
	default:
		return fmt.Errorf("unknown environment %q", c.Environment)
	}

	if len(c.AllowedOrigins) == 0 {
		return errors.New("ALLOWED_ORIGINS must list at least one origin")
	}

	if c.Environment == EnvProduction && (c.JWTSecret == "" || c.JWTSecret == defaultJWTSecret) {
		return errors.New("JWT_SECRET must be set in production")
	}

	switch c.StorageDriver {
	case StorageMemory, StorageRedis:
	case StoragePostgres:
		if c.Database.DSN == "" {
			return errors.New("DATABASE_DSN is required for the postgres storage driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.StorageDriver)
	}

	if c.Signaling.SendBuffer <= 0 {
		return errors.New("SIGNAL_SEND_BUFFER must be positive")
	}
	if c.Signaling.PongWait <= 0 || c.Signaling.WriteWait <= 0 {
		return errors.New("signaling timeouts must be positive")
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}
