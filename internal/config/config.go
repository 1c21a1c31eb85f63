package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
	Env      string `env:"APP_ENV" envDefault:"prod"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	DBDriver    string `env:"DB_DRIVER" envDefault:"postgres"`
	DatabaseURL string `env:"DATABASE_URL"`

	// Redis is optional; without it the queue lives in process memory.
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	JWTSecret string `env:"JWT_SECRET"`

	ImageHostURL string `env:"IMAGE_HOST_URL" envDefault:"https://api.imgbb.com/1/upload"`
	ImageHostKey string `env:"IMAGE_HOST_KEY"`

	MapPool      []string      `env:"MAP_POOL" envSeparator:"," envDefault:"Sandstone,Province,Rust,Zone 7,Dune,Breeze,Hanami"`
	RatingDelta  int           `env:"RATING_DELTA" envDefault:"25"`
	LobbyTTL     time.Duration `env:"LOBBY_TTL" envDefault:"30m"`
	MatchTTL     time.Duration `env:"MATCH_TTL" envDefault:"3h"`
	SweepEvery   time.Duration `env:"SWEEP_INTERVAL" envDefault:"15s"`
	BotBanDelay  time.Duration `env:"BOT_BAN_DELAY" envDefault:"1500ms"`
	OTelEndpoint string        `env:"OTEL_ENDPOINT"`
	OTelEnabled  bool          `env:"OTEL_ENABLED" envDefault:"true"`

	// ReconcileEvery is how often approved squad results missing their
	// economy update are retried.
	ReconcileEvery time.Duration `env:"RECONCILE_INTERVAL" envDefault:"1m"`
	// WSOrigins are extra host patterns allowed to open websockets.
	WSOrigins []string `env:"WS_ORIGINS" envSeparator:","`
}

// Load reads .env (when present) and the process environment into a Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	for i, m := range cfg.MapPool {
		cfg.MapPool[i] = strings.TrimSpace(m)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("missing JWT_SECRET")
	}
	switch c.DBDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("missing DATABASE_URL")
		}
	case "sqlite":
		if c.DatabaseURL == "" {
			c.DatabaseURL = "standoff.db"
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	if len(c.MapPool) < 2 {
		return errors.New("MAP_POOL needs at least two maps")
	}
	if c.RatingDelta <= 0 {
		return errors.New("RATING_DELTA must be positive")
	}
	if c.SweepEvery <= 0 {
		return errors.New("SWEEP_INTERVAL must be positive")
	}
	if c.ReconcileEvery <= 0 {
		return errors.New("RECONCILE_INTERVAL must be positive")
	}
	return nil
}

func (c *Config) Redacted() string {
	secret := "[set]"
	if c.JWTSecret == "" {
		secret = "[empty]"
	}
	redis := c.RedisAddr
	if redis == "" {
		redis = "[memory queue]"
	}
	return fmt.Sprintf(
		"addr=%s env=%s db=%s redis=%s maps=%d delta=%d lobbyTTL=%s jwt=%s",
		c.HTTPAddr, c.Env, c.DBDriver, redis, len(c.MapPool), c.RatingDelta, c.LobbyTTL, secret,
	)
}
