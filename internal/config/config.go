// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

// Config holds every knob of the client. Defaults come from the struct tags.
type Config struct {
	UserAgent   string `env:"SUBSTREAM_USER_AGENT,default=SubStream-Go/1.0"`
	APIBaseURL  string `env:"REDDIT_API_BASE_URL,default=https://oauth.reddit.com"`
	AuthBaseURL string `env:"REDDIT_AUTH_BASE_URL,default=https://www.reddit.com"`

	ClientID              string `env:"REDDIT_CLIENT_ID"`
	ClientSecret          string `env:"REDDIT_CLIENT_SECRET"`
	BootstrapRefreshToken string `env:"REDDIT_REFRESH_TOKEN"`

	ConnectTimeout time.Duration `env:"SUBSTREAM_CONNECT_TIMEOUT,default=10s"`
	ReadTimeout    time.Duration `env:"SUBSTREAM_READ_TIMEOUT,default=30s"`
	RequestTimeout time.Duration `env:"SUBSTREAM_REQUEST_TIMEOUT,default=30s"`
	RefreshTimeout time.Duration `env:"SUBSTREAM_REFRESH_TIMEOUT,default=30s"`

	SessionBackend   string `env:"SUBSTREAM_SESSION_BACKEND,default=file"`
	SessionNamespace string `env:"SUBSTREAM_SESSION_NAMESPACE,default=reddit_session"`
	SessionDir       string `env:"SUBSTREAM_SESSION_DIR,default=.substream"`

	RedisAddr      string `env:"REDIS_ADDR,default=localhost:6379"`
	RedisKeyPrefix string `env:"SUBSTREAM_REDIS_PREFIX,default=substream:"`

	CacheTTL time.Duration `env:"SUBSTREAM_CACHE_TTL,default=5m"`

	// RateLimit is requests per minute against the API host; 0 disables it.
	RateLimit int `env:"SUBSTREAM_RATE_LIMIT,default=60"`
	RateBurst int `env:"SUBSTREAM_RATE_BURST,default=10"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogPretty bool   `env:"LOG_PRETTY,default=false"`
}

// Load decodes the environment into a Config and validates it. A .env file
// in the working directory is read first; real environment variables win.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: read .env: %w", err)
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("config: decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	if c.ClientID == "" {
		return errors.New("config: REDDIT_CLIENT_ID is required")
	}
	if c.APIBaseURL == "" || c.AuthBaseURL == "" {
		return errors.New("config: API and auth base URLs are required")
	}
	switch c.SessionBackend {
	case BackendMemory, BackendFile, BackendRedis:
	default:
		return fmt.Errorf("config: unknown session backend %q", c.SessionBackend)
	}
	if c.RateLimit < 0 || c.RateBurst < 0 {
		return errors.New("config: rate limit and burst must not be negative")
	}
	if c.SessionNamespace == "" {
		return errors.New("config: session namespace is required")
	}
	return nil
}
