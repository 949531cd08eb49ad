// Package config loads runtime settings from the environment, an optional
// .env file and an optional YAML overlay.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Session store backends.
const (
	SessionStoreFile   = "file"
	SessionStoreRedis  = "redis"
	SessionStoreMemory = "memory"
)

// Config holds every setting the app shell needs.
type Config struct {
	SupabaseURL       string `env:"SUPABASE_URL,required"`
	SupabaseAnonKey   string `env:"SUPABASE_ANON_KEY,required"`
	SupabaseJWTSecret string `env:"SUPABASE_JWT_SECRET"`

	ListenAddr     string   `env:"RENKONET_LISTEN_ADDR,default=127.0.0.1:8780"`
	AllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS,default=http://localhost:5173"`
	RateLimitRPS   float64  `env:"RATE_LIMIT_RPS,default=20"`
	RateLimitBurst int      `env:"RATE_LIMIT_BURST,default=40"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`

	SessionStore    string        `env:"SESSION_STORE,default=file"`
	SessionFile     string        `env:"SESSION_FILE,default=.renkonet/session.json"`
	RedisURL        string        `env:"REDIS_URL"`
	RedisSessionKey string        `env:"SESSION_REDIS_KEY,default=renkonet:session"`
	RefreshSchedule string        `env:"TOKEN_REFRESH_SCHEDULE,default=@every 30s"`
	RefreshLeeway   time.Duration `env:"TOKEN_REFRESH_LEEWAY,default=2m"`

	HTTPTimeout    time.Duration `env:"SUPABASE_HTTP_TIMEOUT,default=30s"`
	SearchDebounce time.Duration `env:"SEARCH_DEBOUNCE,default=300ms"`
	EnableRealtime bool          `env:"ENABLE_REALTIME,default=true"`

	// AdminAuditFile receives admin actions as JSON lines when set.
	AdminAuditFile string `env:"ADMIN_AUDIT_FILE"`

	// DatabaseURL is only used by cmd/migrate.
	DatabaseURL string `env:"DATABASE_URL"`

	ConfigFile string `env:"RENKONET_CONFIG"`
}

// Load reads the given .env files (missing files are ignored), decodes the
// environment and applies the YAML overlay named by RENKONET_CONFIG.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if cfg.ConfigFile != "" {
		if err := cfg.applyOverlayFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}

	cfg.SupabaseURL = strings.TrimRight(cfg.SupabaseURL, "/")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	u, err := url.Parse(c.SupabaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("SUPABASE_URL must be an http(s) URL, got %q", c.SupabaseURL)
	}
	if strings.TrimSpace(c.SupabaseAnonKey) == "" {
		return errors.New("SUPABASE_ANON_KEY is required")
	}
	switch c.SessionStore {
	case SessionStoreFile:
		if c.SessionFile == "" {
			return errors.New("SESSION_FILE is required for the file session store")
		}
	case SessionStoreRedis:
		if c.RedisURL == "" {
			return errors.New("REDIS_URL is required for the redis session store")
		}
	case SessionStoreMemory:
	default:
		return fmt.Errorf("unknown SESSION_STORE %q", c.SessionStore)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return errors.New("rate limit settings must be positive")
	}
	if c.SearchDebounce < 0 {
		return errors.New("SEARCH_DEBOUNCE must not be negative")
	}
	return nil
}

// RealtimeURL derives the websocket endpoint from the project URL.
func (c *Config) RealtimeURL() string {
	u, err := url.Parse(c.SupabaseURL)
	if err != nil {
		return ""
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/realtime/v1/websocket"
	q := u.Query()
	q.Set("apikey", c.SupabaseAnonKey)
	q.Set("vsn", "1.0.0")
	u.RawQuery = q.Encode()
	return u.String()
}
