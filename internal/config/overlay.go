package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// overlay holds the non-secret settings that may come from YAML. A value is
// applied only when the matching environment variable is unset.
type overlay struct {
	ListenAddr      *string   `yaml:"listen_addr"`
	AllowedOrigins  []string  `yaml:"allowed_origins"`
	RateLimitRPS    *float64  `yaml:"rate_limit_rps"`
	RateLimitBurst  *int      `yaml:"rate_limit_burst"`
	LogLevel        *string   `yaml:"log_level"`
	LogFormat       *string   `yaml:"log_format"`
	SessionStore    *string   `yaml:"session_store"`
	SessionFile     *string   `yaml:"session_file"`
	RefreshSchedule *string   `yaml:"token_refresh_schedule"`
	RefreshLeeway   *duration `yaml:"token_refresh_leeway"`
	SearchDebounce  *duration `yaml:"search_debounce"`
	EnableRealtime  *bool     `yaml:"enable_realtime"`
}

type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = duration(parsed)
	return nil
}

func (c *Config) applyOverlayFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	var o overlay
	if err := yaml.Unmarshal(data, &o); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	c.applyOverlay(&o)
	return nil
}

func (c *Config) applyOverlay(o *overlay) {
	setString(&c.ListenAddr, o.ListenAddr, "RENKONET_LISTEN_ADDR")
	setString(&c.LogLevel, o.LogLevel, "LOG_LEVEL")
	setString(&c.LogFormat, o.LogFormat, "LOG_FORMAT")
	setString(&c.SessionStore, o.SessionStore, "SESSION_STORE")
	setString(&c.SessionFile, o.SessionFile, "SESSION_FILE")
	setString(&c.RefreshSchedule, o.RefreshSchedule, "TOKEN_REFRESH_SCHEDULE")

	if len(o.AllowedOrigins) > 0 && !envSet("CORS_ALLOWED_ORIGINS") {
		c.AllowedOrigins = o.AllowedOrigins
	}
	if o.RateLimitRPS != nil && !envSet("RATE_LIMIT_RPS") {
		c.RateLimitRPS = *o.RateLimitRPS
	}
	if o.RateLimitBurst != nil && !envSet("RATE_LIMIT_BURST") {
		c.RateLimitBurst = *o.RateLimitBurst
	}
	if o.RefreshLeeway != nil && !envSet("TOKEN_REFRESH_LEEWAY") {
		c.RefreshLeeway = time.Duration(*o.RefreshLeeway)
	}
	if o.SearchDebounce != nil && !envSet("SEARCH_DEBOUNCE") {
		c.SearchDebounce = time.Duration(*o.SearchDebounce)
	}
	if o.EnableRealtime != nil && !envSet("ENABLE_REALTIME") {
		c.EnableRealtime = *o.EnableRealtime
	}
}

func setString(dst *string, v *string, env string) {
	if v != nil && !envSet(env) {
		*dst = *v
	}
}

func envSet(key string) bool {
	_, ok := os.LookupEnv(key)
	return ok
}
