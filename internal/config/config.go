// Package config defines the top-level configuration for the copy-trade
// mirror and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by POLYCOPY_* environment
// variables.
type Config struct {
	Venue    VenueConfig    `toml:"venue"`
	Tracker  TrackerConfig  `toml:"tracker"`
	Resolver ResolverConfig `toml:"resolver"`
	Feed     FeedConfig     `toml:"feed"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Archive  ArchiveConfig  `toml:"archive"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// VenueConfig holds the Polymarket API endpoints.
type VenueConfig struct {
	DataHost    string   `toml:"data_host"`
	WsHost      string   `toml:"ws_host"`
	HTTPTimeout duration `toml:"http_timeout"`
}

// TrackerConfig holds what to copy and how to size it.
type TrackerConfig struct {
	Wallet       string   `toml:"wallet"`
	ScaleMode    string   `toml:"scale_mode"` // "percent" or "fixed"
	ScaleValue   float64  `toml:"scale_value"`
	MinCopyUSDC  float64  `toml:"min_copy_usdc"`
	PollInterval duration `toml:"poll_interval"`
	FetchLimit   int      `toml:"fetch_limit"`
	// SeenTTL bounds dedup memory; zero retains identities forever.
	SeenTTL duration `toml:"seen_ttl"`
}

// ResolverConfig holds the settlement scan cadence.
type ResolverConfig struct {
	Interval duration `toml:"interval"`
}

// FeedConfig enables the realtime websocket trade feed.
type FeedConfig struct {
	Enabled bool `toml:"enabled"`
}

// PostgresConfig holds PostgreSQL connection parameters. An empty DSN with an
// empty host disables persistence entirely.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// Enabled reports whether any connection target is configured.
func (p PostgresConfig) Enabled() bool {
	return strings.TrimSpace(p.DSN) != "" || strings.TrimSpace(p.Host) != ""
}

// RedisConfig holds Redis connection parameters. When Addr is empty the
// in-memory seen-set is used instead.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ArchiveConfig controls the cold-storage snapshot loop.
type ArchiveConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval duration `toml:"interval"`
	Prefix   string   `toml:"prefix"`
}

// ServerConfig holds the HTTP command surface parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"` // empty disables auth
	CORSOrigins []string `toml:"cors_origins"`
	// RateLimit caps requests per client per RateWindow; zero disables it.
	// Requires Redis.
	RateLimit  int      `toml:"rate_limit"`
	RateWindow duration `toml:"rate_window"`
}

// NotifyConfig holds notification channel credentials and the event filter.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration wraps time.Duration so TOML can decode strings like "30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

var validModes = map[string]bool{
	"mirror": true,
	"watch":  true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Venue: VenueConfig{
			DataHost:    "https://data-api.polymarket.com",
			WsHost:      "wss://ws-subscriptions-clob.polymarket.com",
			HTTPTimeout: duration{10 * time.Second},
		},
		Tracker: TrackerConfig{
			ScaleMode:    "percent",
			ScaleValue:   10,
			MinCopyUSDC:  1,
			PollInterval: duration{5 * time.Second},
			FetchLimit:   50,
			SeenTTL:      duration{24 * time.Hour},
		},
		Resolver: ResolverConfig{
			Interval: duration{time.Minute},
		},
		Postgres: PostgresConfig{
			Port:          5432,
			Database:      "polycopy",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Region:         "us-east-1",
			Bucket:         "polycopy-data",
			ForcePathStyle: true,
		},
		Archive: ArchiveConfig{
			Interval: duration{time.Hour},
			Prefix:   "snapshots",
		},
		Server: ServerConfig{
			Enabled:    true,
			Port:       8080,
			RateWindow: duration{time.Second},
		},
		Mode:     "mirror",
		LogLevel: "info",
	}
}

// Validate checks the configuration for internal consistency. It returns all
// problems at once so operators can fix a config file in one pass.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: mirror, watch)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Venue.DataHost == "" {
		errs = append(errs, "venue: data_host must not be empty")
	}
	if c.Feed.Enabled && c.Venue.WsHost == "" {
		errs = append(errs, "venue: ws_host must not be empty when the feed is enabled")
	}

	if c.Tracker.Wallet != "" && !common.IsHexAddress(c.Tracker.Wallet) {
		errs = append(errs, fmt.Sprintf("tracker: wallet %q is not a hex address", c.Tracker.Wallet))
	}
	switch c.Tracker.ScaleMode {
	case "percent":
		if c.Tracker.ScaleValue <= 0 || c.Tracker.ScaleValue > 100 {
			errs = append(errs, fmt.Sprintf("tracker: percent scale_value must be in (0,100], got %v", c.Tracker.ScaleValue))
		}
	case "fixed":
		if c.Tracker.ScaleValue <= 0 {
			errs = append(errs, fmt.Sprintf("tracker: fixed scale_value must be positive, got %v", c.Tracker.ScaleValue))
		}
	default:
		errs = append(errs, fmt.Sprintf("tracker: unknown scale_mode %q (valid: percent, fixed)", c.Tracker.ScaleMode))
	}
	if c.Tracker.PollInterval.Duration <= 0 {
		errs = append(errs, "tracker: poll_interval must be positive")
	}
	if c.Tracker.FetchLimit <= 0 {
		errs = append(errs, "tracker: fetch_limit must be positive")
	}

	if c.Resolver.Interval.Duration <= 0 {
		errs = append(errs, "resolver: interval must be positive")
	}

	if c.Archive.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "archive: s3 bucket must be set when archival is enabled")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be positive")
		}
	}

	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		errs = append(errs, fmt.Sprintf("server: port %d out of range", c.Server.Port))
	}
	if c.Server.RateLimit > 0 && c.Redis.Addr == "" {
		errs = append(errs, "server: rate_limit requires redis")
	}
	if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
		errs = append(errs, "server: rate_window must be positive when rate_limit is set")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Redacted returns a copy of cfg with secrets replaced by "***", safe for
// logging the active configuration.
func Redacted(cfg *Config) Config {
	out := *cfg
	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)
	redact(&out.Redis.Password)
	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)
	redact(&out.Server.APIKey)
	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)
	return out
}

func redact(s *string) {
	if *s != "" {
		*s = "***"
	}
}
