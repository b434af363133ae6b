package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POLYCOPY_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POLYCOPY_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Venue ──
	setStr(&cfg.Venue.DataHost, "POLYCOPY_VENUE_DATA_HOST")
	setStr(&cfg.Venue.WsHost, "POLYCOPY_VENUE_WS_HOST")
	setDuration(&cfg.Venue.HTTPTimeout, "POLYCOPY_VENUE_HTTP_TIMEOUT")

	// ── Tracker ──
	setStr(&cfg.Tracker.Wallet, "POLYCOPY_TRACKER_WALLET")
	setStr(&cfg.Tracker.ScaleMode, "POLYCOPY_TRACKER_SCALE_MODE")
	setFloat64(&cfg.Tracker.ScaleValue, "POLYCOPY_TRACKER_SCALE_VALUE")
	setFloat64(&cfg.Tracker.MinCopyUSDC, "POLYCOPY_TRACKER_MIN_COPY_USDC")
	setDuration(&cfg.Tracker.PollInterval, "POLYCOPY_TRACKER_POLL_INTERVAL")
	setInt(&cfg.Tracker.FetchLimit, "POLYCOPY_TRACKER_FETCH_LIMIT")
	setDuration(&cfg.Tracker.SeenTTL, "POLYCOPY_TRACKER_SEEN_TTL")

	// ── Resolver ──
	setDuration(&cfg.Resolver.Interval, "POLYCOPY_RESOLVER_INTERVAL")

	// ── Feed ──
	setBool(&cfg.Feed.Enabled, "POLYCOPY_FEED_ENABLED")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "POLYCOPY_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "POLYCOPY_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POLYCOPY_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POLYCOPY_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POLYCOPY_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POLYCOPY_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "POLYCOPY_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "POLYCOPY_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "POLYCOPY_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "POLYCOPY_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "POLYCOPY_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYCOPY_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYCOPY_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POLYCOPY_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POLYCOPY_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POLYCOPY_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "POLYCOPY_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POLYCOPY_S3_REGION")
	setStr(&cfg.S3.Bucket, "POLYCOPY_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POLYCOPY_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLYCOPY_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "POLYCOPY_S3_FORCE_PATH_STYLE")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "POLYCOPY_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "POLYCOPY_ARCHIVE_INTERVAL")
	setStr(&cfg.Archive.Prefix, "POLYCOPY_ARCHIVE_PREFIX")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "POLYCOPY_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "POLYCOPY_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "POLYCOPY_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "POLYCOPY_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimit, "POLYCOPY_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "POLYCOPY_SERVER_RATE_WINDOW")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "POLYCOPY_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POLYCOPY_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "POLYCOPY_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "POLYCOPY_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "POLYCOPY_MODE")
	setStr(&cfg.LogLevel, "POLYCOPY_LOG_LEVEL")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
