package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	s3blob "github.com/alanyoungcy/polycopy/internal/blob/s3"
	"github.com/alanyoungcy/polycopy/internal/book"
	"github.com/alanyoungcy/polycopy/internal/cache/redis"
	"github.com/alanyoungcy/polycopy/internal/config"
	"github.com/alanyoungcy/polycopy/internal/domain"
	"github.com/alanyoungcy/polycopy/internal/notify"
	"github.com/alanyoungcy/polycopy/internal/pipeline"
	"github.com/alanyoungcy/polycopy/internal/platform/polymarket"
	"github.com/alanyoungcy/polycopy/internal/service"
	"github.com/alanyoungcy/polycopy/internal/store/postgres"
)

// Dependencies bundles everything the application modes need to operate. It
// is constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Book    *book.Book
	Tracker *service.Tracker
	Data    *polymarket.DataClient

	// Seen is the dedup set: Redis-backed when Redis is configured,
	// otherwise the in-memory set.
	Seen domain.SeenStore

	// BookStore is nil in watch mode and when Postgres is not configured.
	BookStore domain.BookStore

	// BlobWriter is nil unless archival is enabled.
	BlobWriter pipeline.BlobWriter

	// RateLimiter is nil without Redis.
	RateLimiter domain.RateLimiter

	Notifier *notify.Notifier
}

// needsPostgres returns true for modes that persist the book.
func needsPostgres(mode string) bool {
	return mode == "mirror"
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that
// should be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config) (*Dependencies, func(), error) {
	logger := slog.Default()

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Book: book.New(),
		Data: polymarket.NewDataClient(cfg.Venue.DataHost, cfg.Venue.HTTPTimeout.Duration),
	}

	// --- Tracker ---
	wallet := cfg.Tracker.Wallet
	if wallet != "" {
		// Config validation already checked the hex form; store checksummed.
		wallet = common.HexToAddress(wallet).Hex()
	}
	scaling := domain.ScalingConfig{
		Mode:  domain.ScaleMode(cfg.Tracker.ScaleMode),
		Value: decimal.NewFromFloat(cfg.Tracker.ScaleValue),
	}
	minCopy := decimal.NewFromFloat(cfg.Tracker.MinCopyUSDC)
	deps.Tracker = service.NewTracker(wallet, scaling, minCopy, logger)

	// --- PostgreSQL (only for modes that persist) ---
	if needsPostgres(cfg.Mode) && cfg.Postgres.Enabled() {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		store := postgres.NewBookStore(pgClient.Pool())
		deps.BookStore = store

		// Rehydrate the in-memory book so restarts do not double-open
		// positions or lose realized PnL.
		positions, err := store.LoadPositions(ctx)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: load positions: %w", err)
		}
		// Full history: totals (realized PnL, win/loss counts) are
		// recomputed from it on restore.
		history, err := store.ListClosedTrades(ctx, 0)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: load closed trades: %w", err)
		}
		deps.Book.Restore(positions, history)
		logger.InfoContext(ctx, "book restored",
			slog.Int("positions", len(positions)),
			slog.Int("closed_trades", len(history)),
		)
	}

	// --- Redis (optional; shared dedup set and API rate limiting) ---
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Seen = redis.NewSeenSet(redisClient, "", cfg.Tracker.SeenTTL.Duration)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
	} else {
		deps.Seen = pipeline.NewDedup(cfg.Tracker.SeenTTL.Duration)
	}

	// --- S3 blob storage (only when archival is enabled) ---
	if cfg.Archive.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.BlobWriter = s3blob.NewWriter(s3Client)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}
