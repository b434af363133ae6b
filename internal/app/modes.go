package app

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/polycopy/internal/domain"
	"github.com/alanyoungcy/polycopy/internal/feed"
	"github.com/alanyoungcy/polycopy/internal/pipeline"
	"github.com/alanyoungcy/polycopy/internal/server"
	"github.com/alanyoungcy/polycopy/internal/server/handler"
)

// MirrorMode runs the full pipeline with persistence: every book mutation is
// written through to Postgres and the book is restored from it on restart.
func (a *App) MirrorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting mirror mode")
	return a.runPipeline(ctx, deps, deps.BookStore)
}

// WatchMode runs the same pipeline without persistence. The book lives only
// in memory and starts empty on every run; useful for sizing up a trader
// before committing to mirroring them.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting watch mode")
	return a.runPipeline(ctx, deps, nil)
}

// runPipeline assembles and runs the poller, resolver, and optional loops
// (websocket feed, archiver, dedup sweeper) plus the HTTP command surface.
// It blocks until ctx is cancelled or a component fails.
func (a *App) runPipeline(ctx context.Context, deps *Dependencies, store domain.BookStore) error {
	g, ctx := errgroup.WithContext(ctx)

	poller := pipeline.NewPoller(
		deps.Data,
		deps.Tracker,
		deps.Book,
		deps.Seen,
		store,
		deps.Notifier,
		a.cfg.Tracker.FetchLimit,
		a.cfg.Tracker.PollInterval.Duration,
		a.logger,
	)

	resolver := pipeline.NewResolver(
		deps.Data,
		deps.Book,
		store,
		deps.Notifier,
		a.cfg.Resolver.Interval.Duration,
		a.logger,
	)

	var archiver *pipeline.Archiver
	if deps.BlobWriter != nil {
		archiver = pipeline.NewArchiver(
			deps.Book,
			deps.BlobWriter,
			a.cfg.Archive.Interval.Duration,
			a.cfg.Archive.Prefix,
			a.logger,
		)
	}

	var extra []pipeline.Runner

	// The in-memory seen set needs a periodic sweep; the Redis one expires
	// keys by itself.
	if dedup, ok := deps.Seen.(*pipeline.Dedup); ok {
		extra = append(extra, dedup)
	}

	if a.cfg.Feed.Enabled {
		userFeed := feed.NewUserFeed(
			userWSURL(a.cfg.Venue.WsHost),
			deps.Tracker,
			poller,
			a.logger,
		)
		extra = append(extra, userFeed)
	}

	orch := pipeline.NewOrchestrator(poller, resolver, archiver, a.logger, extra...)
	g.Go(func() error {
		return orch.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps)
	}

	return g.Wait()
}

// startHTTPServer registers the command surface goroutines on g: one serving
// requests, one shutting the server down when ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	handlers := server.Handlers{
		Health:  handler.NewHealthHandler(a.cfg.Mode, a.logger),
		Book:    handler.NewBookHandler(deps.Book, a.logger),
		Tracker: handler.NewTrackerHandler(deps.Tracker, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimiter: deps.RateLimiter,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, a.logger)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("server shutdown", slog.String("error", err.Error()))
		}
		return nil
	})
}

// userWSURL derives the user-channel endpoint from the configured WS host.
func userWSURL(wsHost string) string {
	return strings.TrimRight(wsHost, "/") + "/ws/user"
}
