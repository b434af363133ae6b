package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/polycopy/internal/book"
	"github.com/alanyoungcy/polycopy/internal/domain"
	"github.com/alanyoungcy/polycopy/internal/notify"
)

// ResolutionSource reports the settlement state of a market.
type ResolutionSource interface {
	Resolution(ctx context.Context, marketID string) (domain.Resolution, error)
}

// Resolver scans open positions on a fixed interval and settles any whose
// market has resolved. Unresolved markets are simply rechecked next cycle;
// this is retry-by-polling, there is no settlement push feed.
type Resolver struct {
	source   ResolutionSource
	book     *book.Book
	store    domain.BookStore // nil in watch mode
	notifier *notify.Notifier
	interval time.Duration
	logger   *slog.Logger
}

// NewResolver wires a Resolver. store may be nil to run without persistence.
func NewResolver(
	source ResolutionSource,
	bk *book.Book,
	store domain.BookStore,
	notifier *notify.Notifier,
	interval time.Duration,
	logger *slog.Logger,
) *Resolver {
	return &Resolver{
		source:   source,
		book:     bk,
		store:    store,
		notifier: notifier,
		interval: interval,
		logger:   logger.With(slog.String("component", "resolver")),
	}
}

// Run scans until ctx is cancelled.
func (r *Resolver) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("resolver stopped")
			return ctx.Err()
		case <-ticker.C:
			r.Scan(ctx)
		}
	}
}

// Scan checks every open position once. Per-market failures are logged and do
// not stop the sweep.
func (r *Resolver) Scan(ctx context.Context) {
	for _, pos := range r.book.OpenPositions() {
		if ctx.Err() != nil {
			return
		}

		res, err := r.source.Resolution(ctx, pos.Market)
		if err != nil {
			r.logger.Warn("resolution check failed",
				slog.String("market", pos.Market),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !res.Resolved {
			continue
		}
		if res.WinningSide == "" {
			// Settling without a winner would realize a wrong PnL for
			// good; leave the position open and recheck next cycle.
			r.logger.Warn("resolved market without winning side, skipping",
				slog.String("market", pos.Market),
			)
			continue
		}

		ct, err := r.book.Resolve(pos.Market, res.WinningSide, res.PayoutPerUnit, time.Now().UTC())
		if err != nil {
			if errors.Is(err, domain.ErrCorruptPosition) {
				r.logger.Error("position corrupt, market halted",
					slog.String("market", pos.Market),
					slog.String("error", err.Error()),
				)
			} else {
				r.logger.Error("resolve failed",
					slog.String("market", pos.Market),
					slog.String("error", err.Error()),
				)
			}
			continue
		}
		if ct == nil {
			// Closed by a flip between the scan snapshot and now.
			continue
		}

		r.logger.Info("position resolved",
			slog.String("market", ct.Market),
			slog.String("winning_side", string(res.WinningSide)),
			slog.String("pnl", ct.PnL.StringFixed(2)),
		)

		r.persist(ctx, ct)

		msg := fmt.Sprintf(
			"Market: %s\nSide: %s\nWinner: %s\nSize: $%s\nEntry Price: %s\nP/L: $%s",
			ct.Market, ct.Side, res.WinningSide, ct.Size, ct.EntryPrice, ct.PnL.StringFixed(2),
		)
		if err := r.notifier.Notify(ctx, notify.EventMarketResolved, "Position Resolved", msg); err != nil {
			r.logger.Warn("notify failed", slog.String("error", err.Error()))
		}
	}
}

func (r *Resolver) persist(ctx context.Context, ct *domain.ClosedTrade) {
	if r.store == nil {
		return
	}
	if pos, ok := r.book.Position(ct.Market); ok {
		if err := r.store.UpsertPosition(ctx, pos); err != nil {
			r.logger.Error("persist position failed",
				slog.String("market", ct.Market),
				slog.String("error", err.Error()),
			)
		}
	}
	if err := r.store.AppendClosedTrade(ctx, *ct); err != nil {
		r.logger.Error("persist closed trade failed",
			slog.String("market", ct.Market),
			slog.String("error", err.Error()),
		)
	}
}
