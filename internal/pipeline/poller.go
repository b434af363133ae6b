// Package pipeline contains the long-running loops of the mirror: the trade
// poller, the resolution scanner, and the cold-storage archiver, coordinated
// by the Orchestrator.
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
	"github.com/alanyoungcy/polycopy/internal/service"
)

// TradeSource fetches the latest trade window for a wallet. The window may be
// empty, unordered, and overlap previous calls.
type TradeSource interface {
	Trades(ctx context.Context, wallet string, limit int) ([]domain.TradeRecord, error)
}

// Poller drives the fetch -> dedup -> scale -> apply path on a fixed
// interval. The websocket feed shares its Ingest method, so both delivery
// paths hit the same seen-set and book.
type Poller struct {
	source   TradeSource
	tracker  *service.Tracker
	book     *book.Book
	seen     domain.SeenStore
	store    domain.BookStore // nil in watch mode
	notifier *notify.Notifier
	limit    int
	interval time.Duration
	logger   *slog.Logger
}

// NewPoller wires a Poller. store may be nil to run without persistence.
func NewPoller(
	source TradeSource,
	tracker *service.Tracker,
	bk *book.Book,
	seen domain.SeenStore,
	store domain.BookStore,
	notifier *notify.Notifier,
	limit int,
	interval time.Duration,
	logger *slog.Logger,
) *Poller {
	return &Poller{
		source:   source,
		tracker:  tracker,
		book:     bk,
		seen:     seen,
		store:    store,
		notifier: notifier,
		limit:    limit,
		interval: interval,
		logger:   logger.With(slog.String("component", "poller")),
	}
}

// Run polls until ctx is cancelled. A failed cycle is logged and the cadence
// resumes on the next tick; nothing short of cancellation stops the loop.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped")
			return ctx.Err()
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	wallet, err := p.tracker.Wallet()
	if err != nil {
		if errors.Is(err, domain.ErrNoTrackedWallet) {
			p.logger.Debug("no tracked wallet, skipping cycle")
			return
		}
		p.logger.Error("tracker unavailable", slog.String("error", err.Error()))
		return
	}

	records, err := p.source.Trades(ctx, wallet, p.limit)
	if err != nil {
		// Transient by taxonomy: log and let the next tick retry.
		p.logger.Warn("trade fetch failed",
			slog.String("wallet", wallet),
			slog.String("error", err.Error()),
		)
		return
	}

	copied := 0
	for _, rec := range records {
		if ctx.Err() != nil {
			return
		}
		if p.Ingest(ctx, rec) {
			copied++
		}
	}
	if copied > 0 {
		p.logger.Info("cycle complete",
			slog.Int("fetched", len(records)),
			slog.Int("copied", copied),
		)
	}
}

// Ingest runs one record through the full dedup/scale/apply path and reports
// whether it mutated the book. Safe for concurrent callers.
//
// Records with zero price or size are skipped WITHOUT being marked seen, so a
// row the venue later backfills is re-evaluated. Records below the copy-size
// floor are marked seen first: the decision not to copy them is final.
func (p *Poller) Ingest(ctx context.Context, rec domain.TradeRecord) bool {
	if !rec.Usable() {
		p.logger.Debug("skipping unusable record",
			slog.String("market", rec.Market),
			slog.String("id", rec.ID),
		)
		return false
	}

	if !rec.HasVenueID() {
		p.logger.Debug("record has no venue trade id, using derived identity",
			slog.String("market", rec.Market),
		)
	}

	admitted, err := p.seen.Admit(ctx, rec.Identity())
	if err != nil {
		p.logger.Error("seen-set unavailable, record not ingested",
			slog.String("identity", rec.Identity()),
			slog.String("error", err.Error()),
		)
		return false
	}
	if !admitted {
		return false
	}

	copySize, ok := p.tracker.CopySize(rec.Size)
	if !ok {
		p.logger.Debug("copy size below floor, skipping",
			slog.String("market", rec.Market),
			slog.String("copy_size", copySize.String()),
		)
		return false
	}

	at := rec.Timestamp
	if at.IsZero() {
		at = time.Now().UTC()
	}

	res, err := p.book.Apply(rec.Market, rec.Side, rec.Price, copySize, at)
	if err != nil {
		if errors.Is(err, domain.ErrCorruptPosition) {
			p.logger.Error("position corrupt, market halted",
				slog.String("market", rec.Market),
				slog.String("error", err.Error()),
			)
		} else {
			p.logger.Error("apply failed",
				slog.String("market", rec.Market),
				slog.String("error", err.Error()),
			)
		}
		return false
	}

	p.persist(ctx, res)
	p.announce(ctx, rec, copySize.String(), res)
	return true
}

func (p *Poller) persist(ctx context.Context, res book.ApplyResult) {
	if p.store == nil {
		return
	}
	if err := p.store.UpsertPosition(ctx, res.Position); err != nil {
		p.logger.Error("persist position failed",
			slog.String("market", res.Position.Market),
			slog.String("error", err.Error()),
		)
	}
	if res.Closed != nil {
		if err := p.store.AppendClosedTrade(ctx, *res.Closed); err != nil {
			p.logger.Error("persist closed trade failed",
				slog.String("market", res.Closed.Market),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (p *Poller) announce(ctx context.Context, rec domain.TradeRecord, copySize string, res book.ApplyResult) {
	msg := fmt.Sprintf(
		"Market: %s\nSide: %s\nTrader Size: $%s\nYour Size: $%s\nPrice: %s",
		rec.Market, rec.Side, rec.Size, copySize, rec.Price,
	)
	if err := p.notifier.Notify(ctx, notify.EventTradeCopied, "Copied Trade", msg); err != nil {
		p.logger.Warn("notify failed", slog.String("error", err.Error()))
	}

	if res.Closed == nil {
		return
	}
	ct := res.Closed
	msg = fmt.Sprintf(
		"Market: %s\nSide: %s\nSize: $%s\nEntry Price: %s\nFinal Price: %s\nP/L: $%s",
		ct.Market, ct.Side, ct.Size, ct.EntryPrice, ct.ExitPrice, ct.PnL.StringFixed(2),
	)
	if err := p.notifier.Notify(ctx, notify.EventPositionClosed, "Position Closed", msg); err != nil {
		p.logger.Warn("notify failed", slog.String("error", err.Error()))
	}
}
