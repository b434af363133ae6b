package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// BookStore persists the position book. Positions are upserted on every
// mutation and reloaded at startup; closed trades are append-only.
type BookStore interface {
	UpsertPosition(ctx context.Context, p Position) error
	LoadPositions(ctx context.Context) ([]Position, error)
	AppendClosedTrade(ctx context.Context, ct ClosedTrade) error
	ListClosedTrades(ctx context.Context, limit int) ([]ClosedTrade, error)
}

// SeenStore is the dedup set over trade identities. Admit returns true the
// first time an identity is presented and false on every repeat. It must be
// safe for concurrent callers; the polling loop and the websocket feed share
// one instance.
type SeenStore interface {
	Admit(ctx context.Context, identity string) (bool, error)
}

// RateLimiter answers whether a client identified by key may make another
// request within the window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// Resolution is the settlement outcome of a market. Resolved is only set
// when a winning side could be determined.
type Resolution struct {
	Resolved    bool
	WinningSide Side
	// PayoutPerUnit is what one unit of the winning claim pays, typically 1.
	PayoutPerUnit decimal.Decimal
}
