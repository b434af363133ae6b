package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Position is the copied exposure on one market. There is at most one
// position per market key; a market whose size has returned to zero stays in
// the book as a flat record carrying its accumulated realized PnL.
//
// AvgPrice and Side are only meaningful while Size > 0; display code must
// treat them as stale on a flat position.
type Position struct {
	Market      string          `json:"market"`
	Side        Side            `json:"side"`
	Size        decimal.Decimal `json:"size"`
	AvgPrice    decimal.Decimal `json:"avg_price"`
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	LastPrice   decimal.Decimal `json:"last_price"`
	OpenedAt    time.Time       `json:"opened_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// IsOpen reports whether the position carries exposure.
func (p Position) IsOpen() bool {
	return p.Size.IsPositive()
}

// UnrealizedPnL values the open exposure against the last price observed for
// the market. Zero for flat positions or when no price has been seen yet.
func (p Position) UnrealizedPnL() decimal.Decimal {
	if !p.IsOpen() || p.LastPrice.IsZero() {
		return decimal.Zero
	}
	diff := p.LastPrice.Sub(p.AvgPrice)
	if p.Side == SideSell {
		diff = diff.Neg()
	}
	return diff.Mul(p.Size)
}

// CloseReason records what ended a position.
type CloseReason string

const (
	CloseReasonFlip       CloseReason = "flip"       // opposite-side fill
	CloseReasonResolution CloseReason = "resolution" // market settled
)

// ClosedTrade is one entry in the append-only close history.
type ClosedTrade struct {
	ID         string          `json:"id"`
	Market     string          `json:"market"`
	Side       Side            `json:"side"`
	Size       decimal.Decimal `json:"size"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	ExitPrice  decimal.Decimal `json:"exit_price"`
	PnL        decimal.Decimal `json:"pnl"`
	Reason     CloseReason     `json:"reason"`
	ClosedAt   time.Time       `json:"closed_at"`
}

// Totals is the aggregate PnL summary served by the command surface.
type Totals struct {
	RealizedPnL decimal.Decimal `json:"realized_pnl"`
	WinCount    int             `json:"win_count"`
	LossCount   int             `json:"loss_count"`
	OpenCount   int             `json:"open_count"`
}
