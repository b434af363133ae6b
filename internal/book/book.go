// Package book implements the position book: one copied position per market,
// mutated by incoming trade deltas and by market resolution, accumulating
// realized PnL and an append-only close history.
//
// Closing policy: an opposite-side fill closes the ENTIRE existing exposure
// and leaves the market flat. The incoming fill's own size is not netted and
// no opposite position is opened from the remainder. Partial netting would
// change the PnL arithmetic and is deliberately not mixed in.
package book

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polycopy/internal/domain"
)

// ApplyKind describes what a trade delta did to the book.
type ApplyKind string

const (
	ApplyOpened   ApplyKind = "opened"
	ApplyAveraged ApplyKind = "averaged"
	ApplyClosed   ApplyKind = "closed"
)

// ApplyResult reports the outcome of one Apply call. Closed is non-nil only
// when Kind is ApplyClosed.
type ApplyResult struct {
	Kind     ApplyKind
	Position domain.Position
	Closed   *domain.ClosedTrade
}

// Book holds all positions, the close history, and running totals. All
// methods are safe for concurrent use; each mutation is applied atomically
// with respect to its market key.
type Book struct {
	mu        sync.Mutex
	positions map[string]*domain.Position
	history   []domain.ClosedTrade
	realized  decimal.Decimal
	wins      int
	losses    int
	halted    map[string]bool // markets with detected state corruption
}

// New creates an empty Book.
func New() *Book {
	return &Book{
		positions: make(map[string]*domain.Position),
		halted:    make(map[string]bool),
	}
}

// Apply mutates the position for market with a copy-sized trade delta.
// copySize and price must both be positive; the ingest path enforces this
// before calling.
//
// Transitions: flat -> open (new exposure), same side -> average-in
// (volume-weighted AvgPrice), opposite side -> full close realizing PnL.
func (b *Book) Apply(market string, side domain.Side, price, copySize decimal.Decimal, at time.Time) (ApplyResult, error) {
	if !price.IsPositive() || !copySize.IsPositive() {
		return ApplyResult{}, fmt.Errorf("book: apply %s: non-positive price or size", market)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.halted[market] {
		return ApplyResult{}, fmt.Errorf("book: apply %s: %w", market, domain.ErrCorruptPosition)
	}

	pos, ok := b.positions[market]
	if !ok {
		pos = &domain.Position{Market: market}
		b.positions[market] = pos
	}

	if pos.Size.IsNegative() {
		b.halted[market] = true
		return ApplyResult{}, fmt.Errorf("book: apply %s: negative size %s: %w",
			market, pos.Size, domain.ErrCorruptPosition)
	}

	pos.LastPrice = price
	pos.UpdatedAt = at

	// Flat -> open.
	if !pos.IsOpen() {
		pos.Side = side
		pos.Size = copySize
		pos.AvgPrice = price
		pos.OpenedAt = at
		return ApplyResult{Kind: ApplyOpened, Position: *pos}, nil
	}

	// Same side -> average in.
	if pos.Side == side {
		newSize := pos.Size.Add(copySize)
		pos.AvgPrice = pos.AvgPrice.Mul(pos.Size).Add(price.Mul(copySize)).Div(newSize)
		pos.Size = newSize
		return ApplyResult{Kind: ApplyAveraged, Position: *pos}, nil
	}

	// Opposite side -> close the entire exposure at the fill price.
	ct := b.closeLocked(pos, price, domain.CloseReasonFlip, at)
	return ApplyResult{Kind: ApplyClosed, Position: *pos, Closed: &ct}, nil
}

// Resolve settles market with the given winning side and payout per unit of
// the winning claim. A flat or unknown market returns (nil, nil).
//
// The held claim is marked to its settlement price: payout when the buy side
// won, zero when it lost. The directional close math then yields
// (payout-avg)*size for a winning BUY, -avg*size for a losing BUY (the stake
// is sunk), and -(payout-avg)*size for a losing SELL.
func (b *Book) Resolve(market string, winning domain.Side, payout decimal.Decimal, at time.Time) (*domain.ClosedTrade, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.halted[market] {
		return nil, fmt.Errorf("book: resolve %s: %w", market, domain.ErrCorruptPosition)
	}

	pos, ok := b.positions[market]
	if !ok || !pos.IsOpen() {
		return nil, nil
	}

	settle := decimal.Zero
	if winning == domain.SideBuy {
		settle = payout
	}

	ct := b.closeLocked(pos, settle, domain.CloseReasonResolution, at)
	return &ct, nil
}

// closeLocked realizes PnL on the full exposure at exitPrice and flattens the
// position. Caller holds b.mu.
func (b *Book) closeLocked(pos *domain.Position, exitPrice decimal.Decimal, reason domain.CloseReason, at time.Time) domain.ClosedTrade {
	diff := exitPrice.Sub(pos.AvgPrice)
	if pos.Side == domain.SideSell {
		diff = diff.Neg()
	}
	pnl := diff.Mul(pos.Size)

	ct := domain.ClosedTrade{
		ID:         uuid.NewString(),
		Market:     pos.Market,
		Side:       pos.Side,
		Size:       pos.Size,
		EntryPrice: pos.AvgPrice,
		ExitPrice:  exitPrice,
		PnL:        pnl,
		Reason:     reason,
		ClosedAt:   at,
	}

	pos.RealizedPnL = pos.RealizedPnL.Add(pnl)
	pos.Size = decimal.Zero
	pos.UpdatedAt = at

	b.realized = b.realized.Add(pnl)
	if pnl.IsNegative() {
		b.losses++
	} else {
		b.wins++
	}
	b.history = append(b.history, ct)

	return ct
}

// Position returns a copy of the position for market.
func (b *Book) Position(market string) (domain.Position, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	pos, ok := b.positions[market]
	if !ok {
		return domain.Position{}, false
	}
	return *pos, true
}

// OpenPositions returns copies of all positions with exposure.
func (b *Book) OpenPositions() []domain.Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.Position
	for _, pos := range b.positions {
		if pos.IsOpen() {
			out = append(out, *pos)
		}
	}
	return out
}

// AllPositions returns copies of every position, flat records included.
func (b *Book) AllPositions() []domain.Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Position, 0, len(b.positions))
	for _, pos := range b.positions {
		out = append(out, *pos)
	}
	return out
}

// History returns the most recent limit closed trades, oldest first. A
// non-positive limit returns the full history.
func (b *Book) History(limit int) []domain.ClosedTrade {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.ClosedTrade, n)
	copy(out, b.history[len(b.history)-n:])
	return out
}

// Totals returns the aggregate realized PnL and win/loss counters.
func (b *Book) Totals() domain.Totals {
	b.mu.Lock()
	defer b.mu.Unlock()
	open := 0
	for _, pos := range b.positions {
		if pos.IsOpen() {
			open++
		}
	}
	return domain.Totals{
		RealizedPnL: b.realized,
		WinCount:    b.wins,
		LossCount:   b.losses,
		OpenCount:   open,
	}
}

// Restore seeds the book from persisted state. It replaces the current
// contents and recomputes totals from the given history.
func (b *Book) Restore(positions []domain.Position, history []domain.ClosedTrade) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.positions = make(map[string]*domain.Position, len(positions))
	for i := range positions {
		p := positions[i]
		b.positions[p.Market] = &p
	}

	b.history = append([]domain.ClosedTrade(nil), history...)
	b.realized = decimal.Zero
	b.wins, b.losses = 0, 0
	for _, ct := range history {
		b.realized = b.realized.Add(ct.PnL)
		if ct.PnL.IsNegative() {
			b.losses++
		} else {
			b.wins++
		}
	}
}
