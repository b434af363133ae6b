// Package domain defines the core types shared across the copy-trade mirror:
// observed trade records, copied positions, closed-trade history, and the
// store interfaces their persistence is written against.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Side is the directional label of a trade or position.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// TradeRecord is one observed fill by the tracked wallet, as reported by the
// venue data API. Price is in venue-native units (0..1 for prediction
// markets); Size is the trader's notional in USDC.
type TradeRecord struct {
	ID        string
	Market    string
	Side      Side
	Price     decimal.Decimal
	Size      decimal.Decimal
	Wallet    string
	Timestamp time.Time
}

// Identity returns the stable dedup token for the record: the venue trade ID
// when present, otherwise a hash over the record's observable attributes. The
// fallback can collide for two identical fills in the same instant, so
// ingestion logs when it is used.
func (t TradeRecord) Identity() string {
	if t.ID != "" {
		return t.ID
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%s|%d",
		t.Market, t.Side, t.Price.String(), t.Size.String(), t.Timestamp.UnixNano(),
	)))
	return hex.EncodeToString(sum[:16])
}

// HasVenueID reports whether the venue supplied a unique trade ID.
func (t TradeRecord) HasVenueID() bool {
	return t.ID != ""
}

// Usable reports whether the record carries enough data to copy. Zero price
// or size means the feed gave us an unreliable row; such records are skipped
// without being marked seen, so they are re-evaluated if they reappear.
func (t TradeRecord) Usable() bool {
	return t.Price.IsPositive() && t.Size.IsPositive()
}
