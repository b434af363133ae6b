package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ScaleMode selects how a source trade's notional maps to a copy notional.
type ScaleMode string

const (
	// ScaleModePercent copies value percent of the trader's size.
	ScaleModePercent ScaleMode = "percent"
	// ScaleModeFixed copies a constant notional regardless of trader size.
	ScaleModeFixed ScaleMode = "fixed"
)

var oneHundred = decimal.NewFromInt(100)

// ScalingConfig is the active sizing policy. It is read on every ingested
// trade; changing it never rescales historical positions.
type ScalingConfig struct {
	Mode  ScaleMode       `json:"mode"`
	Value decimal.Decimal `json:"value"`
}

// Validate rejects unknown modes and non-positive values.
func (c ScalingConfig) Validate() error {
	switch c.Mode {
	case ScaleModePercent, ScaleModeFixed:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalidScaling, c.Mode)
	}
	if !c.Value.IsPositive() {
		return fmt.Errorf("%w: value must be > 0, got %s", ErrInvalidScaling, c.Value)
	}
	if c.Mode == ScaleModePercent && c.Value.GreaterThan(oneHundred) {
		return fmt.Errorf("%w: percent value %s exceeds 100", ErrInvalidScaling, c.Value)
	}
	return nil
}

// CopySize derives the copy notional for a source trade size.
func (c ScalingConfig) CopySize(tradeSize decimal.Decimal) decimal.Decimal {
	if c.Mode == ScaleModeFixed {
		return c.Value
	}
	return tradeSize.Mul(c.Value).Div(oneHundred)
}
