// Package service holds the mutable runtime settings of the mirror: which
// wallet is being copied and how observed sizes scale into copy sizes.
package service

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polycopy/internal/domain"
)

// Tracker owns the tracked wallet address and the active scaling policy.
// Both are read on every ingested trade and written through the command
// surface; all access is serialized here so neither the poller nor handlers
// ever see a half-applied update.
type Tracker struct {
	mu      sync.RWMutex
	wallet  string
	scaling domain.ScalingConfig
	minCopy decimal.Decimal
	logger  *slog.Logger
}

// NewTracker creates a Tracker with the given initial settings. wallet may be
// empty (nothing is polled until one is set); scaling must already be valid.
func NewTracker(wallet string, scaling domain.ScalingConfig, minCopy decimal.Decimal, logger *slog.Logger) *Tracker {
	return &Tracker{
		wallet:  wallet,
		scaling: scaling,
		minCopy: minCopy,
		logger:  logger.With(slog.String("component", "tracker")),
	}
}

// Wallet returns the currently tracked address, or ErrNoTrackedWallet when
// none is configured.
func (t *Tracker) Wallet() (string, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.wallet == "" {
		return "", domain.ErrNoTrackedWallet
	}
	return t.wallet, nil
}

// SetWallet validates and swaps the tracked address. Prior state is unchanged
// on error.
func (t *Tracker) SetWallet(addr string) error {
	if !common.IsHexAddress(addr) {
		return fmt.Errorf("%w: %q", domain.ErrInvalidAddress, addr)
	}
	checksummed := common.HexToAddress(addr).Hex()

	t.mu.Lock()
	prev := t.wallet
	t.wallet = checksummed
	t.mu.Unlock()

	t.logger.Info("tracked wallet changed",
		slog.String("previous", prev),
		slog.String("wallet", checksummed),
	)
	return nil
}

// Scaling returns the active scaling policy.
func (t *Tracker) Scaling() domain.ScalingConfig {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.scaling
}

// SetScaling validates and swaps the scaling policy. Historical positions are
// never rescaled.
func (t *Tracker) SetScaling(cfg domain.ScalingConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	t.mu.Lock()
	t.scaling = cfg
	t.mu.Unlock()

	t.logger.Info("scaling changed",
		slog.String("mode", string(cfg.Mode)),
		slog.String("value", cfg.Value.String()),
	)
	return nil
}

// CopySize applies the active policy to a source trade size. The second
// return is false when the scaled copy falls below the configured minimum and
// the trade should be skipped.
func (t *Tracker) CopySize(tradeSize decimal.Decimal) (decimal.Decimal, bool) {
	t.mu.RLock()
	cfg := t.scaling
	min := t.minCopy
	t.mu.RUnlock()

	size := cfg.CopySize(tradeSize)
	if !size.IsPositive() {
		return decimal.Zero, false
	}
	if min.IsPositive() && size.LessThan(min) {
		return size, false
	}
	return size, true
}
