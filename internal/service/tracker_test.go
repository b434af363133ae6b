package service

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polycopy/internal/domain"
)

func newTestTracker(minCopy string) *Tracker {
	min, _ := decimal.NewFromString(minCopy)
	return NewTracker("",
		domain.ScalingConfig{Mode: domain.ScaleModePercent, Value: decimal.NewFromInt(10)},
		min, slog.Default())
}

func TestSetWallet(t *testing.T) {
	tr := newTestTracker("0")

	if _, err := tr.Wallet(); !errors.Is(err, domain.ErrNoTrackedWallet) {
		t.Fatalf("empty tracker err = %v, want ErrNoTrackedWallet", err)
	}

	if err := tr.SetWallet("not-an-address"); !errors.Is(err, domain.ErrInvalidAddress) {
		t.Fatalf("bad address err = %v, want ErrInvalidAddress", err)
	}
	if _, err := tr.Wallet(); !errors.Is(err, domain.ErrNoTrackedWallet) {
		t.Fatal("failed SetWallet mutated state")
	}

	if err := tr.SetWallet("0x56687bf447db6ffa42ffe2204a05edaa20f55839"); err != nil {
		t.Fatalf("valid address rejected: %v", err)
	}
	w, err := tr.Wallet()
	if err != nil {
		t.Fatalf("Wallet() = %v", err)
	}
	if w == "" || w[:2] != "0x" {
		t.Errorf("wallet = %q, want checksummed hex address", w)
	}
}

func TestSetScalingRejectsInvalid(t *testing.T) {
	tr := newTestTracker("0")

	err := tr.SetScaling(domain.ScalingConfig{Mode: "bogus", Value: decimal.NewFromInt(1)})
	if !errors.Is(err, domain.ErrInvalidScaling) {
		t.Fatalf("err = %v, want ErrInvalidScaling", err)
	}
	// Prior policy still active.
	if got := tr.Scaling().Mode; got != domain.ScaleModePercent {
		t.Errorf("mode = %s after rejected update, want percent", got)
	}
}

func TestCopySizeMinimumFloor(t *testing.T) {
	tr := newTestTracker("1.0") // 10% scaling, $1 floor

	if _, ok := tr.CopySize(decimal.NewFromInt(5)); ok {
		t.Error("copy of $0.50 passed the $1 floor")
	}
	size, ok := tr.CopySize(decimal.NewFromInt(100))
	if !ok {
		t.Fatal("copy of $10 blocked by $1 floor")
	}
	if !size.Equal(decimal.NewFromInt(10)) {
		t.Errorf("copy size = %s, want 10", size)
	}
}

func TestCopySizeFixedMode(t *testing.T) {
	tr := newTestTracker("0")
	if err := tr.SetScaling(domain.ScalingConfig{Mode: domain.ScaleModeFixed, Value: decimal.NewFromInt(5)}); err != nil {
		t.Fatal(err)
	}

	for _, tradeSize := range []int64{1, 100, 100000} {
		size, ok := tr.CopySize(decimal.NewFromInt(tradeSize))
		if !ok || !size.Equal(decimal.NewFromInt(5)) {
			t.Errorf("CopySize(%d) = %s ok=%v, want 5 true", tradeSize, size, ok)
		}
	}
}
