package book

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polycopy/internal/domain"
)

var testTime = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func approxEqual(t *testing.T, got decimal.Decimal, want string, label string) {
	t.Helper()
	w := dec(want)
	tol := dec("0.0001")
	if got.Sub(w).Abs().GreaterThan(tol) {
		t.Errorf("%s = %s, want %s", label, got, want)
	}
}

func TestApplyOpenAndAverageIn(t *testing.T) {
	b := New()

	res, err := b.Apply("M1", domain.SideBuy, dec("0.40"), dec("10"), testTime)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if res.Kind != ApplyOpened {
		t.Fatalf("kind = %s, want opened", res.Kind)
	}
	approxEqual(t, res.Position.Size, "10", "size after open")
	approxEqual(t, res.Position.AvgPrice, "0.40", "avg after open")

	res, err = b.Apply("M1", domain.SideBuy, dec("0.60"), dec("5"), testTime)
	if err != nil {
		t.Fatalf("average-in: %v", err)
	}
	if res.Kind != ApplyAveraged {
		t.Fatalf("kind = %s, want averaged", res.Kind)
	}
	approxEqual(t, res.Position.Size, "15", "size after average-in")
	// (0.40*10 + 0.60*5) / 15
	approxEqual(t, res.Position.AvgPrice, "0.466667", "avg after average-in")
}

func TestApplySameSideSequenceWeightedAverage(t *testing.T) {
	fills := []struct {
		price, size string
	}{
		{"0.20", "4"},
		{"0.25", "6"},
		{"0.50", "10"},
	}

	b := New()
	totalCost := decimal.Zero
	totalSize := decimal.Zero
	for _, f := range fills {
		price, size := dec(f.price), dec(f.size)
		if _, err := b.Apply("M1", domain.SideBuy, price, size, testTime); err != nil {
			t.Fatalf("apply %s@%s: %v", f.size, f.price, err)
		}
		totalCost = totalCost.Add(price.Mul(size))
		totalSize = totalSize.Add(size)
	}

	pos, ok := b.Position("M1")
	if !ok {
		t.Fatal("position missing")
	}
	approxEqual(t, pos.Size, totalSize.String(), "cumulative size")
	approxEqual(t, pos.AvgPrice, totalCost.Div(totalSize).String(), "weighted avg price")
}

func TestApplyOppositeSideFullClose(t *testing.T) {
	b := New()
	mustApply(t, b, "M1", domain.SideBuy, "0.40", "10")
	mustApply(t, b, "M1", domain.SideBuy, "0.60", "5")

	res, err := b.Apply("M1", domain.SideSell, dec("0.70"), dec("2"), testTime)
	if err != nil {
		t.Fatalf("flip close: %v", err)
	}
	if res.Kind != ApplyClosed {
		t.Fatalf("kind = %s, want closed", res.Kind)
	}
	if res.Closed == nil {
		t.Fatal("closed trade missing")
	}
	// (0.70 - 0.466667) * 15
	approxEqual(t, res.Closed.PnL, "3.50", "flip PnL")
	if res.Closed.Reason != domain.CloseReasonFlip {
		t.Errorf("reason = %s, want flip", res.Closed.Reason)
	}
	if res.Position.IsOpen() {
		t.Errorf("position still open after flip, size %s", res.Position.Size)
	}
	approxEqual(t, res.Position.RealizedPnL, "3.50", "realized pnl")

	if got := len(b.History(0)); got != 1 {
		t.Errorf("history length = %d, want 1", got)
	}
}

func TestApplySellSidePnLSign(t *testing.T) {
	b := New()
	mustApply(t, b, "M1", domain.SideSell, "0.60", "10")

	res, err := b.Apply("M1", domain.SideBuy, dec("0.40"), dec("3"), testTime)
	if err != nil {
		t.Fatalf("flip close: %v", err)
	}
	// Short from 0.60 closed at 0.40: profit (0.60-0.40)*10.
	approxEqual(t, res.Closed.PnL, "2.00", "sell-side PnL")
}

func TestReopenAfterCloseKeepsRealized(t *testing.T) {
	b := New()
	mustApply(t, b, "M1", domain.SideBuy, "0.40", "10")
	mustApply(t, b, "M1", domain.SideSell, "0.50", "1")

	res, err := b.Apply("M1", domain.SideSell, dec("0.30"), dec("4"), testTime)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if res.Kind != ApplyOpened {
		t.Fatalf("kind = %s, want opened (book was flat)", res.Kind)
	}
	if res.Position.Side != domain.SideSell {
		t.Errorf("side = %s, want SELL", res.Position.Side)
	}
	approxEqual(t, res.Position.RealizedPnL, "1.00", "realized carried over")
}

func TestResolve(t *testing.T) {
	tests := []struct {
		name    string
		side    domain.Side
		avg     string
		size    string
		winning domain.Side
		payout  string
		wantPnL string
	}{
		{
			name: "buy side wins", side: domain.SideBuy,
			avg: "0.30", size: "20",
			winning: domain.SideBuy, payout: "1.0",
			wantPnL: "14.0",
		},
		{
			name: "buy side loses stake", side: domain.SideBuy,
			avg: "0.30", size: "20",
			winning: domain.SideSell, payout: "1.0",
			wantPnL: "-6.0",
		},
		{
			name: "sell side wins", side: domain.SideSell,
			avg: "0.70", size: "10",
			winning: domain.SideSell, payout: "1.0",
			wantPnL: "7.0",
		},
		{
			name: "sell side loses", side: domain.SideSell,
			avg: "0.70", size: "10",
			winning: domain.SideBuy, payout: "1.0",
			wantPnL: "-3.0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := New()
			mustApply(t, b, "M2", tt.side, tt.avg, tt.size)

			ct, err := b.Resolve("M2", tt.winning, dec(tt.payout), testTime)
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if ct == nil {
				t.Fatal("expected closed trade")
			}
			approxEqual(t, ct.PnL, tt.wantPnL, "resolution PnL")
			if ct.Reason != domain.CloseReasonResolution {
				t.Errorf("reason = %s, want resolution", ct.Reason)
			}

			pos, _ := b.Position("M2")
			if pos.IsOpen() {
				t.Errorf("position still open after resolution")
			}
		})
	}
}

func TestResolveFlatMarketIsNoop(t *testing.T) {
	b := New()
	ct, err := b.Resolve("M9", domain.SideBuy, dec("1.0"), testTime)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if ct != nil {
		t.Fatalf("expected nil closed trade for unknown market, got %+v", ct)
	}
}

func TestRealizedAdjustedOnlyByCloses(t *testing.T) {
	b := New()
	mustApply(t, b, "M1", domain.SideBuy, "0.40", "10")
	mustApply(t, b, "M1", domain.SideBuy, "0.50", "10")
	mustApply(t, b, "M2", domain.SideSell, "0.80", "5")

	tot := b.Totals()
	if !tot.RealizedPnL.IsZero() {
		t.Errorf("realized = %s after opens only, want 0", tot.RealizedPnL)
	}
	if tot.WinCount != 0 || tot.LossCount != 0 {
		t.Errorf("counts = %d/%d after opens only, want 0/0", tot.WinCount, tot.LossCount)
	}
	if tot.OpenCount != 2 {
		t.Errorf("open count = %d, want 2", tot.OpenCount)
	}

	mustApply(t, b, "M1", domain.SideSell, "0.30", "1") // loss
	mustApply(t, b, "M2", domain.SideBuy, "0.90", "1")  // loss

	tot = b.Totals()
	approxEqual(t, tot.RealizedPnL, "-3.50", "realized after closes")
	if tot.WinCount != 0 || tot.LossCount != 2 {
		t.Errorf("counts = %d/%d, want 0/2", tot.WinCount, tot.LossCount)
	}
}

func TestHistoryLimit(t *testing.T) {
	b := New()
	for i := 0; i < 5; i++ {
		mustApply(t, b, "M1", domain.SideBuy, "0.50", "10")
		mustApply(t, b, "M1", domain.SideSell, "0.60", "1")
	}

	got := b.History(3)
	if len(got) != 3 {
		t.Fatalf("history(3) length = %d, want 3", len(got))
	}
	all := b.History(0)
	if len(all) != 5 {
		t.Fatalf("history(0) length = %d, want 5", len(all))
	}
	// Last 3 of the full history, order preserved.
	for i, ct := range got {
		if ct.ID != all[2+i].ID {
			t.Errorf("history(3)[%d] = %s, want %s", i, ct.ID, all[2+i].ID)
		}
	}
}

func TestApplyRejectsZeroPriceOrSize(t *testing.T) {
	b := New()
	if _, err := b.Apply("M1", domain.SideBuy, decimal.Zero, dec("10"), testTime); err == nil {
		t.Error("zero price accepted")
	}
	if _, err := b.Apply("M1", domain.SideBuy, dec("0.50"), decimal.Zero, testTime); err == nil {
		t.Error("zero size accepted")
	}
	if _, ok := b.Position("M1"); ok {
		t.Error("position created by rejected trade")
	}
}

func TestRestoreRebuildsTotals(t *testing.T) {
	b := New()
	positions := []domain.Position{
		{Market: "M1", Side: domain.SideBuy, Size: dec("10"), AvgPrice: dec("0.40")},
		{Market: "M2", Size: decimal.Zero, RealizedPnL: dec("2.0")},
	}
	history := []domain.ClosedTrade{
		{ID: "a", Market: "M2", PnL: dec("2.0")},
		{ID: "b", Market: "M3", PnL: dec("-0.5")},
	}
	b.Restore(positions, history)

	tot := b.Totals()
	approxEqual(t, tot.RealizedPnL, "1.50", "restored realized")
	if tot.WinCount != 1 || tot.LossCount != 1 {
		t.Errorf("counts = %d/%d, want 1/1", tot.WinCount, tot.LossCount)
	}
	if tot.OpenCount != 1 {
		t.Errorf("open count = %d, want 1", tot.OpenCount)
	}

	pos, ok := b.Position("M1")
	if !ok || !pos.IsOpen() {
		t.Error("restored open position missing")
	}
}

func TestCorruptPositionHaltsMarket(t *testing.T) {
	b := New()
	mustApply(t, b, "M1", domain.SideBuy, "0.40", "10")

	// Force corruption directly; Apply must refuse further mutation.
	b.mu.Lock()
	b.positions["M1"].Size = dec("-1")
	b.mu.Unlock()

	_, err := b.Apply("M1", domain.SideBuy, dec("0.50"), dec("5"), testTime)
	if !errors.Is(err, domain.ErrCorruptPosition) {
		t.Fatalf("err = %v, want ErrCorruptPosition", err)
	}
	// Market stays halted on subsequent calls.
	_, err = b.Apply("M1", domain.SideBuy, dec("0.50"), dec("5"), testTime)
	if !errors.Is(err, domain.ErrCorruptPosition) {
		t.Fatalf("second err = %v, want ErrCorruptPosition", err)
	}
	// Other markets unaffected.
	mustApply(t, b, "M2", domain.SideBuy, "0.50", "5")
}

func TestUnrealizedPnL(t *testing.T) {
	b := New()
	mustApply(t, b, "M1", domain.SideBuy, "0.40", "10")
	mustApply(t, b, "M1", domain.SideBuy, "0.50", "10") // LastPrice now 0.50

	pos, _ := b.Position("M1")
	// (0.50 - 0.45) * 20
	approxEqual(t, pos.UnrealizedPnL(), "1.00", "unrealized")
}

func mustApply(t *testing.T, b *Book, market string, side domain.Side, price, size string) ApplyResult {
	t.Helper()
	res, err := b.Apply(market, side, dec(price), dec(size), testTime)
	if err != nil {
		t.Fatalf("apply %s %s %s@%s: %v", market, side, size, price, err)
	}
	return res
}
