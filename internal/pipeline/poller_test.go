package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polycopy/internal/book"
	"github.com/alanyoungcy/polycopy/internal/domain"
	"github.com/alanyoungcy/polycopy/internal/notify"
	"github.com/alanyoungcy/polycopy/internal/service"
)

const testWallet = "0x56687bf447db6ffa42ffe2204a05edaa20f55839"

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// fakeSource returns queued batches, one per Trades call.
type fakeSource struct {
	batches [][]domain.TradeRecord
	err     error
	calls   int
}

func (f *fakeSource) Trades(_ context.Context, _ string, _ int) ([]domain.TradeRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.calls >= len(f.batches) {
		return nil, nil
	}
	batch := f.batches[f.calls]
	f.calls++
	return batch, nil
}

// recordingSender captures every delivered notification.
type recordingSender struct {
	mu     sync.Mutex
	titles []string
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.titles = append(r.titles, title)
	return nil
}

func (r *recordingSender) Name() string { return "recording" }

func (r *recordingSender) Titles() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.titles...)
}

// recordingStore counts persistence calls.
type recordingStore struct {
	mu      sync.Mutex
	upserts int
	appends int
}

func (s *recordingStore) UpsertPosition(context.Context, domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	return nil
}

func (s *recordingStore) AppendClosedTrade(context.Context, domain.ClosedTrade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appends++
	return nil
}

func (s *recordingStore) LoadPositions(context.Context) ([]domain.Position, error) {
	return nil, nil
}

func (s *recordingStore) ListClosedTrades(context.Context, int) ([]domain.ClosedTrade, error) {
	return nil, nil
}

func newTestPoller(t *testing.T, source TradeSource, store domain.BookStore, senders ...notify.Sender) (*Poller, *book.Book, *service.Tracker) {
	t.Helper()
	logger := slog.Default()
	tracker := service.NewTracker("",
		domain.ScalingConfig{Mode: domain.ScaleModePercent, Value: decimal.NewFromInt(10)},
		decimal.Zero, logger)
	if err := tracker.SetWallet(testWallet); err != nil {
		t.Fatal(err)
	}
	bk := book.New()
	notifier := notify.NewNotifier(senders, nil, logger)
	p := NewPoller(source, tracker, bk, NewDedup(0), store, notifier, 10, time.Second, logger)
	return p, bk, tracker
}

func rec(id, market string, side domain.Side, price, size string) domain.TradeRecord {
	return domain.TradeRecord{
		ID:        id,
		Market:    market,
		Side:      side,
		Price:     dec(price),
		Size:      dec(size),
		Timestamp: time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestPollerScenarioPercentScaling(t *testing.T) {
	// 10% scaling: A opens 10 @ 0.40, B averages to 15 @ 0.4667,
	// C flips and closes all 15 at 0.70 for +3.50.
	src := &fakeSource{batches: [][]domain.TradeRecord{{
		rec("A", "M1", domain.SideBuy, "0.40", "100"),
		rec("B", "M1", domain.SideBuy, "0.60", "50"),
		rec("C", "M1", domain.SideSell, "0.70", "20"),
	}}}
	store := &recordingStore{}
	sender := &recordingSender{}
	p, bk, _ := newTestPoller(t, src, store, sender)

	p.poll(context.Background())

	pos, ok := bk.Position("M1")
	if !ok {
		t.Fatal("position missing")
	}
	if pos.IsOpen() {
		t.Errorf("position open after flip, size %s", pos.Size)
	}
	want := dec("3.50")
	if pos.RealizedPnL.Sub(want).Abs().GreaterThan(dec("0.0001")) {
		t.Errorf("realized = %s, want 3.50", pos.RealizedPnL)
	}

	hist := bk.History(0)
	if len(hist) != 1 {
		t.Fatalf("history = %d entries, want 1", len(hist))
	}

	// Three copies + one close notification.
	titles := sender.Titles()
	copied, closed := 0, 0
	for _, title := range titles {
		switch title {
		case "Copied Trade":
			copied++
		case "Position Closed":
			closed++
		}
	}
	if copied != 3 || closed != 1 {
		t.Errorf("notifications = %d copied / %d closed, want 3/1", copied, closed)
	}

	if store.upserts != 3 || store.appends != 1 {
		t.Errorf("persistence = %d upserts / %d appends, want 3/1", store.upserts, store.appends)
	}
}

func TestPollerDuplicateAcrossCycles(t *testing.T) {
	same := rec("A", "M1", domain.SideBuy, "0.40", "100")
	src := &fakeSource{batches: [][]domain.TradeRecord{
		{same},
		{same, rec("B", "M1", domain.SideBuy, "0.40", "100")},
	}}
	p, bk, _ := newTestPoller(t, src, nil)

	p.poll(context.Background())
	p.poll(context.Background())

	pos, _ := bk.Position("M1")
	// A once + B once = 20 copied, not 30.
	if !pos.Size.Equal(dec("20")) {
		t.Errorf("size = %s, want 20 (duplicate must not re-apply)", pos.Size)
	}
}

func TestPollerSkipsUnusableWithoutMarkingSeen(t *testing.T) {
	src := &fakeSource{batches: [][]domain.TradeRecord{
		{rec("A", "M1", domain.SideBuy, "0", "100")}, // zero price: skip
		{rec("A", "M1", domain.SideBuy, "0.40", "100")}, // backfilled: must apply
	}}
	p, bk, _ := newTestPoller(t, src, nil)

	p.poll(context.Background())
	if _, ok := bk.Position("M1"); ok {
		t.Fatal("zero-price record mutated book")
	}

	p.poll(context.Background())
	pos, ok := bk.Position("M1")
	if !ok || !pos.Size.Equal(dec("10")) {
		t.Errorf("backfilled record not applied, size = %s", pos.Size)
	}
}

func TestPollerFetchErrorSkipsCycle(t *testing.T) {
	src := &fakeSource{err: errors.New("connection refused")}
	p, bk, _ := newTestPoller(t, src, nil)

	p.poll(context.Background()) // must not panic

	if len(bk.AllPositions()) != 0 {
		t.Error("failed fetch mutated book")
	}
}

func TestPollerNoWalletSkipsCycle(t *testing.T) {
	src := &fakeSource{batches: [][]domain.TradeRecord{{rec("A", "M1", domain.SideBuy, "0.40", "100")}}}
	logger := slog.Default()
	tracker := service.NewTracker("",
		domain.ScalingConfig{Mode: domain.ScaleModePercent, Value: decimal.NewFromInt(10)},
		decimal.Zero, logger)
	bk := book.New()
	p := NewPoller(src, tracker, bk, NewDedup(0), nil, notify.NewNotifier(nil, nil, logger), 10, time.Second, logger)

	p.poll(context.Background())

	if src.calls != 0 {
		t.Error("fetch attempted without a tracked wallet")
	}
}

func TestPollerFixedScaling(t *testing.T) {
	src := &fakeSource{batches: [][]domain.TradeRecord{{
		rec("A", "M1", domain.SideBuy, "0.40", "1000"),
		rec("B", "M2", domain.SideBuy, "0.40", "3"),
	}}}
	p, bk, tracker := newTestPoller(t, src, nil)
	if err := tracker.SetScaling(domain.ScalingConfig{Mode: domain.ScaleModeFixed, Value: decimal.NewFromInt(5)}); err != nil {
		t.Fatal(err)
	}

	p.poll(context.Background())

	for _, market := range []string{"M1", "M2"} {
		pos, _ := bk.Position(market)
		if !pos.Size.Equal(dec("5")) {
			t.Errorf("%s size = %s, want fixed 5", market, pos.Size)
		}
	}
}
