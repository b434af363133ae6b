package polymarket

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polycopy/internal/domain"
)

func TestAPITradeToDomainFieldAliases(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		wantID     string
		wantMarket string
		wantSide   domain.Side
		wantUsable bool
	}{
		{
			name:       "canonical fields",
			payload:    `{"id":"t1","market":"M1","side":"SELL","price":0.4,"size":100}`,
			wantID:     "t1",
			wantMarket: "M1",
			wantSide:   domain.SideSell,
			wantUsable: true,
		},
		{
			name:       "tx hash and slug aliases",
			payload:    `{"transactionHash":"0xabc","market_slug":"will-it-rain","side":"BUY","price":"0.55","size":"20"}`,
			wantID:     "0xabc",
			wantMarket: "will-it-rain",
			wantSide:   domain.SideBuy,
			wantUsable: true,
		},
		{
			name:       "traderSize fallback and default side",
			payload:    `{"id":"t3","conditionId":"0xcond","price":0.3,"traderSize":50}`,
			wantID:     "t3",
			wantMarket: "0xcond",
			wantSide:   domain.SideBuy,
			wantUsable: true,
		},
		{
			name:       "missing price is unusable",
			payload:    `{"id":"t4","market":"M1","side":"BUY","size":10}`,
			wantID:     "t4",
			wantMarket: "M1",
			wantSide:   domain.SideBuy,
			wantUsable: false,
		},
		{
			name:       "garbage numerics decode to zero",
			payload:    `{"id":"t5","market":"M1","price":"n/a","size":"lots"}`,
			wantID:     "t5",
			wantMarket: "M1",
			wantSide:   domain.SideBuy,
			wantUsable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var row APITrade
			if err := json.Unmarshal([]byte(tt.payload), &row); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			rec := row.ToDomain()
			if rec.ID != tt.wantID {
				t.Errorf("ID = %q, want %q", rec.ID, tt.wantID)
			}
			if rec.Market != tt.wantMarket {
				t.Errorf("Market = %q, want %q", rec.Market, tt.wantMarket)
			}
			if rec.Side != tt.wantSide {
				t.Errorf("Side = %s, want %s", rec.Side, tt.wantSide)
			}
			if rec.Usable() != tt.wantUsable {
				t.Errorf("Usable() = %v, want %v", rec.Usable(), tt.wantUsable)
			}
		})
	}
}

func TestDecodeTradesWrappers(t *testing.T) {
	bare := `[{"id":"a"},{"id":"b"}]`
	wrapped := `{"trades":[{"id":"a"}]}`
	data := `{"data":[{"id":"a"},{"id":"b"},{"id":"c"}]}`

	for _, tc := range []struct {
		payload string
		want    int
	}{
		{bare, 2}, {wrapped, 1}, {data, 3},
	} {
		rows, err := decodeTrades([]byte(tc.payload))
		if err != nil {
			t.Fatalf("decodeTrades(%s): %v", tc.payload, err)
		}
		if len(rows) != tc.want {
			t.Errorf("decodeTrades(%s) = %d rows, want %d", tc.payload, len(rows), tc.want)
		}
	}

	if _, err := decodeTrades([]byte(`"nope"`)); err == nil {
		t.Error("malformed payload accepted")
	}
}

func TestAPIMarketToResolution(t *testing.T) {
	tests := []struct {
		name         string
		payload      string
		wantResolved bool
		wantSide     domain.Side
		wantPayout   string
	}{
		{
			name:         "explicit fields",
			payload:      `{"resolved":true,"winning_side":"BUY","payout_per_dollar":1.0}`,
			wantResolved: true,
			wantSide:     domain.SideBuy,
			wantPayout:   "1",
		},
		{
			name:         "yes no labels",
			payload:      `{"resolved":true,"winning_side":"NO"}`,
			wantResolved: true,
			wantSide:     domain.SideSell,
			wantPayout:   "1",
		},
		{
			name:         "winner token on closed market",
			payload:      `{"closed":true,"tokens":[{"outcome":"Yes","winner":false},{"outcome":"No","winner":true}]}`,
			wantResolved: true,
			wantSide:     domain.SideSell,
			wantPayout:   "1",
		},
		{
			name:         "open market",
			payload:      `{"resolved":false}`,
			wantResolved: false,
			wantSide:     "",
			wantPayout:   "1",
		},
		{
			name:         "resolved without winner stays unresolved",
			payload:      `{"id":"M1","resolved":true}`,
			wantResolved: false,
			wantSide:     "",
			wantPayout:   "1",
		},
		{
			name:         "resolved with unmappable winner stays unresolved",
			payload:      `{"resolved":true,"winning_side":"MAYBE","tokens":[{"outcome":"Yes","winner":false}]}`,
			wantResolved: false,
			wantSide:     "",
			wantPayout:   "1",
		},
		{
			name:         "fractional payout",
			payload:      `{"resolved":true,"winning_side":"YES","payout_per_dollar":"0.97"}`,
			wantResolved: true,
			wantSide:     domain.SideBuy,
			wantPayout:   "0.97",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m APIMarket
			if err := json.Unmarshal([]byte(tt.payload), &m); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			res := m.ToResolution()
			if res.Resolved != tt.wantResolved {
				t.Errorf("Resolved = %v, want %v", res.Resolved, tt.wantResolved)
			}
			if res.WinningSide != tt.wantSide {
				t.Errorf("WinningSide = %q, want %q", res.WinningSide, tt.wantSide)
			}
			if !res.PayoutPerUnit.Equal(decimal.RequireFromString(tt.wantPayout)) {
				t.Errorf("PayoutPerUnit = %s, want %s", res.PayoutPerUnit, tt.wantPayout)
			}
		})
	}
}
