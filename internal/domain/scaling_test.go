package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestScalingConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ScalingConfig
		wantErr bool
	}{
		{"percent ok", ScalingConfig{Mode: ScaleModePercent, Value: decimal.NewFromInt(10)}, false},
		{"fixed ok", ScalingConfig{Mode: ScaleModeFixed, Value: decimal.NewFromInt(5)}, false},
		{"unknown mode", ScalingConfig{Mode: "mirror", Value: decimal.NewFromInt(1)}, true},
		{"zero value", ScalingConfig{Mode: ScaleModePercent, Value: decimal.Zero}, true},
		{"negative value", ScalingConfig{Mode: ScaleModeFixed, Value: decimal.NewFromInt(-5)}, true},
		{"percent over 100", ScalingConfig{Mode: ScaleModePercent, Value: decimal.NewFromInt(150)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestScalingConfigCopySize(t *testing.T) {
	tests := []struct {
		name      string
		cfg       ScalingConfig
		tradeSize string
		want      string
	}{
		{"ten percent", ScalingConfig{Mode: ScaleModePercent, Value: decimal.NewFromInt(10)}, "100", "10"},
		{"ten percent of 50", ScalingConfig{Mode: ScaleModePercent, Value: decimal.NewFromInt(10)}, "50", "5"},
		{"fixed ignores size", ScalingConfig{Mode: ScaleModeFixed, Value: decimal.NewFromInt(5)}, "12345", "5"},
		{"fixed on tiny trade", ScalingConfig{Mode: ScaleModeFixed, Value: decimal.NewFromInt(5)}, "0.01", "5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			size, _ := decimal.NewFromString(tt.tradeSize)
			got := tt.cfg.CopySize(size)
			want, _ := decimal.NewFromString(tt.want)
			if !got.Equal(want) {
				t.Errorf("CopySize(%s) = %s, want %s", tt.tradeSize, got, want)
			}
		})
	}
}

func TestTradeRecordIdentity(t *testing.T) {
	a := TradeRecord{Market: "M1", Side: SideBuy, Price: decimal.NewFromFloat(0.4), Size: decimal.NewFromInt(10)}
	b := a
	if a.Identity() != b.Identity() {
		t.Error("identical records derived different identities")
	}

	b.Size = decimal.NewFromInt(11)
	if a.Identity() == b.Identity() {
		t.Error("distinct records derived the same identity")
	}

	withID := TradeRecord{ID: "tx-1"}
	if withID.Identity() != "tx-1" {
		t.Errorf("venue ID not preferred: %s", withID.Identity())
	}
}
