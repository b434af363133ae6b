package polymarket

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/polycopy/internal/domain"
)

// flexNumber unmarshals from a JSON number or a numeric string, since the
// data API sends price/size as either depending on deployment. Unparseable
// values decode to zero, which downstream treats as a skip.
type flexNumber decimal.Decimal

func (f *flexNumber) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = flexNumber(decimal.Zero)
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		*f = flexNumber(decimal.Zero)
		return nil
	}
	*f = flexNumber(d)
	return nil
}

func (f flexNumber) Decimal() decimal.Decimal {
	return decimal.Decimal(f)
}

// flexTime unmarshals from a unix-seconds number or an RFC3339 string.
type flexTime time.Time

func (f *flexTime) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = flexTime(time.Time{})
		return nil
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		*f = flexTime(time.Unix(secs, 0).UTC())
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		*f = flexTime(time.Time{})
		return nil
	}
	*f = flexTime(t.UTC())
	return nil
}

// APITrade is one trade row from the data API. Field names vary across
// deployments, so every plausible alias is decoded and the first non-empty
// one wins.
type APITrade struct {
	ID         string     `json:"id"`
	TxHash     string     `json:"transactionHash"`
	Market     string     `json:"market"`
	MarketSlug string     `json:"market_slug"`
	Condition  string     `json:"conditionId"`
	Side       string     `json:"side"`
	Price      flexNumber `json:"price"`
	Size       flexNumber `json:"size"`
	TraderSize flexNumber `json:"traderSize"`
	Wallet     string     `json:"proxyWallet"`
	Timestamp  flexTime   `json:"timestamp"`
}

// ToDomain converts the API row into a domain.TradeRecord, applying the
// documented defaults: side defaults to BUY, price/size default to zero and
// trigger the skip rule upstream.
func (t APITrade) ToDomain() domain.TradeRecord {
	id := t.ID
	if id == "" {
		id = t.TxHash
	}

	market := t.Market
	if market == "" {
		market = t.MarketSlug
	}
	if market == "" {
		market = t.Condition
	}
	if market == "" {
		market = "unknown-market"
	}

	side := domain.SideBuy
	if strings.EqualFold(t.Side, "SELL") || strings.EqualFold(t.Side, "NO") {
		side = domain.SideSell
	}

	size := t.Size.Decimal()
	if size.IsZero() {
		size = t.TraderSize.Decimal()
	}

	return domain.TradeRecord{
		ID:        id,
		Market:    market,
		Side:      side,
		Price:     t.Price.Decimal(),
		Size:      size,
		Wallet:    t.Wallet,
		Timestamp: time.Time(t.Timestamp),
	}
}

// APIMarket is a market row from the markets endpoint, reduced to the
// resolution fields the mirror cares about.
type APIMarket struct {
	ID          string     `json:"id"`
	Resolved    bool       `json:"resolved"`
	Closed      bool       `json:"closed"`
	WinningSide string     `json:"winning_side"`
	Payout      flexNumber `json:"payout_per_dollar"`
	Outcomes    []APIToken `json:"tokens"`
}

// APIToken is one outcome token inside a market response.
type APIToken struct {
	Outcome string `json:"outcome"`
	Winner  bool   `json:"winner"`
}

// ToResolution maps the market row onto a domain.Resolution. Payout defaults
// to 1 when the API omits it; a market is considered resolved when either the
// explicit flag or the closed flag with a winner is present.
//
// A row flagged resolved but carrying no recognizable winner is reported as
// unresolved: settling on a guessed side would realize a permanently wrong
// PnL, whereas an unresolved market is simply rechecked next cycle.
func (m APIMarket) ToResolution() domain.Resolution {
	res := domain.Resolution{
		Resolved:      m.Resolved,
		PayoutPerUnit: decimal.NewFromInt(1),
	}
	if p := m.Payout.Decimal(); p.IsPositive() {
		res.PayoutPerUnit = p
	}

	switch strings.ToUpper(m.WinningSide) {
	case "BUY", "YES":
		res.WinningSide = domain.SideBuy
	case "SELL", "NO":
		res.WinningSide = domain.SideSell
	default:
		for _, tok := range m.Outcomes {
			if !tok.Winner {
				continue
			}
			if strings.EqualFold(tok.Outcome, "No") {
				res.WinningSide = domain.SideSell
			} else {
				res.WinningSide = domain.SideBuy
			}
			if m.Closed {
				res.Resolved = true
			}
			break
		}
	}

	if res.WinningSide == "" {
		res.Resolved = false
	}
	return res
}

// decodeTrades parses a trades response, tolerating both a bare array and an
// object wrapper.
func decodeTrades(body []byte) ([]APITrade, error) {
	var rows []APITrade
	if err := json.Unmarshal(body, &rows); err == nil {
		return rows, nil
	}
	var wrapped struct {
		Trades []APITrade `json:"trades"`
		Data   []APITrade `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapped); err != nil {
		return nil, err
	}
	if len(wrapped.Trades) > 0 {
		return wrapped.Trades, nil
	}
	return wrapped.Data, nil
}
