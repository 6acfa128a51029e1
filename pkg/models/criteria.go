package models

import (
	"github.com/shopspring/decimal"
)

// LegCriteria constrains one leg of the PMCC spread. Delta and DTE bounds
// are closed intervals.
type LegCriteria struct {
	MinDTE             int             `json:"min_dte"`
	MaxDTE             int             `json:"max_dte"`
	MinDelta           decimal.Decimal `json:"min_delta"`
	MaxDelta           decimal.Decimal `json:"max_delta"`
	MinOpenInterest    int64           `json:"min_open_interest"`
	MaxBidAskSpreadPct decimal.Decimal `json:"max_bid_ask_spread_pct"`
}

// Matches reports whether the contract's DTE and |delta| fall inside the
// criteria's closed intervals. Liquidity bounds are checked separately.
func (lc *LegCriteria) Matches(c *OptionContract) bool {
	if c.DTE < lc.MinDTE || c.DTE > lc.MaxDTE {
		return false
	}
	if c.Delta == nil {
		return false
	}
	d := c.Delta.Abs()
	return d.GreaterThanOrEqual(lc.MinDelta) && d.LessThanOrEqual(lc.MaxDelta)
}

// DefaultLEAPSCriteria returns the default long-leg constraints:
// deep-ITM long-dated calls, dte 270–720, delta 0.75–0.90.
func DefaultLEAPSCriteria() LegCriteria {
	return LegCriteria{
		MinDTE:             270,
		MaxDTE:             720,
		MinDelta:           decimal.NewFromFloat(0.75),
		MaxDelta:           decimal.NewFromFloat(0.90),
		MinOpenInterest:    50,
		MaxBidAskSpreadPct: decimal.NewFromFloat(0.10),
	}
}

// DefaultShortCallCriteria returns the default short-leg constraints:
// near-term OTM calls, dte 21–45, delta 0.20–0.35.
func DefaultShortCallCriteria() LegCriteria {
	return LegCriteria{
		MinDTE:             21,
		MaxDTE:             45,
		MinDelta:           decimal.NewFromFloat(0.20),
		MaxDelta:           decimal.NewFromFloat(0.35),
		MinOpenInterest:    10,
		MaxBidAskSpreadPct: decimal.NewFromFloat(0.15),
	}
}

// UniverseKind selects how the screening universe is resolved.
type UniverseKind string

const (
	UniversePredefined UniverseKind = "predefined_list"
	UniverseCustom     UniverseKind = "custom_symbols"
)

// ScreeningCriteria is the input to the stock screener. Zero-valued
// bounds are treated as absent.
type ScreeningCriteria struct {
	Universe     UniverseKind     `json:"universe"`
	List         string           `json:"list,omitempty"`    // named predefined list, e.g. "sp500"
	Symbols      []string         `json:"symbols,omitempty"` // custom universe
	MinMarketCap *decimal.Decimal `json:"min_market_cap,omitempty"`
	MaxMarketCap *decimal.Decimal `json:"max_market_cap,omitempty"`
	MinPrice     *decimal.Decimal `json:"min_price,omitempty"`
	MaxPrice     *decimal.Decimal `json:"max_price,omitempty"`
	MinAvgVolume int64            `json:"min_avg_volume,omitempty"`
	Exchanges    []string         `json:"exchanges,omitempty"`
	MaxSymbols   int              `json:"max_symbols,omitempty"` // cap per scan, default 500
}
