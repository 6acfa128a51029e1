package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/openquant/pmccscan/pkg/utils"
)

// Quote represents a current market quote for an underlying symbol.
// All numeric fields are optional; upstream feeds routinely omit one side.
type Quote struct {
	Symbol    string           `json:"symbol"`
	Bid       *decimal.Decimal `json:"bid,omitempty"`
	Ask       *decimal.Decimal `json:"ask,omitempty"`
	Last      *decimal.Decimal `json:"last,omitempty"`
	Volume    int64            `json:"volume,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// Price returns the best available price: last, else mid, else whichever
// side is present. ok is false when the quote carries no price at all.
func (q *Quote) Price() (decimal.Decimal, bool) {
	if q.Last != nil {
		return *q.Last, true
	}
	if q.Bid != nil && q.Ask != nil {
		return q.Bid.Add(*q.Ask).Div(decimal.NewFromInt(2)), true
	}
	if q.Bid != nil {
		return *q.Bid, true
	}
	if q.Ask != nil {
		return *q.Ask, true
	}
	return decimal.Zero, false
}

// Valid reports whether the quote satisfies its invariant: when both bid
// and ask are present, bid must not exceed ask.
func (q *Quote) Valid() bool {
	if q.Bid != nil && q.Ask != nil {
		return q.Bid.LessThanOrEqual(*q.Ask)
	}
	return true
}

// IsStale reports whether the quote is older than one trading day as of
// the given time, per the US-Eastern market calendar.
func (q *Quote) IsStale(asOf time.Time) bool {
	if q.UpdatedAt.IsZero() {
		return true
	}
	return q.UpdatedAt.Before(utils.PrevTradingDay(asOf))
}

// ScreenedStock is a screening hit: a symbol plus the classification
// fields the screening provider returns.
type ScreenedStock struct {
	Symbol    string          `json:"symbol"`
	Name      string          `json:"name,omitempty"`
	Exchange  string          `json:"exchange"`
	Sector    string          `json:"sector,omitempty"`
	MarketCap decimal.Decimal `json:"market_cap"`
}

// ScreenedSymbol pairs a screening hit with its attached quote.
type ScreenedSymbol struct {
	Stock ScreenedStock `json:"stock"`
	Quote Quote         `json:"quote"`
}
