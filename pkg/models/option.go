package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/openquant/pmccscan/pkg/utils"
)

// OptionSide distinguishes calls from puts.
type OptionSide string

const (
	Call OptionSide = "call"
	Put  OptionSide = "put"
)

// OptionContract represents a single listed option contract with quote
// and greeks. Mid and DTE are derived fields that Normalize fills in.
type OptionContract struct {
	OptionSymbol string           `json:"option_symbol"`
	Underlying   string           `json:"underlying"`
	Side         OptionSide       `json:"side"`
	Strike       decimal.Decimal  `json:"strike"`
	Expiration   time.Time        `json:"expiration_date"`
	Bid          *decimal.Decimal `json:"bid,omitempty"`
	Ask          *decimal.Decimal `json:"ask,omitempty"`
	Last         *decimal.Decimal `json:"last,omitempty"`
	Mid          *decimal.Decimal `json:"mid,omitempty"`
	Volume       int64            `json:"volume"`
	OpenInterest int64            `json:"open_interest"`
	Delta        *decimal.Decimal `json:"delta,omitempty"`
	Gamma        *decimal.Decimal `json:"gamma,omitempty"`
	Theta        *decimal.Decimal `json:"theta,omitempty"`
	Vega         *decimal.Decimal `json:"vega,omitempty"`
	IV           *decimal.Decimal `json:"iv,omitempty"`
	DTE          int              `json:"dte"`
	NonStandard  bool             `json:"non_standard,omitempty"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// Normalize recomputes the derived fields (Mid, DTE) from the raw quote
// fields as of the given time. Call after populating a contract by hand
// or after decoding an upstream payload.
func (c *OptionContract) Normalize(asOf time.Time) {
	if c.Bid != nil && c.Ask != nil {
		mid := c.Bid.Add(*c.Ask).Div(decimal.NewFromInt(2))
		c.Mid = &mid
	}
	c.DTE = utils.DaysToExpiration(asOf, c.Expiration)
}

// Valid reports whether the contract satisfies its structural invariants:
// positive strike, non-past expiration, |delta| within [0, 1].
func (c *OptionContract) Valid(asOf time.Time) bool {
	if !c.Strike.IsPositive() {
		return false
	}
	if utils.DaysToExpiration(asOf, c.Expiration) < 0 {
		return false
	}
	if c.Delta != nil && c.Delta.Abs().GreaterThan(decimal.NewFromInt(1)) {
		return false
	}
	return true
}

// AbsDelta returns |delta|, or zero when delta is absent.
func (c *OptionContract) AbsDelta() decimal.Decimal {
	if c.Delta == nil {
		return decimal.Zero
	}
	return c.Delta.Abs()
}

// Spread returns ask − bid. ok is false when either side is missing.
func (c *OptionContract) Spread() (decimal.Decimal, bool) {
	if c.Bid == nil || c.Ask == nil {
		return decimal.Zero, false
	}
	return c.Ask.Sub(*c.Bid), true
}

// SpreadPct returns the bid-ask spread as a fraction of the mid price.
// ok is false when either side is missing or the mid is not positive.
func (c *OptionContract) SpreadPct() (decimal.Decimal, bool) {
	spread, ok := c.Spread()
	if !ok || c.Mid == nil || !c.Mid.IsPositive() {
		return decimal.Zero, false
	}
	return spread.Div(*c.Mid), true
}

// Extrinsic returns the contract's extrinsic (time) value at the given
// underlying price, priced at the mid.
func (c *OptionContract) Extrinsic(underlying decimal.Decimal) decimal.Decimal {
	if c.Mid == nil {
		return decimal.Zero
	}
	intrinsic := decimal.Zero
	if c.Side == Call && underlying.GreaterThan(c.Strike) {
		intrinsic = underlying.Sub(c.Strike)
	}
	if c.Side == Put && c.Strike.GreaterThan(underlying) {
		intrinsic = c.Strike.Sub(underlying)
	}
	ext := c.Mid.Sub(intrinsic)
	if ext.IsNegative() {
		return decimal.Zero
	}
	return ext
}

// OptionChain is the option chain for an underlying at a point in time.
// The lookup views return filtered copies; the chain itself is never
// mutated after construction.
type OptionChain struct {
	Underlying      string           `json:"underlying"`
	UnderlyingPrice decimal.Decimal  `json:"underlying_price"`
	UpdatedAt       time.Time        `json:"updated_at"`
	Contracts       []OptionContract `json:"contracts"`
}

// Calls returns only the call contracts.
func (ch *OptionChain) Calls() []OptionContract {
	return ch.filter(func(c *OptionContract) bool { return c.Side == Call })
}

// Puts returns only the put contracts.
func (ch *OptionChain) Puts() []OptionContract {
	return ch.filter(func(c *OptionContract) bool { return c.Side == Put })
}

// ByExpiration returns contracts expiring on the given calendar date.
func (ch *OptionChain) ByExpiration(date time.Time) []OptionContract {
	y, m, d := date.In(utils.Eastern).Date()
	return ch.filter(func(c *OptionContract) bool {
		cy, cm, cd := c.Expiration.In(utils.Eastern).Date()
		return cy == y && cm == m && cd == d
	})
}

// ByDTERange returns contracts whose DTE lies in [lo, hi] inclusive.
func (ch *OptionChain) ByDTERange(lo, hi int) []OptionContract {
	return ch.filter(func(c *OptionContract) bool {
		return c.DTE >= lo && c.DTE <= hi
	})
}

// ByDeltaRange returns contracts whose |delta| lies in [lo, hi] inclusive.
// Contracts with no delta are excluded.
func (ch *OptionChain) ByDeltaRange(lo, hi decimal.Decimal) []OptionContract {
	return ch.filter(func(c *OptionContract) bool {
		if c.Delta == nil {
			return false
		}
		d := c.Delta.Abs()
		return d.GreaterThanOrEqual(lo) && d.LessThanOrEqual(hi)
	})
}

// Expirations returns the distinct expiration dates in the chain, sorted
// ascending.
func (ch *OptionChain) Expirations() []time.Time {
	seen := make(map[string]time.Time)
	for i := range ch.Contracts {
		key := ch.Contracts[i].Expiration.In(utils.Eastern).Format("2006-01-02")
		if _, ok := seen[key]; !ok {
			seen[key] = ch.Contracts[i].Expiration
		}
	}
	out := make([]time.Time, 0, len(seen))
	for _, t := range seen {
		out = append(out, t)
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Before(out[i]) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}

func (ch *OptionChain) filter(keep func(*OptionContract) bool) []OptionContract {
	out := make([]OptionContract, 0, len(ch.Contracts))
	for i := range ch.Contracts {
		if keep(&ch.Contracts[i]) {
			out = append(out, ch.Contracts[i])
		}
	}
	return out
}
