package eodhd

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openquant/pmccscan/pkg/models"
)

// --- EODHD API response types ---

type screenerResponse struct {
	Data []screenerRow `json:"data"`
}

type screenerRow struct {
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	Exchange  string  `json:"exchange"`
	Sector    string  `json:"sector"`
	MarketCap float64 `json:"market_capitalization"`
	AvgVolume int64   `json:"avgvol_200d"`
	Close     float64 `json:"adjusted_close"`
}

type realtimeQuote struct {
	Code      string   `json:"code"`
	Timestamp int64    `json:"timestamp"`
	Open      *float64 `json:"open"`
	High      *float64 `json:"high"`
	Low       *float64 `json:"low"`
	Close     *float64 `json:"close"`
	Volume    int64    `json:"volume"`
	// EODHD's real-time payload has no bid/ask; close doubles as last.
}

// toQuote converts an upstream quote row, or nil when it carries no price.
func (r *realtimeQuote) toQuote(symbol string) *models.Quote {
	if r.Close == nil {
		return nil
	}
	last := decimal.NewFromFloat(*r.Close)
	q := &models.Quote{
		Symbol: symbol,
		Last:   &last,
		Volume: r.Volume,
	}
	if r.Timestamp > 0 {
		q.UpdatedAt = time.Unix(r.Timestamp, 0).UTC()
	}
	return q
}

type fundamentalsResponse struct {
	General struct {
		Sector   string `json:"Sector"`
		Industry string `json:"Industry"`
	} `json:"General"`
	Highlights struct {
		MarketCapitalization float64  `json:"MarketCapitalization"`
		PERatio              *float64 `json:"PERatio"`
		EPS                  *float64 `json:"EarningsShare"`
		DividendYield        *float64 `json:"DividendYield"`
		ProfitMargin         *float64 `json:"ProfitMargin"`
		RevenueGrowthYOY     *float64 `json:"QuarterlyRevenueGrowthYOY"`
	} `json:"Highlights"`
	Valuation struct {
		ForwardPE *float64 `json:"ForwardPE"`
	} `json:"Valuation"`
	Technicals struct {
		Beta *float64 `json:"Beta"`
	} `json:"Technicals"`
}

func (r *fundamentalsResponse) toFundamentals() *models.Fundamentals {
	f := &models.Fundamentals{
		MarketCap: decFromFloat(r.Highlights.MarketCapitalization),
		Sector:    r.General.Sector,
		Industry:  r.General.Industry,
	}
	f.PERatio = decPtr(r.Highlights.PERatio)
	f.ForwardPE = decPtr(r.Valuation.ForwardPE)
	f.EPS = decPtr(r.Highlights.EPS)
	f.DividendYield = decPtr(r.Highlights.DividendYield)
	f.Beta = decPtr(r.Technicals.Beta)
	f.ProfitMarginPct = decPtr(r.Highlights.ProfitMargin)
	f.RevenueGrowth = decPtr(r.Highlights.RevenueGrowthYOY)
	return f
}

type earningsCalendarResponse struct {
	Earnings []earningsRow `json:"earnings"`
}

type earningsRow struct {
	Code       string `json:"code"`
	ReportDate string `json:"report_date"`
	Date       string `json:"date"`
}

type dividendResponse []dividendRow

type dividendRow struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

type technicalsResponse struct {
	SMA50   *float64 `json:"sma_50"`
	SMA200  *float64 `json:"sma_200"`
	RSI14   *float64 `json:"rsi_14"`
	ATR14   *float64 `json:"atr_14"`
	High52W *float64 `json:"hi_250d"`
	Low52W  *float64 `json:"lo_250d"`
}

func (r *technicalsResponse) toTechnicals() *models.Technicals {
	t := &models.Technicals{
		SMA50:   decPtr(r.SMA50),
		SMA200:  decPtr(r.SMA200),
		RSI14:   decPtr(r.RSI14),
		ATR14:   decPtr(r.ATR14),
		High52W: decPtr(r.High52W),
		Low52W:  decPtr(r.Low52W),
	}
	switch {
	case t.SMA50 != nil && t.SMA200 != nil && t.SMA50.GreaterThan(*t.SMA200):
		t.TrendSignal = "bullish"
	case t.SMA50 != nil && t.SMA200 != nil && t.SMA50.LessThan(*t.SMA200):
		t.TrendSignal = "bearish"
	default:
		t.TrendSignal = "neutral"
	}
	return t
}

// buildScreenFilters renders the numeric screening predicates into the
// upstream's filter syntax: [["field","op",value],...].
func buildScreenFilters(c models.ScreeningCriteria) string {
	var parts []string
	add := func(field, op, value string) {
		parts = append(parts, `["`+field+`","`+op+`",`+value+`]`)
	}
	if c.MinMarketCap != nil {
		add("market_capitalization", ">=", c.MinMarketCap.String())
	}
	if c.MaxMarketCap != nil {
		add("market_capitalization", "<=", c.MaxMarketCap.String())
	}
	if c.MinPrice != nil {
		add("adjusted_close", ">=", c.MinPrice.String())
	}
	if c.MaxPrice != nil {
		add("adjusted_close", "<=", c.MaxPrice.String())
	}
	if c.MinAvgVolume > 0 {
		add("avgvol_200d", ">=", decimal.NewFromInt(c.MinAvgVolume).String())
	}
	for _, ex := range c.Exchanges {
		add("exchange", "=", `"`+ex+`"`)
		break // upstream accepts a single exchange predicate
	}
	if len(parts) == 0 {
		return ""
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func decFromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

func decPtr(f *float64) *decimal.Decimal {
	if f == nil {
		return nil
	}
	d := decimal.NewFromFloat(*f)
	return &d
}
