package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fundamentals holds the per-symbol fundamental snapshot used for AI
// enrichment.
type Fundamentals struct {
	MarketCap       decimal.Decimal  `json:"market_cap"`
	PERatio         *decimal.Decimal `json:"pe_ratio,omitempty"`
	ForwardPE       *decimal.Decimal `json:"forward_pe,omitempty"`
	EPS             *decimal.Decimal `json:"eps,omitempty"`
	DividendYield   *decimal.Decimal `json:"dividend_yield,omitempty"`
	Beta            *decimal.Decimal `json:"beta,omitempty"`
	ProfitMarginPct *decimal.Decimal `json:"profit_margin_pct,omitempty"`
	RevenueGrowth   *decimal.Decimal `json:"revenue_growth,omitempty"`
	DebtToEquity    *decimal.Decimal `json:"debt_to_equity,omitempty"`
	Sector          string           `json:"sector,omitempty"`
	Industry        string           `json:"industry,omitempty"`
}

// CalendarEvents holds upcoming corporate events relevant to assignment
// and earnings risk.
type CalendarEvents struct {
	NextEarningsDate  *time.Time       `json:"next_earnings_date,omitempty"`
	EarningsWithin21D bool             `json:"earnings_within_21d"`
	ExDividendDate    *time.Time       `json:"ex_dividend_date,omitempty"`
	DividendAmount    *decimal.Decimal `json:"dividend_amount,omitempty"`
}

// Technicals is a compact technical summary for the underlying.
type Technicals struct {
	SMA50         *decimal.Decimal `json:"sma_50,omitempty"`
	SMA200        *decimal.Decimal `json:"sma_200,omitempty"`
	RSI14         *decimal.Decimal `json:"rsi_14,omitempty"`
	ATR14         *decimal.Decimal `json:"atr_14,omitempty"`
	High52W       *decimal.Decimal `json:"high_52w,omitempty"`
	Low52W        *decimal.Decimal `json:"low_52w,omitempty"`
	TrendSignal   string           `json:"trend_signal,omitempty"` // "bullish", "bearish", "neutral"
	TechnicalNote string           `json:"technical_note,omitempty"`
}

// RiskMetrics summarizes per-symbol risk context.
type RiskMetrics struct {
	HistoricalVol30D *decimal.Decimal `json:"historical_vol_30d,omitempty"`
	IVRank           *decimal.Decimal `json:"iv_rank,omitempty"`
	ShortInterestPct *decimal.Decimal `json:"short_interest_pct,omitempty"`
}

// NewsHeadline is a single headline collected from RSS feeds for the
// symbol, fed into the AI dossier.
type NewsHeadline struct {
	Title       string    `json:"title"`
	Source      string    `json:"source"`
	Link        string    `json:"link,omitempty"`
	PublishedAt time.Time `json:"published_at"`
}

// EnhancedStockData is the optional per-symbol enrichment bundle. Every
// sub-object is nullable; CompletenessScore records how much of the
// expected data was actually collected (0–100).
type EnhancedStockData struct {
	Symbol            string          `json:"symbol"`
	Fundamentals      *Fundamentals   `json:"fundamentals,omitempty"`
	CalendarEvents    *CalendarEvents `json:"calendar_events,omitempty"`
	Technicals        *Technicals     `json:"technicals,omitempty"`
	RiskMetrics       *RiskMetrics    `json:"risk_metrics,omitempty"`
	Headlines         []NewsHeadline  `json:"headlines,omitempty"`
	CompletenessScore decimal.Decimal `json:"completeness_score"`
	CollectedAt       time.Time       `json:"collected_at"`
}

// ComputeCompleteness recomputes CompletenessScore as the percentage of
// the four expected sub-objects that are populated.
func (e *EnhancedStockData) ComputeCompleteness() {
	populated := 0
	if e.Fundamentals != nil {
		populated++
	}
	if e.CalendarEvents != nil {
		populated++
	}
	if e.Technicals != nil {
		populated++
	}
	if e.RiskMetrics != nil {
		populated++
	}
	e.CompletenessScore = decimal.NewFromInt(int64(populated * 100)).Div(decimal.NewFromInt(4))
}
