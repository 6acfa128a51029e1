// Package provider defines the market-data provider contract: the
// operation catalog, the uniform call result, the circuit breaker, and
// the registry that routes each operation to a healthy provider with
// retries and fallback.
package provider

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openquant/pmccscan/pkg/models"
)

// Op names one routable operation. Adapters declare which ops they
// support; the registry refuses ops routed to a non-declaring provider.
type Op string

const (
	OpScreenStocks      Op = "screen_stocks"
	OpGetQuote          Op = "get_quote"
	OpGetQuotesBatch    Op = "get_quotes_batch"
	OpGetOptionChain    Op = "get_option_chain"
	OpGetExpirations    Op = "get_expirations"
	OpGetStrikes        Op = "get_strikes"
	OpGetFundamentals   Op = "get_fundamentals"
	OpGetCalendarEvents Op = "get_calendar_events"
	OpGetTechnicals     Op = "get_technicals"
	OpAnalyzePMCC       Op = "analyze_pmcc_opportunity"
)

// AllOps returns the full operation catalog.
func AllOps() []Op {
	return []Op{
		OpScreenStocks, OpGetQuote, OpGetQuotesBatch,
		OpGetOptionChain, OpGetExpirations, OpGetStrikes,
		OpGetFundamentals, OpGetCalendarEvents, OpGetTechnicals,
		OpAnalyzePMCC,
	}
}

// Result is the uniform envelope every provider call returns.
type Result struct {
	Data    any
	Credits int
	Latency time.Duration
	Cached  bool
}

// Executor dispatches operations. The Registry is the production
// implementation; pipeline stages depend on this interface so tests can
// substitute fakes.
type Executor interface {
	Execute(ctx context.Context, op Op, args any) (*Result, error)
}

// Provider is the contract every concrete adapter implements. Call makes
// exactly one upstream attempt; retries, breaker accounting and fallback
// belong to the registry.
type Provider interface {
	ID() string
	SupportedOps() []Op
	Supports(op Op) bool
	EstimateCredits(op Op, args any) int
	HealthProbe(ctx context.Context) error
	Call(ctx context.Context, op Op, args any) (*Result, error)
}

// --- Typed operation arguments ---

// ScreenArgs parameterizes screen_stocks.
type ScreenArgs struct {
	Criteria models.ScreeningCriteria
	Limit    int
	Offset   int
}

// QuoteArgs parameterizes get_quote.
type QuoteArgs struct {
	Symbol string
}

// QuotesBatchArgs parameterizes get_quotes_batch.
type QuotesBatchArgs struct {
	Symbols []string
}

// ChainFeed selects the upstream pricing feed for option chains.
type ChainFeed string

const (
	FeedLive   ChainFeed = "live"
	FeedCached ChainFeed = "cached"
)

// ChainArgs parameterizes get_option_chain.
type ChainArgs struct {
	Underlying      string
	Side            models.OptionSide // empty = both sides
	MinDTE          int
	MaxDTE          int
	MinDelta        *decimal.Decimal
	MaxDelta        *decimal.Decimal
	MinOpenInterest int64
	MaxSpreadPct    *decimal.Decimal
	Feed            ChainFeed
	IncludeGreeks   bool
}

// ExpirationsArgs parameterizes get_expirations.
type ExpirationsArgs struct {
	Underlying string
}

// StrikesArgs parameterizes get_strikes.
type StrikesArgs struct {
	Underlying string
	Expiration time.Time
}

// FundamentalsArgs parameterizes get_fundamentals.
type FundamentalsArgs struct {
	Symbol string
}

// CalendarArgs parameterizes get_calendar_events.
type CalendarArgs struct {
	Symbol string
	From   time.Time
	To     time.Time
}

// TechnicalsArgs parameterizes get_technicals.
type TechnicalsArgs struct {
	Symbol string
}

// MarketContext is the scan-level market backdrop handed to the LLM
// alongside each candidate.
type MarketContext struct {
	ScanDate     time.Time        `json:"scan_date"`
	VIX          *decimal.Decimal `json:"vix,omitempty"`
	MarketTrend  string           `json:"market_trend,omitempty"`
	ContextNotes string           `json:"context_notes,omitempty"`
}

// AnalyzeArgs parameterizes analyze_pmcc_opportunity: the candidate
// dossier the LLM reviews.
type AnalyzeArgs struct {
	Candidate *models.PMCCCandidate
	Enhanced  *models.EnhancedStockData
	Market    MarketContext
}
