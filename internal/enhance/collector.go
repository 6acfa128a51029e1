// Package enhance gathers per-symbol fundamentals, calendar events,
// technicals and headlines for the candidates that graduate to AI
// review. Every sub-object is best-effort; what was actually collected
// is recorded in the completeness score.
package enhance

import (
	"context"
	"sync"
	"time"

	"github.com/phuslu/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/openquant/pmccscan/internal/provider"
	"github.com/openquant/pmccscan/pkg/models"
)

// earningsFlagWindow is how far ahead earnings are flagged as imminent.
const earningsFlagWindow = 21 * 24 * time.Hour

// Collector fetches enhanced stock data through the fundamentals
// provider, with per-symbol sub-fetches running concurrently.
type Collector struct {
	registry provider.Executor
	news     *NewsCollector
	logger   log.Logger

	// Concurrent symbols; the provider's rate limiter paces the actual
	// request rate underneath.
	maxConcurrent int

	now func() time.Time
}

// New creates a Collector. newsFeeds may be empty to skip headlines.
func New(registry provider.Executor, newsFeeds []string, maxConcurrent int, logger log.Logger) *Collector {
	if maxConcurrent <= 0 {
		maxConcurrent = 5
	}
	return &Collector{
		registry:      registry,
		news:          NewNewsCollector(newsFeeds),
		logger:        logger,
		maxConcurrent: maxConcurrent,
		now:           time.Now,
	}
}

// CollectAll gathers enhanced data for each distinct symbol among the
// candidates. Failures degrade to partial data, never errors.
func (c *Collector) CollectAll(ctx context.Context, symbols []string) map[string]*models.EnhancedStockData {
	out := make(map[string]*models.EnhancedStockData, len(symbols))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxConcurrent)
	for _, symbol := range symbols {
		g.Go(func() error {
			data := c.Collect(gctx, symbol)
			mu.Lock()
			out[symbol] = data
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return out
}

// Collect gathers one symbol's enhancement bundle. Sub-fetches run in
// parallel and missing pieces leave their sub-object nil.
func (c *Collector) Collect(ctx context.Context, symbol string) *models.EnhancedStockData {
	data := &models.EnhancedStockData{
		Symbol:      symbol,
		CollectedAt: c.now().UTC(),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		res, err := c.registry.Execute(gctx, provider.OpGetFundamentals, provider.FundamentalsArgs{Symbol: symbol})
		if err != nil {
			c.logger.Debug().Str("symbol", symbol).Err(err).Msg("fundamentals unavailable")
			return nil
		}
		if f, ok := res.Data.(*models.Fundamentals); ok {
			mu.Lock()
			data.Fundamentals = f
			mu.Unlock()
		}
		return nil
	})

	g.Go(func() error {
		now := c.now().UTC()
		res, err := c.registry.Execute(gctx, provider.OpGetCalendarEvents, provider.CalendarArgs{
			Symbol: symbol,
			From:   now,
			To:     now.AddDate(0, 3, 0),
		})
		if err != nil {
			c.logger.Debug().Str("symbol", symbol).Err(err).Msg("calendar unavailable")
			return nil
		}
		if ev, ok := res.Data.(*models.CalendarEvents); ok && ev != nil {
			if ev.NextEarningsDate != nil {
				until := ev.NextEarningsDate.Sub(now)
				ev.EarningsWithin21D = until >= 0 && until <= earningsFlagWindow
			}
			mu.Lock()
			data.CalendarEvents = ev
			mu.Unlock()
		}
		return nil
	})

	g.Go(func() error {
		res, err := c.registry.Execute(gctx, provider.OpGetTechnicals, provider.TechnicalsArgs{Symbol: symbol})
		if err != nil {
			c.logger.Debug().Str("symbol", symbol).Err(err).Msg("technicals unavailable")
			return nil
		}
		if t, ok := res.Data.(*models.Technicals); ok {
			mu.Lock()
			data.Technicals = t
			mu.Unlock()
		}
		return nil
	})

	g.Go(func() error {
		headlines := c.news.Headlines(gctx, symbol)
		if len(headlines) > 0 {
			mu.Lock()
			data.Headlines = headlines
			mu.Unlock()
		}
		return nil
	})

	g.Wait()

	// Risk metrics derive from what was collected rather than a
	// separate upstream call.
	data.RiskMetrics = deriveRiskMetrics(data)
	data.ComputeCompleteness()
	return data
}

// TechnicalScore converts collected technicals into the 0–100 technical
// sub-score override for the composite scorer. Returns nil when no
// technicals were collected.
func TechnicalScore(data *models.EnhancedStockData) *decimal.Decimal {
	if data == nil || data.Technicals == nil {
		return nil
	}
	score := decimal.NewFromInt(50)
	switch data.Technicals.TrendSignal {
	case "bullish":
		score = decimal.NewFromInt(70)
	case "bearish":
		score = decimal.NewFromInt(30)
	}
	if rsi := data.Technicals.RSI14; rsi != nil {
		// Overbought/oversold pulls the score back toward neutral.
		if rsi.GreaterThan(decimal.NewFromInt(70)) || rsi.LessThan(decimal.NewFromInt(30)) {
			score = score.Add(decimal.NewFromInt(50)).Div(decimal.NewFromInt(2))
		}
	}
	return &score
}

// deriveRiskMetrics fills the risk block from fundamentals when present.
// Returns nil when there is nothing to derive so completeness stays
// honest.
func deriveRiskMetrics(data *models.EnhancedStockData) *models.RiskMetrics {
	f := data.Fundamentals
	if f == nil || f.Beta == nil {
		return nil
	}
	// Beta stands in for realized volatility until a history feed is
	// wired.
	vol := f.Beta.Mul(decimal.NewFromFloat(0.16))
	return &models.RiskMetrics{HistoricalVol30D: &vol}
}
