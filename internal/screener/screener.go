// Package screener produces the filtered, quote-attached list of
// candidate symbols a scan analyzes.
package screener

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/phuslu/log"

	"github.com/openquant/pmccscan/internal/provider"
	"github.com/openquant/pmccscan/pkg/models"
)

// defaultMaxSymbols caps a scan's universe when config does not.
const defaultMaxSymbols = 500

// Screener resolves the universe, screens it through the fundamentals
// provider and attaches current quotes.
type Screener struct {
	registry provider.Executor
	universe *UniverseResolver
	logger   log.Logger

	now func() time.Time
}

// New creates a Screener.
func New(registry provider.Executor, logger log.Logger) *Screener {
	return &Screener{
		registry: registry,
		universe: NewUniverseResolver(),
		logger:   logger,
		now:      time.Now,
	}
}

// Screen runs the four screening steps: resolve universe, screen_stocks
// with the numeric filters, attach quotes in batch, then dedupe, sort by
// market cap descending and cap the list.
func (s *Screener) Screen(ctx context.Context, criteria models.ScreeningCriteria) ([]models.ScreenedSymbol, error) {
	allowed, err := s.resolveUniverse(ctx, criteria)
	if err != nil {
		return nil, err
	}

	res, err := s.registry.Execute(ctx, provider.OpScreenStocks, provider.ScreenArgs{
		Criteria: criteria,
		Limit:    maxSymbols(criteria),
	})
	if err != nil {
		return nil, fmt.Errorf("screen stocks: %w", err)
	}
	stocks, ok := res.Data.([]models.ScreenedStock)
	if !ok {
		return nil, provider.Errorf(provider.KindParse, "", provider.OpScreenStocks,
			"unexpected screen result type %T", res.Data)
	}

	// Restrict to the resolved universe and dedupe.
	seen := make(map[string]bool, len(stocks))
	filtered := make([]models.ScreenedStock, 0, len(stocks))
	for _, st := range stocks {
		if st.Symbol == "" || seen[st.Symbol] {
			continue
		}
		if allowed != nil && !allowed[st.Symbol] {
			continue
		}
		seen[st.Symbol] = true
		filtered = append(filtered, st)
	}
	if len(filtered) == 0 {
		return nil, nil
	}

	quotes := s.attachQuotes(ctx, filtered)

	asOf := s.now()
	out := make([]models.ScreenedSymbol, 0, len(filtered))
	for _, st := range filtered {
		q, ok := quotes[st.Symbol]
		if !ok {
			s.logger.Debug().Str("symbol", st.Symbol).Msg("dropping symbol with no quote")
			continue
		}
		if q.IsStale(asOf) {
			s.logger.Debug().Str("symbol", st.Symbol).Time("updated_at", q.UpdatedAt).
				Msg("dropping symbol with stale quote")
			continue
		}
		if !q.Valid() {
			continue
		}
		out = append(out, models.ScreenedSymbol{Stock: st, Quote: q})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Stock.MarketCap.GreaterThan(out[j].Stock.MarketCap)
	})
	if cap := maxSymbols(criteria); len(out) > cap {
		out = out[:cap]
	}
	return out, nil
}

// resolveUniverse returns the allowed symbol set, or nil when every
// screening hit is acceptable.
func (s *Screener) resolveUniverse(ctx context.Context, criteria models.ScreeningCriteria) (map[string]bool, error) {
	var symbols []string
	switch criteria.Universe {
	case models.UniverseCustom:
		symbols = criteria.Symbols
	case models.UniversePredefined, "":
		var err error
		symbols, err = s.universe.Resolve(ctx, criteria.List)
		if err != nil {
			return nil, fmt.Errorf("resolve universe: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown universe %q", criteria.Universe)
	}
	if len(symbols) == 0 {
		return nil, nil
	}
	set := make(map[string]bool, len(symbols))
	for _, sym := range symbols {
		set[sym] = true
	}
	return set, nil
}

// attachQuotes batch-fetches quotes, falling back to per-symbol lookups
// when the batch op has no healthy provider.
func (s *Screener) attachQuotes(ctx context.Context, stocks []models.ScreenedStock) map[string]models.Quote {
	symbols := make([]string, 0, len(stocks))
	for _, st := range stocks {
		symbols = append(symbols, st.Symbol)
	}

	quotes := make(map[string]models.Quote, len(symbols))
	res, err := s.registry.Execute(ctx, provider.OpGetQuotesBatch, provider.QuotesBatchArgs{Symbols: symbols})
	if err == nil {
		if batch, ok := res.Data.([]models.Quote); ok {
			for _, q := range batch {
				quotes[q.Symbol] = q
			}
			return quotes
		}
	}
	s.logger.Warn().Err(err).Msg("batch quotes unavailable, falling back to per-symbol")

	for _, sym := range symbols {
		res, err := s.registry.Execute(ctx, provider.OpGetQuote, provider.QuoteArgs{Symbol: sym})
		if err != nil {
			continue
		}
		if q, ok := res.Data.(*models.Quote); ok && q != nil {
			quotes[sym] = *q
		}
	}
	return quotes
}

func maxSymbols(c models.ScreeningCriteria) int {
	if c.MaxSymbols > 0 {
		return c.MaxSymbols
	}
	return defaultMaxSymbols
}
