// Package scan orchestrates one end-to-end run: screen, analyze in a
// bounded worker pool, enhance and AI-enrich the leaders, export the
// artifacts and deliver notifications.
package scan

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phuslu/log"
	"github.com/shopspring/decimal"

	"github.com/openquant/pmccscan/internal/ai"
	"github.com/openquant/pmccscan/internal/analyzer"
	"github.com/openquant/pmccscan/internal/config"
	"github.com/openquant/pmccscan/internal/enhance"
	"github.com/openquant/pmccscan/internal/notify"
	"github.com/openquant/pmccscan/internal/provider"
	"github.com/openquant/pmccscan/internal/scoring"
	"github.com/openquant/pmccscan/internal/screener"
	"github.com/openquant/pmccscan/pkg/models"
)

// ErrNoSymbols aborts a scan whose screening stage produced nothing.
var ErrNoSymbols = errors.New("screening returned zero symbols")

// Registry is the provider surface the coordinator needs: dispatch plus
// usage snapshots for the artifact.
type Registry interface {
	provider.Executor
	Status() map[string]provider.ProviderStatus
	Empty() bool
}

// Coordinator owns a scan run and every entity it produces.
type Coordinator struct {
	cfg          *config.Config
	registry     Registry
	screener     *screener.Screener
	analyzer     *analyzer.Analyzer
	scorer       *scoring.Calculator
	collector    *enhance.Collector
	orchestrator *ai.Orchestrator
	notifier     *notify.Manager
	exporter     *Exporter
	logger       log.Logger

	now func() time.Time
}

// Deps bundles the coordinator's collaborators; cmd wires them from
// config and tests substitute fakes.
type Deps struct {
	Registry     Registry
	Screener     *screener.Screener
	Analyzer     *analyzer.Analyzer
	Scorer       *scoring.Calculator
	Collector    *enhance.Collector // nil when AI disabled
	Orchestrator *ai.Orchestrator   // nil when AI disabled
	Notifier     *notify.Manager    // nil when notifications disabled
	Exporter     *Exporter
}

// New creates a Coordinator.
func New(cfg *config.Config, deps Deps, logger log.Logger) *Coordinator {
	return &Coordinator{
		cfg:          cfg,
		registry:     deps.Registry,
		screener:     deps.Screener,
		analyzer:     deps.Analyzer,
		scorer:       deps.Scorer,
		collector:    deps.Collector,
		orchestrator: deps.Orchestrator,
		notifier:     deps.Notifier,
		exporter:     deps.Exporter,
		logger:       logger,
		now:          time.Now,
	}
}

// symbolResult carries one worker's output to the coordinator.
type symbolResult struct {
	symbol    string
	analysis  *analyzer.Result
	err       error
	cancelled bool
}

// Run executes the full pipeline and returns the results even on
// partial failure; err is non-nil only for unrecoverable aborts.
func (c *Coordinator) Run(ctx context.Context) (*models.ScanResults, error) {
	results := &models.ScanResults{
		ScanID:         uuid.NewString(),
		StartedAt:      c.now().UTC(),
		ConfigSnapshot: c.cfg.Snapshot(),
		ProviderUsage:  map[string]models.ProviderUsage{},
	}

	if c.registry.Empty() {
		return results, fmt.Errorf("provider registry is empty")
	}

	deadline := c.cfg.Scan.Deadline
	if deadline <= 0 {
		deadline = 30 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	// --- Screening ---
	symbols, err := c.screener.Screen(ctx, c.screeningCriteria())
	if err != nil {
		results.AddError(models.ScanError{
			Phase: models.PhaseScreening, Kind: string(provider.KindOf(err)), Message: err.Error(),
		})
		c.finish(results)
		return results, fmt.Errorf("screening failed: %w", err)
	}
	results.Stats.Screened = len(symbols)
	results.Stats.PassedScreening = len(symbols)
	if len(symbols) == 0 {
		c.finish(results)
		return results, ErrNoSymbols
	}
	c.logger.Info().Int("symbols", len(symbols)).Msg("screening complete")

	// --- Per-symbol analysis (bounded pool, results streamed back) ---
	candidates := c.analyzeSymbols(ctx, symbols, results)
	results.Stats.CandidatesFound = len(candidates)

	// Rank by traditional score; the AI stage re-sorts by combined.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].TraditionalScore.GreaterThan(candidates[j].TraditionalScore)
	})

	opportunities := make([]*models.RankedOpportunity, 0, len(candidates))
	for _, cand := range candidates {
		opp := &models.RankedOpportunity{PMCC: *cand}
		opp.RecomputeCombinedScore()
		opportunities = append(opportunities, opp)
	}

	// --- Enhancement + AI over the leaders ---
	if c.cfg.AI.Enabled && c.orchestrator != nil && len(opportunities) > 0 {
		c.enrich(ctx, opportunities, results)
	}

	// --- Final ranking and cut ---
	sort.SliceStable(opportunities, func(i, j int) bool {
		return opportunities[i].CombinedScore.GreaterThan(opportunities[j].CombinedScore)
	})
	topK := c.cfg.Scan.TopK
	if topK <= 0 {
		topK = 10
	}
	if len(opportunities) > topK {
		opportunities = opportunities[:topK]
	}
	for _, opp := range opportunities {
		if !c.cfg.Scan.IncludeFullChain {
			opp.PMCC.Chain = nil
		}
		results.Opportunities = append(results.Opportunities, *opp)
	}

	c.finish(results)

	// --- Export (written even for partial runs) ---
	if c.exporter != nil {
		if err := c.exporter.Export(results); err != nil {
			results.AddError(models.ScanError{
				Phase: models.PhaseExport, Kind: "export", Message: err.Error(),
			})
		}
	}

	// --- Notify ---
	if c.notifier != nil {
		out := c.notifier.Deliver(context.WithoutCancel(ctx), results)
		if !out.Success {
			results.AddError(models.ScanError{
				Phase: models.PhaseNotification, Kind: string(provider.KindNotification),
				Message: "no enabled channel acknowledged delivery",
			})
		}
	}

	if ctx.Err() != nil && len(results.Opportunities) == 0 {
		return results, fmt.Errorf("deadline reached with zero opportunities: %w", ctx.Err())
	}
	return results, nil
}

// analyzeSymbols fans the screened symbols over the analysis pool and
// drains the result channel into candidates and scan errors.
func (c *Coordinator) analyzeSymbols(ctx context.Context, symbols []models.ScreenedSymbol, results *models.ScanResults) []*models.PMCCCandidate {
	workers := c.cfg.Scan.AnalysisWorkers
	if workers <= 0 {
		workers = 10
	}
	// The options provider's in-flight budget bounds the pool as well.
	if budget := c.cfg.Providers.MarketData.MaxInFlight; budget > 0 && int64(workers) > budget {
		workers = int(budget)
	}
	if workers > len(symbols) {
		workers = len(symbols)
	}

	jobs := make(chan models.ScreenedSymbol)
	resCh := make(chan symbolResult, workers*2)
	done := make(chan struct{})

	var candidates []*models.PMCCCandidate
	go func() {
		defer close(done)
		for r := range resCh {
			switch {
			case r.cancelled:
				results.AddError(models.ScanError{
					Phase: models.PhaseAnalysis, Symbol: r.symbol,
					Kind: string(provider.KindCancelled), Message: "analysis abandoned at deadline",
				})
			case r.err != nil:
				results.AddError(models.ScanError{
					Phase: models.PhaseAnalysis, Symbol: r.symbol,
					Kind:       string(provider.KindOf(r.err)),
					Message:    r.err.Error(),
					Retryable:  provider.IsRetryable(r.err),
					ProviderID: providerOf(r.err),
				})
			default:
				results.Stats.ChainsAnalyzed++
				results.Stats.InvariantViolations += r.analysis.InvariantViolations
				for _, w := range r.analysis.Warnings {
					results.AddWarning(fmt.Sprintf("%s: %s", r.symbol, w))
				}
				candidates = append(candidates, r.analysis.Candidates...)
			}
		}
	}()

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sym := range jobs {
				if ctx.Err() != nil {
					resCh <- symbolResult{symbol: sym.Stock.Symbol, cancelled: true}
					continue
				}
				res, err := c.analyzer.Analyze(ctx, sym.Stock.Symbol, sym.Quote)
				if err != nil {
					if ctx.Err() != nil {
						resCh <- symbolResult{symbol: sym.Stock.Symbol, cancelled: true}
						continue
					}
					resCh <- symbolResult{symbol: sym.Stock.Symbol, err: err}
					continue
				}
				resCh <- symbolResult{symbol: sym.Stock.Symbol, analysis: res}
			}
		}()
	}

	for _, sym := range symbols {
		jobs <- sym
	}
	close(jobs)
	wg.Wait()
	close(resCh)
	<-done

	return candidates
}

// enrich runs the C7/C8 stages over the top-M opportunities.
func (c *Coordinator) enrich(ctx context.Context, opportunities []*models.RankedOpportunity, results *models.ScanResults) {
	topM := c.cfg.AI.TopCandidates
	if topM <= 0 {
		topM = 25
	}
	leaders := opportunities
	if len(leaders) > topM {
		leaders = leaders[:topM]
	}

	if c.collector != nil {
		symbolSet := make(map[string]bool)
		var symbols []string
		for _, opp := range leaders {
			if !symbolSet[opp.PMCC.Symbol] {
				symbolSet[opp.PMCC.Symbol] = true
				symbols = append(symbols, opp.PMCC.Symbol)
			}
		}
		enhanced := c.collector.CollectAll(ctx, symbols)
		for _, opp := range leaders {
			data := enhanced[opp.PMCC.Symbol]
			if data == nil {
				continue
			}
			opp.Enhanced = data
			// Re-score with the technical override, then flag
			// assignment risk off the collected calendar.
			if override := enhance.TechnicalScore(data); override != nil && c.scorer != nil {
				c.scorer.Score(&opp.PMCC, override)
				opp.RecomputeCombinedScore()
			}
			if data.CalendarEvents != nil {
				analyzer.FlagEarlyAssignment(&opp.PMCC, data.CalendarEvents)
			}
		}
	}

	out := c.orchestrator.Enrich(ctx, leaders, c.marketContext())
	results.Stats.AIAnalyzed = out.Analyzed
	results.Errors = append(results.Errors, out.Errors...)
	if out.BudgetExceeded > 0 {
		results.AddWarning(fmt.Sprintf("ai budget exhausted: %d candidates left unanalyzed (spent $%s)",
			out.BudgetExceeded, out.SpentUSD))
	}
	c.logger.Info().Int("analyzed", out.Analyzed).Int("budget_exceeded", out.BudgetExceeded).
		Str("spent_usd", out.SpentUSD.String()).Msg("ai enrichment complete")
}

// finish stamps completion and copies provider usage into the results.
func (c *Coordinator) finish(results *models.ScanResults) {
	results.CompletedAt = c.now().UTC()
	for id, st := range c.registry.Status() {
		results.ProviderUsage[id] = models.ProviderUsage{
			Calls:      st.Calls,
			Credits:    st.Credits,
			Errors:     st.Errors,
			AvgLatency: st.AvgLatency,
		}
	}
	results.Sort()
}

func (c *Coordinator) screeningCriteria() models.ScreeningCriteria {
	s := c.cfg.Screening
	crit := models.ScreeningCriteria{
		Universe:     models.UniverseKind(s.Universe),
		List:         s.List,
		Symbols:      s.Symbols,
		MinAvgVolume: s.MinAvgVolume,
		Exchanges:    s.Exchanges,
		MaxSymbols:   s.MaxSymbols,
	}
	if s.MinMarketCap > 0 {
		crit.MinMarketCap = decPtr(s.MinMarketCap)
	}
	if s.MaxMarketCap > 0 {
		crit.MaxMarketCap = decPtr(s.MaxMarketCap)
	}
	if s.MinPrice > 0 {
		crit.MinPrice = decPtr(s.MinPrice)
	}
	if s.MaxPrice > 0 {
		crit.MaxPrice = decPtr(s.MaxPrice)
	}
	return crit
}

func (c *Coordinator) marketContext() provider.MarketContext {
	return provider.MarketContext{ScanDate: c.now().UTC()}
}

func providerOf(err error) string {
	var pe *provider.Error
	if errors.As(err, &pe) {
		return pe.ProviderID
	}
	return ""
}

func decPtr(f float64) *decimal.Decimal {
	d := decimal.NewFromFloat(f)
	return &d
}
