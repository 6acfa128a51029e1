// Package ai runs the LLM enrichment stage: one analysis per eligible
// candidate under a daily cost ceiling, dispatched FIFO to a bounded
// worker pool and merged back into the ranked opportunities.
package ai

import (
	"context"
	"time"

	"github.com/phuslu/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/openquant/pmccscan/internal/provider"
	"github.com/openquant/pmccscan/pkg/models"
)

// CostEstimator prices an analysis before it is dispatched. The Claude
// adapter implements it; tests substitute fixed prices.
type CostEstimator interface {
	EstimateCostUSD(args provider.AnalyzeArgs) decimal.Decimal
}

// Config sizes the orchestrator.
type Config struct {
	MaxConcurrent   int             // worker pool size, default 3
	DailyCostLimit  decimal.Decimal // USD ceiling across the run
	MinCompleteness decimal.Decimal // enhanced-data floor for eligibility
	AnalysisTimeout time.Duration   // per-candidate deadline, default 60s
}

// Outcome summarizes the stage for ScanResults.
type Outcome struct {
	Analyzed       int
	BudgetExceeded int
	Skipped        int // below completeness floor
	Failed         int
	Cancelled      int
	SpentUSD       decimal.Decimal
	Errors         []models.ScanError
}

// Orchestrator coordinates the LLM workers.
type Orchestrator struct {
	registry  provider.Executor
	estimator CostEstimator
	cfg       Config
	logger    log.Logger
}

// New creates an Orchestrator.
func New(registry provider.Executor, estimator CostEstimator, cfg Config, logger log.Logger) *Orchestrator {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.AnalysisTimeout <= 0 {
		cfg.AnalysisTimeout = 60 * time.Second
	}
	return &Orchestrator{
		registry:  registry,
		estimator: estimator,
		cfg:       cfg,
		logger:    logger,
	}
}

// Enrich analyzes each opportunity in place: opportunities whose
// analysis succeeds get their AI field and a recomputed combined score;
// the rest keep ai = nil and their traditional score. Dispatch is FIFO;
// completion order is unspecified. Cancellation is honoured between
// candidates and partial results are preserved.
func (o *Orchestrator) Enrich(ctx context.Context, opps []*models.RankedOpportunity, market provider.MarketContext) *Outcome {
	outcome := &Outcome{}
	budget := NewBudget(o.cfg.DailyCostLimit)

	results := make(chan workerResult, len(opps))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.MaxConcurrent)
	for i, opp := range opps {
		if gctx.Err() != nil {
			results <- workerResult{index: i, status: statusCancelled}
			continue
		}
		g.Go(func() error {
			results <- o.analyzeOne(gctx, i, opp, market, budget)
			return nil
		})
	}
	g.Wait()
	close(results)

	for r := range results {
		switch r.status {
		case statusAnalyzed:
			opps[r.index].AI = r.analysis
			outcome.Analyzed++
		case statusBudget:
			outcome.BudgetExceeded++
			outcome.Errors = append(outcome.Errors, models.ScanError{
				Phase:   models.PhaseAI,
				Symbol:  opps[r.index].PMCC.Symbol,
				Kind:    string(provider.KindBudget),
				Message: "daily cost limit would be exceeded",
			})
		case statusSkipped:
			outcome.Skipped++
		case statusCancelled:
			outcome.Cancelled++
			outcome.Errors = append(outcome.Errors, models.ScanError{
				Phase:   models.PhaseAI,
				Symbol:  opps[r.index].PMCC.Symbol,
				Kind:    string(provider.KindCancelled),
				Message: "analysis abandoned on cancellation",
			})
		case statusFailed:
			outcome.Failed++
			outcome.Errors = append(outcome.Errors, models.ScanError{
				Phase:      models.PhaseAI,
				Symbol:     opps[r.index].PMCC.Symbol,
				Kind:       string(provider.KindOf(r.err)),
				Message:    r.err.Error(),
				Retryable:  provider.IsRetryable(r.err),
				ProviderID: "claude",
			})
		}
	}

	// Every opportunity gets its combined score recomputed, analyzed or
	// not, then the caller re-sorts.
	for _, opp := range opps {
		opp.RecomputeCombinedScore()
	}
	outcome.SpentUSD = budget.Spent()
	return outcome
}

type workerStatus int

const (
	statusAnalyzed workerStatus = iota
	statusBudget
	statusSkipped
	statusCancelled
	statusFailed
)

type workerResult struct {
	index    int
	status   workerStatus
	analysis *models.AIAnalysis
	err      error
}

// analyzeOne runs the per-candidate sequence: eligibility, budget
// reservation, provider call, validation.
func (o *Orchestrator) analyzeOne(ctx context.Context, index int, opp *models.RankedOpportunity, market provider.MarketContext, budget *Budget) workerResult {
	if ctx.Err() != nil {
		return workerResult{index: index, status: statusCancelled}
	}
	if !o.eligible(opp) {
		return workerResult{index: index, status: statusSkipped}
	}

	args := provider.AnalyzeArgs{
		Candidate: &opp.PMCC,
		Enhanced:  opp.Enhanced,
		Market:    market,
	}

	estimate := o.estimator.EstimateCostUSD(args)
	if !budget.Reserve(estimate) {
		return workerResult{index: index, status: statusBudget}
	}

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.AnalysisTimeout)
	defer cancel()

	res, err := o.registry.Execute(callCtx, provider.OpAnalyzePMCC, args)
	if err != nil {
		if provider.KindOf(err) == provider.KindParse {
			// A parse failure still consumed tokens; its cost stands.
			budget.Commit(estimate, estimate)
		} else {
			budget.Release(estimate)
		}
		if ctx.Err() != nil {
			return workerResult{index: index, status: statusCancelled}
		}
		o.logger.Warn().Str("symbol", opp.PMCC.Symbol).Err(err).Msg("ai analysis failed")
		return workerResult{index: index, status: statusFailed, err: err}
	}

	analysis, ok := res.Data.(*models.AIAnalysis)
	if !ok {
		budget.Commit(estimate, estimate)
		return workerResult{index: index, status: statusFailed,
			err: provider.Errorf(provider.KindParse, "claude", provider.OpAnalyzePMCC,
				"unexpected analysis result type %T", res.Data)}
	}

	budget.Commit(estimate, analysis.CostEstimate)

	// In-flight completions after the coordinator moved on are
	// discarded by the caller; here only context state matters.
	if ctx.Err() != nil {
		return workerResult{index: index, status: statusCancelled}
	}
	return workerResult{index: index, status: statusAnalyzed, analysis: analysis}
}

// eligible applies the completeness floor: candidates with no or thin
// enhanced data skip AI and keep ai = nil.
func (o *Orchestrator) eligible(opp *models.RankedOpportunity) bool {
	if o.cfg.MinCompleteness.IsZero() {
		return true
	}
	if opp.Enhanced == nil {
		return false
	}
	return opp.Enhanced.CompletenessScore.GreaterThanOrEqual(o.cfg.MinCompleteness)
}
