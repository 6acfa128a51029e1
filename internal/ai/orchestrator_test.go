package ai

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/phuslu/log"
	"github.com/shopspring/decimal"

	"github.com/openquant/pmccscan/internal/provider"
	"github.com/openquant/pmccscan/pkg/models"
)

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

// fixedEstimator prices every analysis identically.
type fixedEstimator struct{ price decimal.Decimal }

func (f fixedEstimator) EstimateCostUSD(provider.AnalyzeArgs) decimal.Decimal { return f.price }

// fakeLLM returns a canned analysis, or a per-symbol error.
type fakeLLM struct {
	mu     sync.Mutex
	calls  int
	score  decimal.Decimal
	cost   decimal.Decimal
	errFor map[string]error
}

func (f *fakeLLM) Execute(ctx context.Context, op provider.Op, args any) (*provider.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	a := args.(provider.AnalyzeArgs)
	if err, ok := f.errFor[a.Candidate.Symbol]; ok {
		return nil, err
	}
	analysis := &models.AIAnalysis{
		Symbol:         a.Candidate.Symbol,
		AIScore:        f.score,
		Recommendation: models.RecBuy,
		Confidence:     dec(80),
		CostEstimate:   f.cost,
		CompletedAt:    time.Now().UTC(),
	}
	return &provider.Result{Data: analysis, Credits: 6}, nil
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func makeOpps(n int, completeness float64) []*models.RankedOpportunity {
	opps := make([]*models.RankedOpportunity, 0, n)
	for i := 0; i < n; i++ {
		opp := &models.RankedOpportunity{
			PMCC: models.PMCCCandidate{
				Symbol:           symbolFor(i),
				TraditionalScore: dec(70),
			},
			Enhanced: &models.EnhancedStockData{
				Symbol:            symbolFor(i),
				CompletenessScore: dec(completeness),
			},
		}
		opp.RecomputeCombinedScore()
		opps = append(opps, opp)
	}
	return opps
}

func symbolFor(i int) string {
	return string(rune('A'+i/26)) + string(rune('A'+i%26))
}

func newTestOrchestrator(exec provider.Executor, est CostEstimator, limit decimal.Decimal) *Orchestrator {
	return New(exec, est, Config{
		MaxConcurrent:   3,
		DailyCostLimit:  limit,
		MinCompleteness: dec(60),
	}, log.Logger{Level: log.PanicLevel})
}

func TestEnrichMergesScores(t *testing.T) {
	llm := &fakeLLM{score: dec(90), cost: dec(0.05)}
	o := newTestOrchestrator(llm, fixedEstimator{dec(0.06)}, dec(10))
	opps := makeOpps(4, 100)

	out := o.Enrich(context.Background(), opps, provider.MarketContext{})
	if out.Analyzed != 4 {
		t.Fatalf("Analyzed = %d, want 4", out.Analyzed)
	}
	for _, opp := range opps {
		if opp.AI == nil {
			t.Fatalf("%s missing AI analysis", opp.PMCC.Symbol)
		}
		// combined = 0.6·70 + 0.4·90 = 78
		if !opp.CombinedScore.Equal(dec(78)) {
			t.Errorf("combined = %s, want 78", opp.CombinedScore)
		}
	}
}

func TestEnrichBudgetBoundaryIsStrict(t *testing.T) {
	// 20 eligible, estimate $0.06 each, limit $1.00: exactly 16 calls
	// fit (0.96); the 17th would cross and must not be dispatched.
	llm := &fakeLLM{score: dec(80), cost: dec(0.06)}
	o := newTestOrchestrator(llm, fixedEstimator{dec(0.06)}, dec(1.00))
	o.cfg.MaxConcurrent = 1 // deterministic FIFO accounting
	opps := makeOpps(20, 100)

	out := o.Enrich(context.Background(), opps, provider.MarketContext{})
	if out.Analyzed != 16 {
		t.Fatalf("Analyzed = %d, want 16", out.Analyzed)
	}
	if out.BudgetExceeded != 4 {
		t.Fatalf("BudgetExceeded = %d, want 4", out.BudgetExceeded)
	}
	if llm.callCount() != 16 {
		t.Fatalf("provider calls = %d, want 16 (no partial call)", llm.callCount())
	}
	withAI := 0
	for _, opp := range opps {
		if opp.AI != nil {
			withAI++
		} else if !opp.CombinedScore.Equal(opp.PMCC.TraditionalScore) {
			t.Errorf("%s without AI has combined %s != traditional %s",
				opp.PMCC.Symbol, opp.CombinedScore, opp.PMCC.TraditionalScore)
		}
	}
	if withAI != 16 {
		t.Fatalf("opportunities with AI = %d, want 16", withAI)
	}
}

func TestEnrichBudgetExactlyReached(t *testing.T) {
	// Limit fits exactly 2 calls; the boundary is ≤, not <.
	llm := &fakeLLM{score: dec(80), cost: dec(0.50)}
	o := newTestOrchestrator(llm, fixedEstimator{dec(0.50)}, dec(1.00))
	o.cfg.MaxConcurrent = 1
	opps := makeOpps(3, 100)

	out := o.Enrich(context.Background(), opps, provider.MarketContext{})
	if out.Analyzed != 2 {
		t.Fatalf("Analyzed = %d, want 2 (budget exactly consumed)", out.Analyzed)
	}
	if out.BudgetExceeded != 1 {
		t.Fatalf("BudgetExceeded = %d, want 1", out.BudgetExceeded)
	}
}

func TestEnrichSkipsLowCompleteness(t *testing.T) {
	llm := &fakeLLM{score: dec(80), cost: dec(0.01)}
	o := newTestOrchestrator(llm, fixedEstimator{dec(0.01)}, dec(10))
	opps := makeOpps(3, 40) // below the 60 floor

	out := o.Enrich(context.Background(), opps, provider.MarketContext{})
	if out.Skipped != 3 || out.Analyzed != 0 {
		t.Fatalf("Skipped = %d Analyzed = %d, want 3/0", out.Skipped, out.Analyzed)
	}
	if llm.callCount() != 0 {
		t.Fatal("ineligible candidates reached the provider")
	}
	for _, opp := range opps {
		if opp.AI != nil {
			t.Error("skipped candidate carries an AI analysis")
		}
		if !opp.CombinedScore.Equal(opp.PMCC.TraditionalScore) {
			t.Error("skipped candidate's combined score drifted from traditional")
		}
	}
}

func TestEnrichParseFailureCountsCost(t *testing.T) {
	opps := makeOpps(2, 100)
	llm := &fakeLLM{
		score: dec(80), cost: dec(0.40),
		errFor: map[string]error{
			opps[0].PMCC.Symbol: provider.NewError(provider.KindParse, "claude", provider.OpAnalyzePMCC, errors.New("bad json")),
		},
	}
	o := newTestOrchestrator(llm, fixedEstimator{dec(0.40)}, dec(10))
	o.cfg.MaxConcurrent = 1

	out := o.Enrich(context.Background(), opps, provider.MarketContext{})
	if out.Failed != 1 || out.Analyzed != 1 {
		t.Fatalf("Failed = %d Analyzed = %d, want 1/1", out.Failed, out.Analyzed)
	}
	// Parse failure keeps its cost: 0.40 (failed) + 0.40 (succeeded).
	if !out.SpentUSD.Equal(dec(0.80)) {
		t.Fatalf("SpentUSD = %s, want 0.80", out.SpentUSD)
	}
}

func TestEnrichCancellationPreservesPartials(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	llm := &fakeLLM{score: dec(80), cost: dec(0.01)}
	o := newTestOrchestrator(llm, fixedEstimator{dec(0.01)}, dec(10))
	opps := makeOpps(5, 100)

	out := o.Enrich(ctx, opps, provider.MarketContext{})
	if out.Analyzed != 0 {
		t.Fatalf("Analyzed = %d after pre-cancelled context", out.Analyzed)
	}
	if out.Cancelled == 0 {
		t.Fatal("no cancellations recorded")
	}
	for _, opp := range opps {
		if opp.AI != nil {
			t.Error("cancelled candidate carries an AI analysis")
		}
		if !opp.CombinedScore.Equal(opp.PMCC.TraditionalScore) {
			t.Error("cancelled candidate's combined score drifted")
		}
	}
}
