package analyzer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/phuslu/log"
	"github.com/shopspring/decimal"

	"github.com/openquant/pmccscan/internal/provider"
	"github.com/openquant/pmccscan/internal/scoring"
	"github.com/openquant/pmccscan/pkg/models"
)

var testNow = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

// fakeExecutor returns a canned chain (or error) for get_option_chain.
type fakeExecutor struct {
	chain *models.OptionChain
	err   error
}

func (f *fakeExecutor) Execute(ctx context.Context, op provider.Op, args any) (*provider.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &provider.Result{Data: f.chain, Credits: 1}, nil
}

func dec(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }
func decPtr(f float64) *decimal.Decimal {
	d := decimal.NewFromFloat(f)
	return &d
}

func contract(strike, bid, ask, delta float64, dte int, oi int64) models.OptionContract {
	c := models.OptionContract{
		Underlying:   "TEST",
		Side:         models.Call,
		Strike:       dec(strike),
		Expiration:   testNow.AddDate(0, 0, dte),
		Bid:          decPtr(bid),
		Ask:          decPtr(ask),
		Delta:        decPtr(delta),
		OpenInterest: oi,
		Volume:       500,
		UpdatedAt:    testNow,
	}
	c.Normalize(testNow)
	return c
}

func testOptions() Options {
	return Options{
		LEAPS:         models.DefaultLEAPSCriteria(),
		ShortCall:     models.DefaultShortCallCriteria(),
		MaxCandidates: 3,
	}
}

func newTestAnalyzer(exec provider.Executor, opts Options) *Analyzer {
	a := New(exec, scoring.New(scoring.DefaultConfig()), opts, log.Logger{Level: log.PanicLevel})
	a.now = func() time.Time { return testNow }
	return a
}

func testQuote(last float64) models.Quote {
	l := dec(last)
	return models.Quote{Symbol: "TEST", Last: &l, UpdatedAt: testNow}
}

// goodChain has one valid LEAPS leg and two valid short legs.
func goodChain() *models.OptionChain {
	return &models.OptionChain{
		Underlying:      "TEST",
		UnderlyingPrice: dec(100),
		UpdatedAt:       testNow,
		Contracts: []models.OptionContract{
			contract(80, 26.80, 27.40, 0.85, 400, 900), // LEAPS
			contract(110, 2.90, 3.05, 0.30, 30, 400),   // short
			contract(115, 1.80, 1.95, 0.22, 30, 250),   // short
			contract(95, 9.00, 9.40, 0.60, 200, 100),   // matches neither leg
		},
	}
}

func TestAnalyzeProducesCandidates(t *testing.T) {
	a := newTestAnalyzer(&fakeExecutor{chain: goodChain()}, testOptions())

	res, err := a.Analyze(context.Background(), "TEST", testQuote(100))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(res.Candidates) != 2 {
		t.Fatalf("candidates = %d, want 2", len(res.Candidates))
	}
	for _, c := range res.Candidates {
		if !c.LongLeaps.Strike.LessThanOrEqual(c.UnderlyingPrice) {
			t.Errorf("long strike %s above underlying %s", c.LongLeaps.Strike, c.UnderlyingPrice)
		}
		if !c.ShortCall.Strike.GreaterThan(c.UnderlyingPrice) {
			t.Errorf("short strike %s not above underlying", c.ShortCall.Strike)
		}
		if !c.ShortCall.Strike.GreaterThan(c.LongLeaps.Strike.Add(c.NetDebit)) {
			t.Errorf("profitability guard violated: short %s, breakeven %s",
				c.ShortCall.Strike, c.LongLeaps.Strike.Add(c.NetDebit))
		}
		if !c.MaxProfit.IsPositive() || !c.MaxLoss.IsPositive() {
			t.Errorf("non-positive economics: profit %s loss %s", c.MaxProfit, c.MaxLoss)
		}
		if !c.BreakevenPrice.Equal(c.LongLeaps.Strike.Add(c.NetDebit)) {
			t.Errorf("breakeven %s != long strike + debit", c.BreakevenPrice)
		}
	}
	// Sorted by traditional score descending.
	if res.Candidates[0].TraditionalScore.LessThan(res.Candidates[1].TraditionalScore) {
		t.Error("candidates not sorted by score")
	}
}

func TestAnalyzeEmptyChainIsWarningNotError(t *testing.T) {
	a := newTestAnalyzer(&fakeExecutor{chain: &models.OptionChain{Underlying: "TEST"}}, testOptions())

	res, err := a.Analyze(context.Background(), "TEST", testQuote(100))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(res.Candidates) != 0 {
		t.Fatalf("candidates = %d, want 0", len(res.Candidates))
	}
	if len(res.Warnings) != 1 || res.Warnings[0] != WarningNoChain {
		t.Fatalf("warnings = %v, want [NoChain]", res.Warnings)
	}
}

func TestAnalyzeNoDataProviderErrorIsWarning(t *testing.T) {
	a := newTestAnalyzer(&fakeExecutor{
		err: provider.Errorf(provider.KindNoData, "marketdata", provider.OpGetOptionChain, "no chain"),
	}, testOptions())

	res, err := a.Analyze(context.Background(), "TEST", testQuote(100))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(res.Warnings) != 1 || res.Warnings[0] != WarningNoChain {
		t.Fatalf("warnings = %v, want [NoChain]", res.Warnings)
	}
}

func TestAnalyzeProviderErrorPropagates(t *testing.T) {
	a := newTestAnalyzer(&fakeExecutor{
		err: provider.NewError(provider.KindCircuitOpen, "marketdata", provider.OpGetOptionChain, errors.New("open")),
	}, testOptions())

	_, err := a.Analyze(context.Background(), "TEST", testQuote(100))
	if provider.KindOf(err) != provider.KindCircuitOpen {
		t.Fatalf("error kind = %q, want circuit_open", provider.KindOf(err))
	}
}

func TestAnalyzeMislabelledITMContractFiltered(t *testing.T) {
	// A contract with LEAPS-like delta but strike above the underlying
	// must be excluded by the strike ≤ underlying guard.
	chain := goodChain()
	chain.Contracts = append(chain.Contracts, contract(120, 26.00, 26.60, 0.85, 400, 800))

	a := newTestAnalyzer(&fakeExecutor{chain: chain}, testOptions())
	res, err := a.Analyze(context.Background(), "TEST", testQuote(100))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	for _, c := range res.Candidates {
		if c.LongLeaps.Strike.Equal(dec(120)) {
			t.Fatal("mislabelled OTM contract used as LEAPS leg")
		}
	}
	if res.InvariantViolations != 1 {
		t.Fatalf("InvariantViolations = %d, want 1", res.InvariantViolations)
	}
}

func TestAnalyzeDeltaBoundsAreClosed(t *testing.T) {
	// Delta exactly at min_delta is included.
	chain := &models.OptionChain{
		Underlying:      "TEST",
		UnderlyingPrice: dec(100),
		UpdatedAt:       testNow,
		Contracts: []models.OptionContract{
			contract(80, 26.80, 27.40, 0.75, 400, 900), // exactly min LEAPS delta
			contract(112, 2.50, 2.65, 0.20, 30, 400),   // exactly min short delta
		},
	}
	a := newTestAnalyzer(&fakeExecutor{chain: chain}, testOptions())
	res, err := a.Analyze(context.Background(), "TEST", testQuote(100))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(res.Candidates) != 1 {
		t.Fatalf("candidates = %d, want 1 (closed delta intervals)", len(res.Candidates))
	}
}

func TestAnalyzeZeroNetDebitRejected(t *testing.T) {
	chain := &models.OptionChain{
		Underlying:      "TEST",
		UnderlyingPrice: dec(100),
		UpdatedAt:       testNow,
		Contracts: []models.OptionContract{
			contract(80, 2.40, 2.50, 0.85, 400, 900), // ask == short bid → zero debit
			contract(110, 2.50, 2.60, 0.30, 30, 400),
		},
	}
	a := newTestAnalyzer(&fakeExecutor{chain: chain}, testOptions())
	res, err := a.Analyze(context.Background(), "TEST", testQuote(100))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(res.Candidates) != 0 {
		t.Fatalf("candidates = %d, want 0 for zero net debit", len(res.Candidates))
	}
}

func TestAnalyzeEqualExpirationsRejected(t *testing.T) {
	chain := &models.OptionChain{
		Underlying:      "TEST",
		UnderlyingPrice: dec(100),
		UpdatedAt:       testNow,
		Contracts: []models.OptionContract{
			contract(80, 26.80, 27.40, 0.85, 300, 900),
			contract(110, 2.90, 3.05, 0.30, 300, 400), // same expiry as long
		},
	}
	opts := testOptions()
	opts.ShortCall.MaxDTE = 400 // let the short criteria admit the far leg
	a := newTestAnalyzer(&fakeExecutor{chain: chain}, opts)

	res, err := a.Analyze(context.Background(), "TEST", testQuote(100))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(res.Candidates) != 0 {
		t.Fatalf("candidates = %d, want 0 for equal expirations", len(res.Candidates))
	}
}

func TestAnalyzeIlliquidLegsFiltered(t *testing.T) {
	chain := goodChain()
	// Zero-bid short leg must not pair.
	chain.Contracts[1].Bid = decPtr(0)
	chain.Contracts[2].OpenInterest = 1 // below min OI

	a := newTestAnalyzer(&fakeExecutor{chain: chain}, testOptions())
	res, err := a.Analyze(context.Background(), "TEST", testQuote(100))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(res.Candidates) != 0 {
		t.Fatalf("candidates = %d, want 0 after liquidity filters", len(res.Candidates))
	}
}

func TestAnalyzeNonStandardExcludedByDefault(t *testing.T) {
	chain := goodChain()
	for i := range chain.Contracts {
		chain.Contracts[i].NonStandard = true
	}

	a := newTestAnalyzer(&fakeExecutor{chain: chain}, testOptions())
	res, err := a.Analyze(context.Background(), "TEST", testQuote(100))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(res.Candidates) != 0 {
		t.Fatal("non-standard contracts paired without allow_non_standard")
	}

	opts := testOptions()
	opts.AllowNonStandard = true
	a = newTestAnalyzer(&fakeExecutor{chain: goodChainNonStandard()}, opts)
	res, err = a.Analyze(context.Background(), "TEST", testQuote(100))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(res.Candidates) == 0 {
		t.Fatal("allow_non_standard did not admit non-standard contracts")
	}
}

func goodChainNonStandard() *models.OptionChain {
	ch := goodChain()
	for i := range ch.Contracts {
		ch.Contracts[i].NonStandard = true
	}
	return ch
}

func TestAnalyzeMaxCandidatesCap(t *testing.T) {
	chain := goodChain()
	// Add more short legs so the cartesian product exceeds the cap.
	chain.Contracts = append(chain.Contracts,
		contract(112, 2.40, 2.55, 0.26, 35, 300),
		contract(118, 1.40, 1.52, 0.21, 42, 200),
	)
	opts := testOptions()
	opts.MaxCandidates = 2
	a := newTestAnalyzer(&fakeExecutor{chain: chain}, opts)

	res, err := a.Analyze(context.Background(), "TEST", testQuote(100))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(res.Candidates) != 2 {
		t.Fatalf("candidates = %d, want cap of 2", len(res.Candidates))
	}
}

func TestAnalyzeMinScoreCut(t *testing.T) {
	opts := testOptions()
	opts.MinScore = dec(99) // nothing realistic clears this
	a := newTestAnalyzer(&fakeExecutor{chain: goodChain()}, opts)

	res, err := a.Analyze(context.Background(), "TEST", testQuote(100))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(res.Candidates) != 0 {
		t.Fatalf("candidates = %d, want 0 below the score floor", len(res.Candidates))
	}
}

func TestFlagEarlyAssignment(t *testing.T) {
	a := newTestAnalyzer(&fakeExecutor{chain: goodChain()}, testOptions())
	res, err := a.Analyze(context.Background(), "TEST", testQuote(100))
	if err != nil || len(res.Candidates) == 0 {
		t.Fatalf("Analyze: %v (%d candidates)", err, len(res.Candidates))
	}
	c := res.Candidates[0]

	exDiv := c.ShortCall.Expiration.AddDate(0, 0, -10)
	bigDividend := dec(50) // far above any short-leg extrinsic
	events := &models.CalendarEvents{ExDividendDate: &exDiv, DividendAmount: &bigDividend}

	FlagEarlyAssignment(c, events)
	found := false
	for _, w := range c.Warnings {
		if w == WarningEarlyAssignment {
			found = true
		}
	}
	if !found {
		t.Fatal("early-assignment risk not flagged")
	}

	// A dividend after the short expiration must not flag.
	c2 := res.Candidates[len(res.Candidates)-1]
	late := c2.ShortCall.Expiration.AddDate(0, 0, 5)
	events2 := &models.CalendarEvents{ExDividendDate: &late, DividendAmount: &bigDividend}
	FlagEarlyAssignment(c2, events2)
	for _, w := range c2.Warnings {
		if w == WarningEarlyAssignment {
			t.Fatal("flagged a dividend outside the short leg's life")
		}
	}
}
