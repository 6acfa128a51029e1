package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/phuslu/log"
)

// mockProvider implements Provider for registry tests.
type mockProvider struct {
	id      string
	ops     []Op
	credits int
	callFn  func(ctx context.Context, op Op, args any) (*Result, error)
	calls   int
}

func newMockProvider(id string, ops ...Op) *mockProvider {
	return &mockProvider{id: id, ops: ops, credits: 1}
}

func (m *mockProvider) ID() string         { return m.id }
func (m *mockProvider) SupportedOps() []Op { return m.ops }

func (m *mockProvider) Supports(op Op) bool {
	for _, o := range m.ops {
		if o == op {
			return true
		}
	}
	return false
}

func (m *mockProvider) EstimateCredits(Op, any) int       { return m.credits }
func (m *mockProvider) HealthProbe(context.Context) error { return nil }

func (m *mockProvider) Call(ctx context.Context, op Op, args any) (*Result, error) {
	m.calls++
	if m.callFn != nil {
		return m.callFn(ctx, op, args)
	}
	return &Result{Data: m.id + ":ok", Credits: m.credits, Latency: time.Millisecond}, nil
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry(RegistryConfig{RetryAttempts: 2, BackoffBase: time.Millisecond}, log.Logger{Level: log.PanicLevel})
	r.sleep = func(context.Context, time.Duration) error { return nil } // no real waits in tests
	return r
}

func TestRegistryRoutesToPreferredProvider(t *testing.T) {
	r := newTestRegistry(t)
	primary := newMockProvider("o", OpGetQuote, OpGetOptionChain)
	fallback := newMockProvider("f", OpGetQuote, OpScreenStocks)

	if err := r.Register(primary, BreakerConfig{}, nil, 0); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(fallback, BreakerConfig{}, nil, 0); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.SetRoute(OpGetQuote, "o", "f"); err != nil {
		t.Fatalf("SetRoute: %v", err)
	}

	res, err := r.Execute(context.Background(), OpGetQuote, QuoteArgs{Symbol: "AAPL"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Data != "o:ok" {
		t.Fatalf("Data = %v, want preferred provider o", res.Data)
	}
	if fallback.calls != 0 {
		t.Fatalf("fallback received %d calls, want 0", fallback.calls)
	}
}

func TestRegistryRefusesUndeclaredOp(t *testing.T) {
	r := newTestRegistry(t)
	f := newMockProvider("f", OpScreenStocks)
	if err := r.Register(f, BreakerConfig{}, nil, 0); err != nil {
		t.Fatalf("Register: %v", err)
	}
	err := r.SetRoute(OpGetOptionChain, "f")
	if KindOf(err) != KindUnsupportedOp {
		t.Fatalf("SetRoute error kind = %q, want %q", KindOf(err), KindUnsupportedOp)
	}
}

func TestRegistryNoProviderAvailable(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Execute(context.Background(), OpGetQuote, QuoteArgs{Symbol: "AAPL"})
	if KindOf(err) != KindNoProvider {
		t.Fatalf("error kind = %q, want %q", KindOf(err), KindNoProvider)
	}
}

func TestRegistryRetriesTransientThenSucceeds(t *testing.T) {
	r := newTestRegistry(t)
	p := newMockProvider("o", OpGetQuote)
	fails := 2
	p.callFn = func(ctx context.Context, op Op, args any) (*Result, error) {
		if fails > 0 {
			fails--
			return nil, NewError(KindTransient, "o", op, errors.New("503"))
		}
		return &Result{Data: "ok", Credits: 1}, nil
	}
	if err := r.Register(p, BreakerConfig{}, nil, 0); err != nil {
		t.Fatal(err)
	}
	if err := r.SetRoute(OpGetQuote, "o"); err != nil {
		t.Fatal(err)
	}

	res, err := r.Execute(context.Background(), OpGetQuote, QuoteArgs{Symbol: "MSFT"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Data != "ok" {
		t.Fatalf("Data = %v", res.Data)
	}
	if p.calls != 3 {
		t.Fatalf("calls = %d, want 3 (1 + 2 retries)", p.calls)
	}
}

func TestRegistryClientErrorNotRetried(t *testing.T) {
	r := newTestRegistry(t)
	p := newMockProvider("f", OpGetFundamentals)
	p.callFn = func(ctx context.Context, op Op, args any) (*Result, error) {
		return nil, NewError(KindClient, "f", op, errors.New("404"))
	}
	if err := r.Register(p, BreakerConfig{}, nil, 0); err != nil {
		t.Fatal(err)
	}
	if err := r.SetRoute(OpGetFundamentals, "f"); err != nil {
		t.Fatal(err)
	}

	_, err := r.Execute(context.Background(), OpGetFundamentals, FundamentalsArgs{Symbol: "AAPL"})
	if KindOf(err) != KindClient {
		t.Fatalf("error kind = %q, want %q", KindOf(err), KindClient)
	}
	if p.calls != 1 {
		t.Fatalf("calls = %d, want 1 (no retry on client error)", p.calls)
	}
}

func TestRegistryFallbackAfterTerminalFailure(t *testing.T) {
	r := newTestRegistry(t)
	bad := newMockProvider("o", OpGetQuote)
	bad.callFn = func(ctx context.Context, op Op, args any) (*Result, error) {
		return nil, NewError(KindTransient, "o", op, errors.New("connection reset"))
	}
	good := newMockProvider("f", OpGetQuote)

	if err := r.Register(bad, BreakerConfig{}, nil, 0); err != nil {
		t.Fatal(err)
	}
	if err := r.Register(good, BreakerConfig{}, nil, 0); err != nil {
		t.Fatal(err)
	}
	if err := r.SetRoute(OpGetQuote, "o", "f"); err != nil {
		t.Fatal(err)
	}

	res, err := r.Execute(context.Background(), OpGetQuote, QuoteArgs{Symbol: "NVDA"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Data != "f:ok" {
		t.Fatalf("Data = %v, want fallback provider f", res.Data)
	}
	if bad.calls != 3 {
		t.Fatalf("primary calls = %d, want 3 before fallback", bad.calls)
	}
}

func TestRegistryBreakerOpensAfterFailures(t *testing.T) {
	r := newTestRegistry(t)
	p := newMockProvider("o", OpGetOptionChain)
	p.callFn = func(ctx context.Context, op Op, args any) (*Result, error) {
		return nil, NewError(KindTransient, "o", op, errors.New("timeout"))
	}
	// Threshold 5: one Execute = 3 attempts, a second Execute trips it.
	if err := r.Register(p, BreakerConfig{FailureThreshold: 5, Cooldown: time.Hour}, nil, 0); err != nil {
		t.Fatal(err)
	}
	if err := r.SetRoute(OpGetOptionChain, "o"); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	r.Execute(ctx, OpGetOptionChain, ChainArgs{Underlying: "AAPL"}) // 3 failures
	r.Execute(ctx, OpGetOptionChain, ChainArgs{Underlying: "AAPL"}) // 2 more → open

	calls := p.calls
	_, err := r.Execute(ctx, OpGetOptionChain, ChainArgs{Underlying: "AAPL"})
	if KindOf(err) != KindCircuitOpen {
		t.Fatalf("error kind = %q, want %q", KindOf(err), KindCircuitOpen)
	}
	if p.calls != calls {
		t.Fatalf("open breaker still let %d calls through", p.calls-calls)
	}
}

func TestRegistryCreditBudgetExceeded(t *testing.T) {
	r := newTestRegistry(t)
	p := newMockProvider("f", OpScreenStocks)
	p.credits = 40
	if err := r.Register(p, BreakerConfig{}, nil, 100); err != nil {
		t.Fatal(err)
	}
	if err := r.SetRoute(OpScreenStocks, "f"); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := r.Execute(ctx, OpScreenStocks, ScreenArgs{}); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	// 80 used; a 40-credit call would cross 100 and must be refused
	// without calling out.
	calls := p.calls
	_, err := r.Execute(ctx, OpScreenStocks, ScreenArgs{})
	if KindOf(err) != KindBudget {
		t.Fatalf("error kind = %q, want %q", KindOf(err), KindBudget)
	}
	if p.calls != calls {
		t.Fatal("budget-refused op still reached the provider")
	}
}

func TestRegistryUsageAccounting(t *testing.T) {
	r := newTestRegistry(t)
	p := newMockProvider("o", OpGetQuote)
	if err := r.Register(p, BreakerConfig{}, nil, 0); err != nil {
		t.Fatal(err)
	}
	if err := r.SetRoute(OpGetQuote, "o"); err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if _, err := r.Execute(ctx, OpGetQuote, QuoteArgs{Symbol: "AAPL"}); err != nil {
			t.Fatal(err)
		}
	}

	st := r.Status()["o"]
	if st.Calls != 4 {
		t.Fatalf("Calls = %d, want 4", st.Calls)
	}
	if st.Credits != 4 {
		t.Fatalf("Credits = %d, want 4", st.Credits)
	}
	if st.Errors != 0 {
		t.Fatalf("Errors = %d, want 0", st.Errors)
	}
}
