package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/openquant/pmccscan/internal/provider"
	"github.com/openquant/pmccscan/pkg/models"
)

const chainPayload = `{
  "s": "ok",
  "optionSymbol": ["AAPL280616C00150000", "AAPL280421C00200000"],
  "underlying": ["AAPL", "AAPL"],
  "side": ["call", "call"],
  "strike": [150, 200],
  "expiration": [1844640000, 1839801600],
  "bid": [44.9, 3.1],
  "ask": [45.3, 3.25],
  "last": [45.0, 3.2],
  "volume": [120, 340],
  "openInterest": [1500, 900],
  "delta": [0.84, 0.29],
  "gamma": [0.002, 0.01],
  "theta": [-0.01, -0.05],
  "vega": [0.4, 0.12],
  "iv": [0.28, 0.31],
  "updated": [1769100000, 1769100000],
  "underlyingPrice": [187.5]
}`

func newChainServer(t *testing.T, payload string, wantQuery map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-token" {
			t.Errorf("Authorization = %q", auth)
		}
		for k, v := range wantQuery {
			if got := r.URL.Query().Get(k); got != v {
				t.Errorf("query %s = %q, want %q", k, got, v)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(payload))
	}))
}

func TestGetOptionChainCachedFeed(t *testing.T) {
	srv := newChainServer(t, chainPayload, map[string]string{"side": "call", "feed": "cached"})
	defer srv.Close()

	p := New("test-token", srv.URL, provider.FeedCached)
	res, err := p.Call(context.Background(), provider.OpGetOptionChain, provider.ChainArgs{
		Underlying: "AAPL",
		Side:       models.Call,
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	chain := res.Data.(*models.OptionChain)
	if len(chain.Contracts) != 2 {
		t.Fatalf("contracts = %d, want 2", len(chain.Contracts))
	}
	// Cached feed is flat one credit regardless of response size.
	if res.Credits != 1 {
		t.Errorf("credits = %d, want 1 on cached feed", res.Credits)
	}
	if !chain.UnderlyingPrice.Equal(decFrom(187.5)) {
		t.Errorf("underlying price = %s", chain.UnderlyingPrice)
	}

	c := chain.Contracts[0]
	if c.Side != models.Call || !c.Strike.Equal(decFrom(150)) {
		t.Errorf("first contract = %+v", c)
	}
	if c.Mid == nil || !c.Mid.Equal(decFrom(45.1)) {
		t.Errorf("mid = %v, want 45.1", c.Mid)
	}
	if c.Delta == nil || !c.Delta.Equal(decFrom(0.84)) {
		t.Errorf("delta = %v", c.Delta)
	}
	if c.DTE <= 0 {
		t.Errorf("dte = %d, want positive", c.DTE)
	}
}

func TestGetOptionChainLiveFeedPerContractCredits(t *testing.T) {
	srv := newChainServer(t, chainPayload, nil)
	defer srv.Close()

	p := New("test-token", srv.URL, provider.FeedLive)
	res, err := p.Call(context.Background(), provider.OpGetOptionChain, provider.ChainArgs{
		Underlying: "AAPL", Feed: provider.FeedLive,
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if res.Credits != 2 {
		t.Errorf("credits = %d, want one per contract on live feed", res.Credits)
	}
}

func TestGetOptionChainNoData(t *testing.T) {
	srv := newChainServer(t, `{"s":"no_data"}`, nil)
	defer srv.Close()

	p := New("test-token", srv.URL, provider.FeedCached)
	_, err := p.Call(context.Background(), provider.OpGetOptionChain, provider.ChainArgs{Underlying: "XXXX"})
	if provider.KindOf(err) != provider.KindNoData {
		t.Fatalf("error kind = %q, want no_data", provider.KindOf(err))
	}
}

func TestGetOptionChainColumnMismatchIsParseError(t *testing.T) {
	bad := `{"s":"ok","optionSymbol":["A","B"],"side":["call","call"],"strike":[150],"expiration":[1844640000,1839801600]}`
	srv := newChainServer(t, bad, nil)
	defer srv.Close()

	p := New("test-token", srv.URL, provider.FeedCached)
	_, err := p.Call(context.Background(), provider.OpGetOptionChain, provider.ChainArgs{Underlying: "AAPL"})
	if provider.KindOf(err) != provider.KindParse {
		t.Fatalf("error kind = %q, want parse_error", provider.KindOf(err))
	}
}

func TestGetExpirations(t *testing.T) {
	srv := newChainServer(t, `{"s":"ok","expirations":["2026-04-17","2026-06-18"]}`, nil)
	defer srv.Close()

	p := New("test-token", srv.URL, provider.FeedCached)
	res, err := p.Call(context.Background(), provider.OpGetExpirations, provider.ExpirationsArgs{Underlying: "AAPL"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	exps := res.Data.([]time.Time)
	if len(exps) != 2 || exps[0].Format("2006-01-02") != "2026-04-17" {
		t.Fatalf("expirations = %v", exps)
	}
}

func TestGetStrikes(t *testing.T) {
	srv := newChainServer(t, `{"s":"ok","2026-04-17":[140,145,150,155]}`, nil)
	defer srv.Close()

	p := New("test-token", srv.URL, provider.FeedCached)
	res, err := p.Call(context.Background(), provider.OpGetStrikes, provider.StrikesArgs{Underlying: "AAPL"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	strikes := res.Data.([]float64)
	if len(strikes) != 4 {
		t.Fatalf("strikes = %v", strikes)
	}
}

func TestGetQuote(t *testing.T) {
	payload := `{"s":"ok","symbol":["AAPL"],"bid":[187.4],"ask":[187.5],"last":[187.45],"volume":[1000000],"updated":[1769100000]}`
	srv := newChainServer(t, payload, nil)
	defer srv.Close()

	p := New("test-token", srv.URL, provider.FeedCached)
	res, err := p.Call(context.Background(), provider.OpGetQuote, provider.QuoteArgs{Symbol: "AAPL"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	q := res.Data.(*models.Quote)
	if q.Bid == nil || !q.Bid.Equal(decFrom(187.4)) {
		t.Errorf("bid = %v", q.Bid)
	}
	if !q.Valid() {
		t.Error("quote invalid")
	}
}

func TestSupportsExactlyDeclaredOps(t *testing.T) {
	p := New("t", "", provider.FeedCached)
	for _, op := range []provider.Op{
		provider.OpGetOptionChain, provider.OpGetExpirations, provider.OpGetStrikes, provider.OpGetQuote,
	} {
		if !p.Supports(op) {
			t.Errorf("Supports(%s) = false", op)
		}
	}
	// The options provider must not claim screening or fundamentals.
	for _, op := range []provider.Op{
		provider.OpScreenStocks, provider.OpGetFundamentals, provider.OpAnalyzePMCC,
	} {
		if p.Supports(op) {
			t.Errorf("Supports(%s) = true, must not be declared", op)
		}
	}
}

func decFrom(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }
