package screener

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/openquant/pmccscan/internal/infra"
)

// sp500URL serves the S&P 500 constituents as an HTML table.
const sp500URL = "https://en.wikipedia.org/wiki/List_of_S%26P_500_companies"

// UniverseResolver maps a named predefined list to its symbols. Scraped
// lists are cached for a day and fall back to a static snapshot when the
// source is unreachable.
type UniverseResolver struct {
	cache *infra.Cache
}

// NewUniverseResolver creates a resolver.
func NewUniverseResolver() *UniverseResolver {
	return &UniverseResolver{cache: infra.NewCache(24 * time.Hour)}
}

// Resolve returns the symbols of a named list. Known lists: "sp500"
// (scraped, static fallback) and "megacap" (static).
func (u *UniverseResolver) Resolve(ctx context.Context, list string) ([]string, error) {
	switch strings.ToLower(list) {
	case "", "sp500":
		return u.sp500(ctx)
	case "megacap":
		return append([]string(nil), megacapList...), nil
	default:
		return nil, fmt.Errorf("unknown predefined list %q", list)
	}
}

func (u *UniverseResolver) sp500(ctx context.Context) ([]string, error) {
	v, _, err := u.cache.GetOrFetch("sp500", func() (any, error) {
		symbols, err := scrapeSP500(ctx)
		if err != nil || len(symbols) < 400 {
			// Source unreachable or mangled; the static snapshot keeps
			// the scan running.
			return append([]string(nil), megacapList...), nil
		}
		return symbols, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

// scrapeSP500 parses the constituents table.
func scrapeSP500(ctx context.Context) ([]string, error) {
	body, _, err := infra.DoGet(ctx, sp500URL, map[string]string{"Accept": "text/html"})
	if err != nil {
		return nil, err
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse constituents page: %w", err)
	}

	var symbols []string
	doc.Find("table#constituents tbody tr").Each(func(_ int, row *goquery.Selection) {
		sym := strings.TrimSpace(row.Find("td").First().Text())
		if sym == "" {
			return
		}
		// Class-share tickers use dots upstream, dashes on data feeds.
		symbols = append(symbols, strings.ReplaceAll(sym, ".", "-"))
	})
	return symbols, nil
}

// megacapList is the static fallback universe: liquid large caps with
// active LEAPS markets.
var megacapList = []string{
	"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA", "META", "TSLA", "BRK-B",
	"AVGO", "LLY", "JPM", "V", "UNH", "XOM", "MA", "JNJ", "PG", "HD",
	"COST", "ORCL", "ABBV", "MRK", "CVX", "CRM", "BAC", "KO", "AMD",
	"PEP", "NFLX", "TMO", "WMT", "ADBE", "CSCO", "ACN", "LIN", "MCD",
	"ABT", "INTU", "DIS", "WFC", "TXN", "QCOM", "IBM", "GE", "CAT",
	"VZ", "AMGN", "PFE", "NOW", "NKE", "AXP", "MS", "GS", "UNP", "T",
	"RTX", "SPGI", "LOW", "HON", "UPS", "BLK", "BA", "SBUX", "PLTR",
	"DE", "MDT", "GILD", "LMT", "TJX", "BKNG", "MMC", "ADP", "C",
}
