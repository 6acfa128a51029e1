package enhance

import (
	"context"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/openquant/pmccscan/internal/infra"
	"github.com/openquant/pmccscan/pkg/models"
)

// defaultFeeds are the market-news RSS sources scanned for per-symbol
// headlines when config supplies none.
var defaultFeeds = []string{
	"https://feeds.content.dowjones.io/public/rss/mw_topstories",
	"https://www.cnbc.com/id/100003114/device/rss/rss.html",
	"https://finance.yahoo.com/news/rssindex",
}

// maxHeadlinesPerSymbol bounds what reaches the AI dossier.
const maxHeadlinesPerSymbol = 5

// NewsCollector pulls RSS feeds once per scan (cached) and filters
// items per symbol.
type NewsCollector struct {
	feeds  []string
	parser *gofeed.Parser
	cache  *infra.Cache
}

// NewNewsCollector creates a collector over the given feed URLs.
func NewNewsCollector(feeds []string) *NewsCollector {
	if len(feeds) == 0 {
		feeds = defaultFeeds
	}
	return &NewsCollector{
		feeds:  feeds,
		parser: gofeed.NewParser(),
		cache:  infra.NewCache(15 * time.Minute),
	}
}

// Headlines returns recent items mentioning the symbol. Feed failures
// are silent; headlines are enrichment, not requirements.
func (n *NewsCollector) Headlines(ctx context.Context, symbol string) []models.NewsHeadline {
	items := n.allItems(ctx)
	if len(items) == 0 {
		return nil
	}

	needle := strings.ToUpper(symbol)
	var out []models.NewsHeadline
	for _, h := range items {
		if len(out) >= maxHeadlinesPerSymbol {
			break
		}
		if mentionsSymbol(h.Title, needle) {
			out = append(out, h)
		}
	}
	return out
}

// allItems fetches and caches every configured feed's items.
func (n *NewsCollector) allItems(ctx context.Context) []models.NewsHeadline {
	v, _, err := n.cache.GetOrFetch("feeds", func() (any, error) {
		var items []models.NewsHeadline
		for _, url := range n.feeds {
			feed, err := n.parser.ParseURLWithContext(url, ctx)
			if err != nil {
				continue
			}
			source := feed.Title
			for _, it := range feed.Items {
				h := models.NewsHeadline{
					Title:  it.Title,
					Source: source,
					Link:   it.Link,
				}
				if it.PublishedParsed != nil {
					h.PublishedAt = it.PublishedParsed.UTC()
				}
				items = append(items, h)
			}
		}
		return items, nil
	})
	if err != nil {
		return nil
	}
	return v.([]models.NewsHeadline)
}

// mentionsSymbol looks for the ticker as a standalone token, avoiding
// substring hits inside unrelated words.
func mentionsSymbol(title, symbol string) bool {
	upper := strings.ToUpper(title)
	idx := 0
	for {
		i := strings.Index(upper[idx:], symbol)
		if i < 0 {
			return false
		}
		i += idx
		before := i == 0 || !isWordChar(upper[i-1])
		afterIdx := i + len(symbol)
		after := afterIdx >= len(upper) || !isWordChar(upper[afterIdx])
		if before && after {
			return true
		}
		idx = i + len(symbol)
	}
}

func isWordChar(b byte) bool {
	return b >= 'A' && b <= 'Z' || b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}
