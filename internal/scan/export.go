package scan

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/openquant/pmccscan/pkg/models"
)

// Exporter writes the scan artifacts: the full ScanResults JSON and a
// one-row-per-opportunity CSV summary. Writes are atomic — a temp file
// in the target directory renamed into place on close.
type Exporter struct {
	jsonPath string
	csvPath  string
}

// NewExporter creates an Exporter. Empty paths disable that artifact.
func NewExporter(jsonPath, csvPath string) *Exporter {
	return &Exporter{jsonPath: jsonPath, csvPath: csvPath}
}

// Export writes both artifacts. A failure on one does not block the
// other; the first error is returned.
func (e *Exporter) Export(results *models.ScanResults) error {
	var firstErr error
	if e.jsonPath != "" {
		if err := e.exportJSON(results); err != nil {
			firstErr = err
		}
	}
	if e.csvPath != "" {
		if err := e.exportCSV(results); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (e *Exporter) exportJSON(results *models.ScanResults) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal results: %w", err)
	}
	return atomicWrite(e.jsonPath, data)
}

// csvHeader is the tabular summary's column set.
var csvHeader = []string{
	"symbol", "underlying_price", "long_strike", "long_exp", "short_strike", "short_exp",
	"net_debit", "max_profit", "max_loss", "breakeven",
	"traditional_score", "ai_score", "combined_score", "recommendation",
}

func (e *Exporter) exportCSV(results *models.ScanResults) error {
	var sb strings.Builder
	w := csv.NewWriter(&sb)

	if err := w.Write(csvHeader); err != nil {
		return err
	}
	for _, opp := range results.Opportunities {
		c := &opp.PMCC
		aiScore, rec := "", ""
		if opp.AI != nil {
			aiScore = opp.AI.AIScore.Round(2).String()
			rec = string(opp.AI.Recommendation)
		}
		row := []string{
			c.Symbol,
			c.UnderlyingPrice.Round(2).String(),
			c.LongLeaps.Strike.Round(2).String(),
			c.LongLeaps.Expiration.Format("2006-01-02"),
			c.ShortCall.Strike.Round(2).String(),
			c.ShortCall.Expiration.Format("2006-01-02"),
			c.NetDebit.Round(2).String(),
			c.MaxProfit.Round(2).String(),
			c.MaxLoss.Round(2).String(),
			c.BreakevenPrice.Round(2).String(),
			c.TraditionalScore.Round(2).String(),
			aiScore,
			opp.CombinedScore.Round(2).String(),
			rec,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return atomicWrite(e.csvPath, []byte(sb.String()))
}

// atomicWrite writes data to a temp file in the target's directory and
// renames it into place.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename artifact into place: %w", err)
	}
	return nil
}
