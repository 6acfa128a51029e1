package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Providers.EODHD.APIKey = "test-key"
	cfg.Providers.MarketData.APIKey = "test-key"
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Strategy.LEAPS.MinDTE != 270 || cfg.Strategy.LEAPS.MaxDTE != 720 {
		t.Errorf("leaps dte defaults = %d–%d, want 270–720", cfg.Strategy.LEAPS.MinDTE, cfg.Strategy.LEAPS.MaxDTE)
	}
	if cfg.Strategy.ShortCall.MinDelta != 0.20 || cfg.Strategy.ShortCall.MaxDelta != 0.35 {
		t.Errorf("short delta defaults = %v–%v, want 0.20–0.35", cfg.Strategy.ShortCall.MinDelta, cfg.Strategy.ShortCall.MaxDelta)
	}
	if cfg.Scan.TopK != 10 {
		t.Errorf("top_k default = %d, want 10", cfg.Scan.TopK)
	}
	if cfg.Scan.Deadline != 30*time.Minute {
		t.Errorf("deadline default = %v, want 30m", cfg.Scan.Deadline)
	}
	if cfg.AI.MaxConcurrentAnalyses != 3 {
		t.Errorf("max_concurrent_analyses default = %d, want 3", cfg.AI.MaxConcurrentAnalyses)
	}
	if got := cfg.Providers.Routes["get_option_chain"]; len(got) != 1 || got[0] != "marketdata" {
		t.Errorf("get_option_chain route = %v, want [marketdata]", got)
	}
	if cfg.Notifications.Mode != "primary_with_fallback" {
		t.Errorf("notification mode default = %q", cfg.Notifications.Mode)
	}
}

func TestValidateRejectsMissingKeys(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate accepted a config with no API keys")
	}
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidateWeightsMustSumToOne(t *testing.T) {
	cfg := validConfig()
	cfg.Scoring.RiskWeight = 0.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate accepted scoring weights summing past 1.0")
	}
}

func TestValidateCustomUniverseNeedsSymbols(t *testing.T) {
	cfg := validConfig()
	cfg.Screening.Universe = "custom_symbols"
	cfg.Screening.Symbols = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate accepted custom_symbols with empty symbol list")
	}
}

func TestValidateAIRequiresClaudeKey(t *testing.T) {
	cfg := validConfig()
	cfg.AI.Enabled = true
	cfg.Providers.Claude.APIKey = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate accepted ai.enabled without a claude key")
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
providers:
  eodhd:
    api_key: file-key
screening:
  universe: custom_symbols
  symbols: [AAPL, MSFT]
scan:
  top_k: 5
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if cfg.Providers.EODHD.APIKey != "file-key" {
		t.Errorf("api key = %q, want file-key", cfg.Providers.EODHD.APIKey)
	}
	if cfg.Scan.TopK != 5 {
		t.Errorf("top_k = %d, want 5 from file", cfg.Scan.TopK)
	}
	if len(cfg.Screening.Symbols) != 2 {
		t.Errorf("symbols = %v", cfg.Screening.Symbols)
	}
	// Untouched sections keep their defaults.
	if cfg.Strategy.LEAPS.MinDTE != 270 {
		t.Errorf("leaps min dte = %d, want default 270", cfg.Strategy.LEAPS.MinDTE)
	}
}

func TestEnvOverridesCredentials(t *testing.T) {
	t.Setenv("EODHD_API_KEY", "env-key")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Providers.EODHD.APIKey != "env-key" {
		t.Errorf("api key = %q, want env-key", cfg.Providers.EODHD.APIKey)
	}
}

func TestSnapshotHasNoSecrets(t *testing.T) {
	cfg := validConfig()
	snap := cfg.Snapshot()
	for section, v := range snap {
		m, ok := v.(map[string]any)
		if !ok {
			t.Fatalf("snapshot section %q is not a map", section)
		}
		for k := range m {
			if k == "api_key" || k == "bot_token" || k == "password" {
				t.Errorf("snapshot leaks %s.%s", section, k)
			}
		}
	}
}
