// Package config handles configuration loading for the PMCC scanner.
// It supports YAML config files with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the complete application configuration. The scan pipeline
// consumes it as a read-only struct.
type Config struct {
	Providers     ProvidersConfig    `mapstructure:"providers"     yaml:"providers"     json:"providers"`
	Screening     ScreeningConfig    `mapstructure:"screening"     yaml:"screening"     json:"screening"`
	Strategy      StrategyConfig     `mapstructure:"strategy"      yaml:"strategy"      json:"strategy"`
	Scoring       ScoringConfig      `mapstructure:"scoring"       yaml:"scoring"       json:"scoring"`
	AI            AIConfig           `mapstructure:"ai"            yaml:"ai"            json:"ai"`
	Notifications NotificationConfig `mapstructure:"notifications" yaml:"notifications" json:"notifications"`
	Scan          ScanConfig         `mapstructure:"scan"          yaml:"scan"          json:"scan"`
	Export        ExportConfig       `mapstructure:"export"        yaml:"export"        json:"export"`
	Logging       LoggingConfig      `mapstructure:"logging"       yaml:"logging"       json:"logging"`
}

// ProvidersConfig wires the three upstream data providers and the
// per-operation routing preferences.
type ProvidersConfig struct {
	EODHD      EODHDConfig         `mapstructure:"eodhd"       yaml:"eodhd"       json:"eodhd"`
	MarketData MarketDataConfig    `mapstructure:"marketdata"  yaml:"marketdata"  json:"marketdata"`
	Claude     ClaudeConfig        `mapstructure:"claude"      yaml:"claude"      json:"claude"`
	Routes     map[string][]string `mapstructure:"routes"    yaml:"routes"      json:"routes"` // op → ordered provider preference
	Retry      RetryConfig         `mapstructure:"retry"       yaml:"retry"       json:"retry"`
	Breaker    BreakerConfig       `mapstructure:"breaker"     yaml:"breaker"     json:"breaker"`
}

// EODHDConfig configures the screening/fundamentals provider (F).
type EODHDConfig struct {
	Enabled           bool    `mapstructure:"enabled"             yaml:"enabled"             json:"enabled"`
	APIKey            string  `mapstructure:"api_key"             yaml:"api_key"             json:"-"`
	BaseURL           string  `mapstructure:"base_url"            yaml:"base_url"            json:"base_url"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second" json:"requests_per_second"`
	DailyLimit        int64   `mapstructure:"daily_limit"         yaml:"daily_limit"         json:"daily_limit"`
	CreditBudget      int64   `mapstructure:"credit_budget"       yaml:"credit_budget"       json:"credit_budget"`
	MaxInFlight       int64   `mapstructure:"max_in_flight"       yaml:"max_in_flight"       json:"max_in_flight"`
}

// MarketDataConfig configures the options/quotes provider (O).
type MarketDataConfig struct {
	Enabled           bool    `mapstructure:"enabled"             yaml:"enabled"             json:"enabled"`
	APIKey            string  `mapstructure:"api_key"             yaml:"api_key"             json:"-"`
	BaseURL           string  `mapstructure:"base_url"            yaml:"base_url"            json:"base_url"`
	Feed              string  `mapstructure:"feed"                yaml:"feed"                json:"feed"` // "live" or "cached"
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second" json:"requests_per_second"`
	DailyLimit        int64   `mapstructure:"daily_limit"         yaml:"daily_limit"         json:"daily_limit"`
	CreditBudget      int64   `mapstructure:"credit_budget"       yaml:"credit_budget"       json:"credit_budget"`
	MaxInFlight       int64   `mapstructure:"max_in_flight"       yaml:"max_in_flight"       json:"max_in_flight"`
}

// ClaudeConfig configures the LLM analysis provider (L).
type ClaudeConfig struct {
	Enabled     bool    `mapstructure:"enabled"      yaml:"enabled"      json:"enabled"`
	APIKey      string  `mapstructure:"api_key"      yaml:"api_key"      json:"-"`
	BaseURL     string  `mapstructure:"base_url"     yaml:"base_url"     json:"base_url"`
	Model       string  `mapstructure:"model"        yaml:"model"        json:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"   yaml:"max_tokens"   json:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"  yaml:"temperature"  json:"temperature"`
}

// RetryConfig tunes the registry retry loop.
type RetryConfig struct {
	Attempts    int           `mapstructure:"attempts"     yaml:"attempts"     json:"attempts"`
	BackoffBase time.Duration `mapstructure:"backoff_base" yaml:"backoff_base" json:"backoff_base"`
	CallTimeout time.Duration `mapstructure:"call_timeout" yaml:"call_timeout" json:"call_timeout"`
}

// BreakerConfig tunes provider circuit breakers.
type BreakerConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold" yaml:"failure_threshold" json:"failure_threshold"`
	Window           time.Duration `mapstructure:"window"            yaml:"window"            json:"window"`
	Cooldown         time.Duration `mapstructure:"cooldown"          yaml:"cooldown"          json:"cooldown"`
}

// ScreeningConfig selects and bounds the scan universe.
type ScreeningConfig struct {
	Universe     string   `mapstructure:"universe"        yaml:"universe"        json:"universe"` // "predefined_list" or "custom_symbols"
	List         string   `mapstructure:"list"            yaml:"list"            json:"list"`
	Symbols      []string `mapstructure:"symbols"         yaml:"symbols"         json:"symbols"`
	MinMarketCap float64  `mapstructure:"min_market_cap"  yaml:"min_market_cap"  json:"min_market_cap"`
	MaxMarketCap float64  `mapstructure:"max_market_cap"  yaml:"max_market_cap"  json:"max_market_cap"`
	MinPrice     float64  `mapstructure:"min_price"       yaml:"min_price"       json:"min_price"`
	MaxPrice     float64  `mapstructure:"max_price"       yaml:"max_price"       json:"max_price"`
	MinAvgVolume int64    `mapstructure:"min_avg_volume"  yaml:"min_avg_volume"  json:"min_avg_volume"`
	Exchanges    []string `mapstructure:"exchanges"       yaml:"exchanges"       json:"exchanges"`
	MaxSymbols   int      `mapstructure:"max_symbols"     yaml:"max_symbols"     json:"max_symbols"`
}

// LegConfig bounds one leg of the spread.
type LegConfig struct {
	MinDTE             int     `mapstructure:"min_dte"                yaml:"min_dte"                json:"min_dte"`
	MaxDTE             int     `mapstructure:"max_dte"                yaml:"max_dte"                json:"max_dte"`
	MinDelta           float64 `mapstructure:"min_delta"              yaml:"min_delta"              json:"min_delta"`
	MaxDelta           float64 `mapstructure:"max_delta"              yaml:"max_delta"              json:"max_delta"`
	MinOpenInterest    int64   `mapstructure:"min_open_interest"      yaml:"min_open_interest"      json:"min_open_interest"`
	MaxBidAskSpreadPct float64 `mapstructure:"max_bid_ask_spread_pct" yaml:"max_bid_ask_spread_pct" json:"max_bid_ask_spread_pct"`
}

// StrategyConfig holds the PMCC pairing criteria.
type StrategyConfig struct {
	LEAPS                  LegConfig `mapstructure:"leaps"                     yaml:"leaps"                     json:"leaps"`
	ShortCall              LegConfig `mapstructure:"short_call"                yaml:"short_call"                json:"short_call"`
	MaxCandidatesPerSymbol int       `mapstructure:"max_candidates_per_symbol" yaml:"max_candidates_per_symbol" json:"max_candidates_per_symbol"`
	AllowNonStandard       bool      `mapstructure:"allow_non_standard"        yaml:"allow_non_standard"        json:"allow_non_standard"`
}

// ScoringConfig tunes the composite score. Weights must sum to 1.
type ScoringConfig struct {
	ProfitabilityWeight float64 `mapstructure:"profitability_weight" yaml:"profitability_weight" json:"profitability_weight"`
	RiskWeight          float64 `mapstructure:"risk_weight"          yaml:"risk_weight"          json:"risk_weight"`
	LiquidityWeight     float64 `mapstructure:"liquidity_weight"     yaml:"liquidity_weight"     json:"liquidity_weight"`
	TechnicalWeight     float64 `mapstructure:"technical_weight"     yaml:"technical_weight"     json:"technical_weight"`
	MinTotalScore       float64 `mapstructure:"min_total_score"      yaml:"min_total_score"      json:"min_total_score"`
	RRSaturation        float64 `mapstructure:"rr_saturation"        yaml:"rr_saturation"        json:"rr_saturation"`
	SpreadPctCeiling    float64 `mapstructure:"spread_pct_ceiling"   yaml:"spread_pct_ceiling"   json:"spread_pct_ceiling"`
	OpenInterestCeiling int64   `mapstructure:"open_interest_ceiling" yaml:"open_interest_ceiling" json:"open_interest_ceiling"`
	VolumeCeiling       int64   `mapstructure:"volume_ceiling"       yaml:"volume_ceiling"       json:"volume_ceiling"`
}

// AIConfig controls enrichment and the LLM budget.
type AIConfig struct {
	Enabled               bool          `mapstructure:"enabled"                  yaml:"enabled"                  json:"enabled"`
	TopCandidates         int           `mapstructure:"top_candidates"           yaml:"top_candidates"           json:"top_candidates"`
	MaxConcurrentAnalyses int           `mapstructure:"max_concurrent_analyses"  yaml:"max_concurrent_analyses"  json:"max_concurrent_analyses"`
	DailyCostLimitUSD     float64       `mapstructure:"daily_cost_limit_usd"     yaml:"daily_cost_limit_usd"     json:"daily_cost_limit_usd"`
	MinCompletenessForAI  float64       `mapstructure:"min_completeness_for_ai"  yaml:"min_completeness_for_ai"  json:"min_completeness_for_ai"`
	AnalysisTimeout       time.Duration `mapstructure:"analysis_timeout"         yaml:"analysis_timeout"         json:"analysis_timeout"`
	NewsFeeds             []string      `mapstructure:"news_feeds"               yaml:"news_feeds"               json:"news_feeds"`
}

// ChannelConfig configures one notification channel.
type ChannelConfig struct {
	Enabled          bool          `mapstructure:"enabled"           yaml:"enabled"           json:"enabled"`
	FailureThreshold int           `mapstructure:"failure_threshold" yaml:"failure_threshold" json:"failure_threshold"`
	Cooldown         time.Duration `mapstructure:"cooldown"          yaml:"cooldown"          json:"cooldown"`
}

// TelegramConfig configures the short-form chat channel.
type TelegramConfig struct {
	ChannelConfig `mapstructure:",squash" yaml:",inline"`
	BotToken      string `mapstructure:"bot_token" yaml:"bot_token" json:"-"`
	ChatID        string `mapstructure:"chat_id"   yaml:"chat_id"   json:"chat_id"`
}

// EmailConfig configures the long-form email channel.
type EmailConfig struct {
	ChannelConfig `mapstructure:",squash" yaml:",inline"`
	SMTPHost      string   `mapstructure:"smtp_host" yaml:"smtp_host" json:"smtp_host"`
	SMTPPort      int      `mapstructure:"smtp_port" yaml:"smtp_port" json:"smtp_port"`
	Username      string   `mapstructure:"username"  yaml:"username"  json:"username"`
	Password      string   `mapstructure:"password"  yaml:"password"  json:"-"`
	From          string   `mapstructure:"from"      yaml:"from"      json:"from"`
	To            []string `mapstructure:"to"        yaml:"to"        json:"to"`
}

// NotificationConfig controls delivery policy across channels.
type NotificationConfig struct {
	Enabled       bool           `mapstructure:"enabled"        yaml:"enabled"        json:"enabled"`
	Mode          string         `mapstructure:"mode"           yaml:"mode"           json:"mode"` // primary_only, both, primary_with_fallback
	FallbackDelay time.Duration  `mapstructure:"fallback_delay" yaml:"fallback_delay" json:"fallback_delay"`
	Telegram      TelegramConfig `mapstructure:"telegram"       yaml:"telegram"       json:"telegram"`
	Email         EmailConfig    `mapstructure:"email"          yaml:"email"          json:"email"`
	TopN          int            `mapstructure:"top_n"          yaml:"top_n"          json:"top_n"`
}

// ScanConfig bounds the whole run.
type ScanConfig struct {
	AnalysisWorkers  int           `mapstructure:"analysis_workers"          yaml:"analysis_workers"          json:"analysis_workers"`
	Deadline         time.Duration `mapstructure:"deadline"                  yaml:"deadline"                  json:"deadline"`
	TopK             int           `mapstructure:"top_k"                     yaml:"top_k"                     json:"top_k"`
	IncludeFullChain bool          `mapstructure:"include_full_chain_in_artifact" yaml:"include_full_chain_in_artifact" json:"include_full_chain_in_artifact"`
}

// ExportConfig names the artifact paths.
type ExportConfig struct {
	JSONPath string `mapstructure:"json_path" yaml:"json_path" json:"json_path"`
	CSVPath  string `mapstructure:"csv_path"  yaml:"csv_path"  json:"csv_path"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"  json:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format" json:"format"` // "text" or "json"
}

// Load reads the configuration from file and environment variables.
// Config file search order:
//  1. ./config/config.yaml (project root)
//  2. ~/.pmccscan/config.yaml (home directory)
//  3. /etc/pmccscan/config.yaml (system)
//
// Environment variables override config file values.
// Format: PMCCSCAN_<SECTION>_<KEY>, e.g. PMCCSCAN_PROVIDERS_EODHD_API_KEY
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".pmccscan"))
	v.AddConfigPath("/etc/pmccscan")

	v.SetEnvPrefix("PMCCSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found — defaults + env vars.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	overrideFromEnv(&cfg)
	return &cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("PMCCSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	overrideFromEnv(&cfg)
	return &cfg, nil
}

// Default returns the built-in defaults with no file or env applied.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	// Provider defaults
	v.SetDefault("providers.eodhd.enabled", true)
	v.SetDefault("providers.eodhd.base_url", "https://eodhd.com/api")
	v.SetDefault("providers.eodhd.requests_per_second", 10)
	v.SetDefault("providers.eodhd.daily_limit", 100000)
	v.SetDefault("providers.eodhd.max_in_flight", 50)
	v.SetDefault("providers.marketdata.enabled", true)
	v.SetDefault("providers.marketdata.base_url", "https://api.marketdata.app/v1")
	v.SetDefault("providers.marketdata.feed", "cached")
	v.SetDefault("providers.marketdata.requests_per_second", 10)
	v.SetDefault("providers.marketdata.daily_limit", 100000)
	v.SetDefault("providers.marketdata.max_in_flight", 50)
	v.SetDefault("providers.claude.enabled", true)
	v.SetDefault("providers.claude.base_url", "https://api.anthropic.com/v1")
	v.SetDefault("providers.claude.model", "claude-sonnet-4-20250514")
	v.SetDefault("providers.claude.max_tokens", 2048)
	v.SetDefault("providers.claude.temperature", 0.1)
	v.SetDefault("providers.retry.attempts", 2)
	v.SetDefault("providers.retry.backoff_base", "500ms")
	v.SetDefault("providers.retry.call_timeout", "30s")
	v.SetDefault("providers.breaker.failure_threshold", 5)
	v.SetDefault("providers.breaker.window", "60s")
	v.SetDefault("providers.breaker.cooldown", "60s")
	v.SetDefault("providers.routes", map[string][]string{
		"screen_stocks":            {"eodhd"},
		"get_quote":                {"marketdata", "eodhd"},
		"get_quotes_batch":         {"marketdata", "eodhd"},
		"get_option_chain":         {"marketdata"},
		"get_expirations":          {"marketdata"},
		"get_strikes":              {"marketdata"},
		"get_fundamentals":         {"eodhd"},
		"get_calendar_events":      {"eodhd"},
		"get_technicals":           {"eodhd"},
		"analyze_pmcc_opportunity": {"claude"},
	})

	// Screening defaults
	v.SetDefault("screening.universe", "predefined_list")
	v.SetDefault("screening.list", "sp500")
	v.SetDefault("screening.min_market_cap", 2_000_000_000)
	v.SetDefault("screening.min_price", 20)
	v.SetDefault("screening.max_price", 500)
	v.SetDefault("screening.min_avg_volume", 1_000_000)
	v.SetDefault("screening.exchanges", []string{"NYSE", "NASDAQ"})
	v.SetDefault("screening.max_symbols", 500)

	// Strategy defaults
	v.SetDefault("strategy.leaps.min_dte", 270)
	v.SetDefault("strategy.leaps.max_dte", 720)
	v.SetDefault("strategy.leaps.min_delta", 0.75)
	v.SetDefault("strategy.leaps.max_delta", 0.90)
	v.SetDefault("strategy.leaps.min_open_interest", 50)
	v.SetDefault("strategy.leaps.max_bid_ask_spread_pct", 0.10)
	v.SetDefault("strategy.short_call.min_dte", 21)
	v.SetDefault("strategy.short_call.max_dte", 45)
	v.SetDefault("strategy.short_call.min_delta", 0.20)
	v.SetDefault("strategy.short_call.max_delta", 0.35)
	v.SetDefault("strategy.short_call.min_open_interest", 10)
	v.SetDefault("strategy.short_call.max_bid_ask_spread_pct", 0.15)
	v.SetDefault("strategy.max_candidates_per_symbol", 3)
	v.SetDefault("strategy.allow_non_standard", false)

	// Scoring defaults
	v.SetDefault("scoring.profitability_weight", 0.40)
	v.SetDefault("scoring.risk_weight", 0.30)
	v.SetDefault("scoring.liquidity_weight", 0.20)
	v.SetDefault("scoring.technical_weight", 0.10)
	v.SetDefault("scoring.min_total_score", 60)
	v.SetDefault("scoring.rr_saturation", 2.0)
	v.SetDefault("scoring.spread_pct_ceiling", 0.20)
	v.SetDefault("scoring.open_interest_ceiling", 5000)
	v.SetDefault("scoring.volume_ceiling", 2000)

	// AI defaults
	v.SetDefault("ai.enabled", false)
	v.SetDefault("ai.top_candidates", 25)
	v.SetDefault("ai.max_concurrent_analyses", 3)
	v.SetDefault("ai.daily_cost_limit_usd", 5.0)
	v.SetDefault("ai.min_completeness_for_ai", 60)
	v.SetDefault("ai.analysis_timeout", "60s")

	// Notification defaults
	v.SetDefault("notifications.enabled", true)
	v.SetDefault("notifications.mode", "primary_with_fallback")
	v.SetDefault("notifications.fallback_delay", "0s")
	v.SetDefault("notifications.top_n", 10)
	v.SetDefault("notifications.telegram.failure_threshold", 5)
	v.SetDefault("notifications.telegram.cooldown", "60s")
	v.SetDefault("notifications.email.failure_threshold", 5)
	v.SetDefault("notifications.email.cooldown", "60s")
	v.SetDefault("notifications.email.smtp_port", 587)

	// Scan defaults
	v.SetDefault("scan.analysis_workers", 10)
	v.SetDefault("scan.deadline", "30m")
	v.SetDefault("scan.top_k", 10)
	v.SetDefault("scan.include_full_chain_in_artifact", false)

	// Export defaults
	v.SetDefault("export.json_path", "./out/scan.json")
	v.SetDefault("export.csv_path", "./out/scan.csv")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// overrideFromEnv applies credential env vars that take precedence over
// any file-sourced value.
func overrideFromEnv(cfg *Config) {
	if k := os.Getenv("EODHD_API_KEY"); k != "" {
		cfg.Providers.EODHD.APIKey = k
	}
	if k := os.Getenv("MARKETDATA_API_KEY"); k != "" {
		cfg.Providers.MarketData.APIKey = k
	}
	if k := os.Getenv("ANTHROPIC_API_KEY"); k != "" {
		cfg.Providers.Claude.APIKey = k
	}
	if k := os.Getenv("TELEGRAM_BOT_TOKEN"); k != "" {
		cfg.Notifications.Telegram.BotToken = k
	}
	if k := os.Getenv("SMTP_PASSWORD"); k != "" {
		cfg.Notifications.Email.Password = k
	}
}

// Validate checks the configuration for fatal startup errors.
func (c *Config) Validate() error {
	if !c.Providers.EODHD.Enabled && !c.Providers.MarketData.Enabled {
		return fmt.Errorf("config: no market data provider enabled")
	}
	if c.Providers.EODHD.Enabled && c.Providers.EODHD.APIKey == "" {
		return fmt.Errorf("config: eodhd enabled but api key missing")
	}
	if c.Providers.MarketData.Enabled && c.Providers.MarketData.APIKey == "" {
		return fmt.Errorf("config: marketdata enabled but api key missing")
	}
	if c.AI.Enabled {
		if !c.Providers.Claude.Enabled {
			return fmt.Errorf("config: ai enabled but claude provider disabled")
		}
		if c.Providers.Claude.APIKey == "" {
			return fmt.Errorf("config: ai enabled but claude api key missing")
		}
		if c.AI.DailyCostLimitUSD <= 0 {
			return fmt.Errorf("config: ai daily cost limit must be positive")
		}
	}
	switch c.Screening.Universe {
	case "predefined_list", "custom_symbols":
	default:
		return fmt.Errorf("config: unknown screening universe %q", c.Screening.Universe)
	}
	if c.Screening.Universe == "custom_symbols" && len(c.Screening.Symbols) == 0 {
		return fmt.Errorf("config: custom_symbols universe with no symbols")
	}
	switch c.Notifications.Mode {
	case "primary_only", "both", "primary_with_fallback":
	default:
		return fmt.Errorf("config: unknown notification mode %q", c.Notifications.Mode)
	}
	w := c.Scoring.ProfitabilityWeight + c.Scoring.RiskWeight + c.Scoring.LiquidityWeight + c.Scoring.TechnicalWeight
	if w < 0.999 || w > 1.001 {
		return fmt.Errorf("config: scoring weights sum to %.3f, want 1.0", w)
	}
	if c.Strategy.LEAPS.MinDTE >= c.Strategy.LEAPS.MaxDTE {
		return fmt.Errorf("config: leaps dte range inverted")
	}
	if c.Strategy.ShortCall.MinDTE >= c.Strategy.ShortCall.MaxDTE {
		return fmt.Errorf("config: short call dte range inverted")
	}
	return nil
}

// Snapshot returns the non-secret scan parameters embedded into
// ScanResults for audit.
func (c *Config) Snapshot() map[string]any {
	return map[string]any{
		"screening": map[string]any{
			"universe":       c.Screening.Universe,
			"list":           c.Screening.List,
			"min_market_cap": c.Screening.MinMarketCap,
			"max_market_cap": c.Screening.MaxMarketCap,
			"max_symbols":    c.Screening.MaxSymbols,
		},
		"strategy": map[string]any{
			"leaps_dte":      []int{c.Strategy.LEAPS.MinDTE, c.Strategy.LEAPS.MaxDTE},
			"leaps_delta":    []float64{c.Strategy.LEAPS.MinDelta, c.Strategy.LEAPS.MaxDelta},
			"short_dte":      []int{c.Strategy.ShortCall.MinDTE, c.Strategy.ShortCall.MaxDTE},
			"short_delta":    []float64{c.Strategy.ShortCall.MinDelta, c.Strategy.ShortCall.MaxDelta},
			"max_candidates": c.Strategy.MaxCandidatesPerSymbol,
		},
		"scoring": map[string]any{
			"min_total_score": c.Scoring.MinTotalScore,
		},
		"ai": map[string]any{
			"enabled":              c.AI.Enabled,
			"top_candidates":       c.AI.TopCandidates,
			"daily_cost_limit_usd": c.AI.DailyCostLimitUSD,
		},
		"scan": map[string]any{
			"top_k":            c.Scan.TopK,
			"analysis_workers": c.Scan.AnalysisWorkers,
			"deadline":         c.Scan.Deadline.String(),
		},
	}
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
