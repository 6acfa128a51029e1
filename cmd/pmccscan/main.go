// pmccscan — Poor Man's Covered Call opportunity scanner.
//
// Main CLI entrypoint using the cobra command framework.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/phuslu/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/openquant/pmccscan/internal/ai"
	"github.com/openquant/pmccscan/internal/analyzer"
	"github.com/openquant/pmccscan/internal/config"
	"github.com/openquant/pmccscan/internal/enhance"
	"github.com/openquant/pmccscan/internal/notify"
	"github.com/openquant/pmccscan/internal/provider"
	"github.com/openquant/pmccscan/internal/providers"
	"github.com/openquant/pmccscan/internal/providers/claude"
	"github.com/openquant/pmccscan/internal/scan"
	"github.com/openquant/pmccscan/internal/scoring"
	"github.com/openquant/pmccscan/internal/screener"
	"github.com/openquant/pmccscan/pkg/models"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
)

var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pmccscan",
	Short: "pmccscan — Poor Man's Covered Call opportunity scanner",
	Long: `pmccscan screens US equities, analyzes their option chains for
long-LEAPS / short-call spreads, scores and ranks the candidates,
optionally enriches the leaders with an LLM review, and delivers the
results over chat and email.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		configFile, _ := cmd.Flags().GetString("config")
		if configFile != "" {
			cfg, err = config.LoadFromFile(configFile)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: ./config/config.yaml)")
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pmccscan %s (%s)\n", version, commit)
	},
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run one full scan",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		logger := newLogger(cfg.Logging)

		coordinator, err := buildCoordinator(cfg, logger)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		results, err := coordinator.Run(ctx)
		if err != nil {
			logger.Error().Err(err).Msg("scan aborted")
			os.Exit(1)
		}

		logger.Info().
			Str("scan_id", results.ScanID).
			Int("opportunities", len(results.Opportunities)).
			Int("errors", len(results.Errors)).
			Dur("elapsed", results.CompletedAt.Sub(results.StartedAt)).
			Msg("scan complete")
		printSummary(results)
		return nil
	},
}

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Show provider health and usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := newLogger(cfg.Logging)
		registry, err := providers.BuildRegistry(cfg, logger)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		probes := registry.HealthCheck(ctx)

		status := registry.Status()
		ids := make([]string, 0, len(status))
		for id := range status {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		fmt.Printf("%-12s %-10s %-10s %-8s %s\n", "PROVIDER", "BREAKER", "CALLS", "ERRORS", "PROBE")
		for _, id := range ids {
			st := status[id]
			probe := "ok"
			if err := probes[id]; err != nil {
				probe = err.Error()
			}
			fmt.Printf("%-12s %-10s %-10d %-8d %s\n", id, st.Breaker, st.Calls, st.Errors, probe)
		}
		return nil
	},
}

// buildCoordinator wires the full dependency bundle from config.
func buildCoordinator(cfg *config.Config, logger log.Logger) (*scan.Coordinator, error) {
	registry, err := providers.BuildRegistry(cfg, logger)
	if err != nil {
		return nil, err
	}

	scorer := scoring.New(scoring.Config{
		ProfitabilityWeight: decimal.NewFromFloat(cfg.Scoring.ProfitabilityWeight),
		RiskWeight:          decimal.NewFromFloat(cfg.Scoring.RiskWeight),
		LiquidityWeight:     decimal.NewFromFloat(cfg.Scoring.LiquidityWeight),
		TechnicalWeight:     decimal.NewFromFloat(cfg.Scoring.TechnicalWeight),
		MinTotalScore:       decimal.NewFromFloat(cfg.Scoring.MinTotalScore),
		RRSaturation:        decimal.NewFromFloat(cfg.Scoring.RRSaturation),
		SpreadPctCeiling:    decimal.NewFromFloat(cfg.Scoring.SpreadPctCeiling),
		OpenInterestCeiling: cfg.Scoring.OpenInterestCeiling,
		VolumeCeiling:       cfg.Scoring.VolumeCeiling,
	})

	an := analyzer.New(registry, scorer, analyzer.Options{
		LEAPS:            legCriteria(cfg.Strategy.LEAPS),
		ShortCall:        legCriteria(cfg.Strategy.ShortCall),
		MaxCandidates:    cfg.Strategy.MaxCandidatesPerSymbol,
		MinScore:         decimal.NewFromFloat(cfg.Scoring.MinTotalScore),
		AllowNonStandard: cfg.Strategy.AllowNonStandard,
		RetainChain:      cfg.Scan.IncludeFullChain,
	}, logger)

	deps := scan.Deps{
		Registry: registry,
		Screener: screener.New(registry, logger),
		Analyzer: an,
		Scorer:   scorer,
		Exporter: scan.NewExporter(cfg.Export.JSONPath, cfg.Export.CSVPath),
	}

	if cfg.AI.Enabled {
		deps.Collector = enhance.New(registry, cfg.AI.NewsFeeds, cfg.AI.MaxConcurrentAnalyses*2, logger)
		estimator := claude.New(claude.Config{
			APIKey:      cfg.Providers.Claude.APIKey,
			BaseURL:     cfg.Providers.Claude.BaseURL,
			Model:       cfg.Providers.Claude.Model,
			MaxTokens:   cfg.Providers.Claude.MaxTokens,
			Temperature: cfg.Providers.Claude.Temperature,
		})
		deps.Orchestrator = ai.New(registry, estimator, ai.Config{
			MaxConcurrent:   cfg.AI.MaxConcurrentAnalyses,
			DailyCostLimit:  decimal.NewFromFloat(cfg.AI.DailyCostLimitUSD),
			MinCompleteness: decimal.NewFromFloat(cfg.AI.MinCompletenessForAI),
			AnalysisTimeout: cfg.AI.AnalysisTimeout,
		}, logger)
	}

	if cfg.Notifications.Enabled {
		deps.Notifier = buildNotifier(cfg, logger)
	}

	return scan.New(cfg, deps, logger), nil
}

func buildNotifier(cfg *config.Config, logger log.Logger) *notify.Manager {
	n := cfg.Notifications
	mgrCfg := notify.Config{
		Mode:          notify.Mode(n.Mode),
		FallbackDelay: n.FallbackDelay,
		PrimaryBreaker: provider.BreakerConfig{
			FailureThreshold: n.Telegram.FailureThreshold,
			Cooldown:         n.Telegram.Cooldown,
		},
		SecondaryBreaker: provider.BreakerConfig{
			FailureThreshold: n.Email.FailureThreshold,
			Cooldown:         n.Email.Cooldown,
		},
	}
	if n.Telegram.Enabled && n.Telegram.BotToken != "" {
		mgrCfg.Primary = notify.NewTelegramChannel(n.Telegram.BotToken, n.Telegram.ChatID, n.TopN)
	}
	if n.Email.Enabled && n.Email.SMTPHost != "" {
		mgrCfg.Secondary = notify.NewEmailChannel(
			n.Email.SMTPHost, n.Email.SMTPPort,
			n.Email.Username, n.Email.Password, n.Email.From, n.Email.To,
		)
	}
	return notify.NewManager(mgrCfg, logger)
}

func legCriteria(lc config.LegConfig) models.LegCriteria {
	return models.LegCriteria{
		MinDTE:             lc.MinDTE,
		MaxDTE:             lc.MaxDTE,
		MinDelta:           decimal.NewFromFloat(lc.MinDelta),
		MaxDelta:           decimal.NewFromFloat(lc.MaxDelta),
		MinOpenInterest:    lc.MinOpenInterest,
		MaxBidAskSpreadPct: decimal.NewFromFloat(lc.MaxBidAskSpreadPct),
	}
}

func newLogger(lc config.LoggingConfig) log.Logger {
	logger := log.Logger{
		Level:      parseLevel(lc.Level),
		TimeFormat: time.RFC3339,
	}
	if lc.Format != "json" {
		logger.Writer = &log.ConsoleWriter{ColorOutput: true}
	}
	return logger
}

func parseLevel(s string) log.Level {
	switch s {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// printSummary renders a short table of the ranked opportunities.
func printSummary(results *models.ScanResults) {
	if len(results.Opportunities) == 0 {
		fmt.Println("No opportunities found.")
		return
	}
	fmt.Printf("%-6s %-10s %-22s %-22s %-9s %-7s\n",
		"SYM", "PRICE", "LONG", "SHORT", "DEBIT", "SCORE")
	for _, opp := range results.Opportunities {
		c := &opp.PMCC
		fmt.Printf("%-6s %-10s %-22s %-22s %-9s %-7s\n",
			c.Symbol,
			c.UnderlyingPrice.Round(2).String(),
			fmt.Sprintf("%s %sC", c.LongLeaps.Expiration.Format("2006-01-02"), c.LongLeaps.Strike.Round(0)),
			fmt.Sprintf("%s %sC", c.ShortCall.Expiration.Format("2006-01-02"), c.ShortCall.Strike.Round(0)),
			c.NetDebit.Round(2).String(),
			opp.CombinedScore.Round(1).String(),
		)
	}
}
