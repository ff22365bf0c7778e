package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ffcalendar/calendar"
	"ffcalendar/common/config"
	"ffcalendar/common/logger"
	"ffcalendar/dataset"
	"ffcalendar/driver"
	"ffcalendar/runner"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	logger.Setup()

	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("No .env file, using environment variables")
	}

	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("Run failed")
		os.Exit(1)
	}
}

type cliFlags struct {
	months    []string
	start     string
	end       string
	retries   int
	baseDelay float64
	maxDelay  float64
	overwrite bool
	rules     string
	out       string
}

func newRootCmd() *cobra.Command {
	var flags cliFlags

	cmd := &cobra.Command{
		Use:          "ffcalendar",
		Short:        "Scrape the Forex Factory economic calendar into per-month CSV datasets",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, flags)
		},
	}

	cmd.Flags().StringSliceVar(&flags.months, "months", nil, `target months: "this", "next" or month names`)
	cmd.Flags().StringVar(&flags.start, "start", "", `range start, e.g. "jan 2007"`)
	cmd.Flags().StringVar(&flags.end, "end", "", `range end, e.g. "jun 2007"`)
	cmd.Flags().IntVar(&flags.retries, "retries", 0, "maximum retry attempts per operation")
	cmd.Flags().Float64Var(&flags.baseDelay, "base-delay", 0, "base backoff delay in seconds")
	cmd.Flags().Float64Var(&flags.maxDelay, "max-delay", 0, "maximum backoff delay in seconds")
	cmd.Flags().BoolVar(&flags.overwrite, "overwrite", false, "replace existing CSV files instead of merging into them")
	cmd.Flags().StringVar(&flags.rules, "rules", "", "YAML scrape rules file overriding the built-in defaults")
	cmd.Flags().StringVar(&flags.out, "out", "", "output directory for month datasets")

	return cmd
}

func run(cmd *cobra.Command, flags cliFlags) error {
	cfg := config.DefaultConfig()
	cfg.LoadFromEnv()
	applyFlags(cmd, flags, &cfg)

	rules, err := config.LoadScrapeRules(cfg.RulesFile)
	if err != nil {
		return err
	}
	if err := cfg.Retry.Validate(); err != nil {
		return err
	}

	months, err := resolveMonths(flags)
	if err != nil {
		return err
	}

	mode := dataset.ModeUpdate
	if flags.overwrite {
		mode = dataset.ModeOverwrite
	}
	log.Info().
		Str("mode", string(mode)).
		Int("maxRetries", cfg.Retry.MaxRetries).
		Dur("baseDelay", cfg.Retry.BaseDelay).
		Dur("maxDelay", cfg.Retry.MaxDelay).
		Msg("Run configuration loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	browser, err := connectBrowser(cfg.Headless)
	if err != nil {
		return err
	}
	defer func() {
		if err := browser.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing browser")
		}
	}()

	session := func(ctx context.Context) (driver.PageDriver, func(), error) {
		d, err := driver.NewRod(browser, 30*time.Second)
		if err != nil {
			return nil, nil, err
		}
		return d, d.Close, nil
	}

	orchestrator := runner.New(session, dataset.NewCSVStore(cfg.OutputDir), rules, cfg.Retry, cfg.MonthPause)
	report, err := orchestrator.Run(ctx, runner.Request{Months: months, Mode: mode})
	if err != nil {
		return err
	}
	if report.Failed() {
		return fmt.Errorf("run %s finished with failed months", report.RunID)
	}
	return nil
}

func applyFlags(cmd *cobra.Command, flags cliFlags, cfg *config.Config) {
	if cmd.Flags().Changed("retries") {
		cfg.Retry.MaxRetries = flags.retries
	}
	if cmd.Flags().Changed("base-delay") {
		cfg.Retry.BaseDelay = time.Duration(flags.baseDelay * float64(time.Second))
	}
	if cmd.Flags().Changed("max-delay") {
		cfg.Retry.MaxDelay = time.Duration(flags.maxDelay * float64(time.Second))
	}
	if flags.rules != "" {
		cfg.RulesFile = flags.rules
	}
	if flags.out != "" {
		cfg.OutputDir = flags.out
	}
}

func resolveMonths(flags cliFlags) ([]calendar.MonthToken, error) {
	switch {
	case flags.start != "" && flags.end != "":
		return calendar.ResolveRange(flags.start, flags.end)
	case flags.start != "" || flags.end != "":
		return nil, fmt.Errorf("%w: --start and --end must be provided together", calendar.ErrInvalidDateExpr)
	default:
		return calendar.ResolveTokens(flags.months, time.Now())
	}
}

func connectBrowser(headless bool) (*rod.Browser, error) {
	url, err := launcher.New().
		Headless(headless).
		NoSandbox(true).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Launch()
	if err != nil {
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connecting to browser: %w", err)
	}
	return browser, nil
}
