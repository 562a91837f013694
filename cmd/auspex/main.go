package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/auspex/internal/app"
	"github.com/ternarybob/auspex/internal/common"
	"github.com/ternarybob/auspex/internal/models"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	// Command-line flags
	configFiles  configPaths // Multiple -config flags supported
	inDomain     = flag.String("in", "", "In-zone: bidding zone name or EIC code (overrides config)")
	outDomain    = flag.String("out", "", "Out-zone: bidding zone name or EIC code (overrides config)")
	days         = flag.Int("days", 0, "Trailing window length in days (overrides config)")
	resolution   = flag.String("resolution", "", "Series resolution: PT15M or PT60M (overrides config)")
	csvPath      = flag.String("csv", "", "Run against a local CSV file instead of the ENTSO-E API")
	force        = flag.Bool("force", false, "Skip the snapshot cache and re-fetch from the API")
	serveMode    = flag.Bool("serve", false, "Run the cron scheduler instead of a single run")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")
)

func init() {
	// Register custom flag for multiple config files
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	flag.Parse()

	common.LoadVersionFromFile()

	if *showVersion || *showVersionV {
		fmt.Printf("Auspex version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	// Startup sequence (REQUIRED ORDER):
	// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
	// 2. Apply CLI overrides (highest priority)
	// 3. Initialize logger
	// 4. Print banner

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("auspex.toml"); err == nil {
			configFiles = append(configFiles, "auspex.toml")
		} else if _, err := os.Stat("deployments/local/auspex.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/auspex.toml")
		}
	}

	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	common.ApplyFlagOverrides(config, *inDomain, *outDomain, *days)
	if *resolution != "" {
		config.Run.Resolution = *resolution
	}

	logger := common.InitLogger(config)
	common.PrintBanner(common.GetVersion())

	if err := config.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
		os.Exit(1)
	}

	logger.Info().
		Strs("config_files", configFiles).
		Str("border", config.Run.InDomain+">"+config.Run.OutDomain).
		Int("days", config.Run.Days).
		Str("resolution", config.Run.Resolution).
		Msg("Application configuration loaded")

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}

	var exitCode int
	if *serveMode || config.Scheduler.Enabled {
		exitCode = runScheduled(application)
	} else {
		exitCode = runOnce(application)
	}

	if err := application.Close(); err != nil {
		logger.Warn().Err(err).Msg("Shutdown reported errors")
	}
	os.Exit(exitCode)
}

// runOnce executes a single pipeline run for the configured border and
// trailing window, printing where the reports landed
func runOnce(application *app.App) int {
	config := application.Config
	logger := application.Logger

	req := models.RunRequest{
		InDomain:   config.Run.InDomain,
		OutDomain:  config.Run.OutDomain,
		Resolution: config.Run.Resolution,
		CSVPath:    *csvPath,
		Force:      *force,
	}
	if req.CSVPath == "" {
		// Anchor at the last complete UTC day so the window holds only
		// published intervals
		end := time.Now().UTC().Truncate(24 * time.Hour)
		req.PeriodStart = end.AddDate(0, 0, -config.Run.Days)
		req.PeriodEnd = end
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Warn().Msg("Interrupt received, canceling run")
		cancel()
	}()

	run, err := application.Runner.Run(ctx, req)
	if err != nil {
		logger.Error().Err(err).Msg("Run failed")
		if run != nil && len(run.ReportPaths) > 0 {
			fmt.Println("\nFailure report:")
			printReportPaths(run.ReportPaths)
		}
		return 1
	}

	fmt.Printf("\nRun %s completed (best model: %s)\n", run.ID, run.Bench.Best)
	printReportPaths(run.ReportPaths)
	return 0
}

// runScheduled keeps the scheduler firing until interrupted
func runScheduled(application *app.App) int {
	logger := application.Logger

	if err := application.Scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("Failed to start scheduler")
		return 1
	}

	logger.Info().
		Str("schedule", application.Config.Scheduler.Schedule).
		Msg("Scheduler running - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Interrupt signal received")
	if err := application.Scheduler.Stop(); err != nil {
		logger.Error().Err(err).Msg("Scheduler shutdown failed")
		return 1
	}
	return 0
}

func printReportPaths(paths map[string]string) {
	for _, format := range []string{"markdown", "html", "pdf"} {
		if path, ok := paths[format]; ok {
			fmt.Printf("  %-8s %s\n", format, path)
		}
	}
}
