package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/fieldline/gridcast/internal/loadgen"
)

// Default configuration constants.
const (
	defaultNumMatchups = 200
	defaultSeason      = 2025
	defaultWeek        = 8
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTimeout     = 30 * time.Second
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL    = flag.String("url", "http://localhost:9080", "Base URL of the service")
		matchups   = flag.Int("matchups", defaultNumMatchups, "Number of synthetic matchups to generate")
		season     = flag.Int("season", defaultSeason, "Season for generated matchups")
		week       = flag.Int("week", defaultWeek, "Week for generated matchups")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout    = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		seedDB     = flag.String("seed-db", "", "Feature database path to seed before testing")
		outputFile = flag.String("output", "", "Output file for generated matchups (default: matchups_TIMESTAMP.json)")
		logFile    = flag.String("log", "", "Log file for test output (default: loadgen_TIMESTAMP.log)")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
		help       = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		loadgen.ShowHelp()
		return
	}

	// Setup logging
	if err := loadgen.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return
	}

	// Create context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()

	// Create test configuration
	config := &loadgen.Config{
		BaseURL:     *baseURL,
		NumMatchups: *matchups,
		Season:      *season,
		Week:        *week,
		Workers:     *workers,
		Timeout:     *timeout,
		SeedDBPath:  *seedDB,
		OutputFile:  *outputFile,
		LogFile:     *logFile,
		Verbose:     *verbose,
	}

	// Run the test
	if err := loadgen.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Load test failed: " + err.Error() + "\n")
		return
	}
}
