package loadgen

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/fieldline/gridcast/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string) error {
	// Initialize the logger first
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "loadgen_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	multiWriter := io.MultiWriter(os.Stdout, file)
	log.SetOutput(multiWriter)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// ShowHelp prints usage information for the load generator.
func ShowHelp() {
	os.Stdout.WriteString(`Gridcast Prediction Load Generator
==================================

A concurrent tool for exercising the gridcast prediction service: it seeds
synthetic matchup feature snapshots, fans prediction requests out, and
verifies the responses.

Usage:
  go run cmd/loadgen/main.go [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -matchups int
        Number of synthetic matchups to generate (default 200)
  -season int
        Season for generated matchups (default 2025)
  -week int
        Week for generated matchups (default 8)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -seed-db string
        Feature database path to seed before testing (default: no seeding)
  -output string
        Output file for generated matchups (default: matchups_TIMESTAMP.json)
  -log string
        Log file for test output (default: loadgen_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Seed the feature database and run against a local service
  go run cmd/loadgen/main.go -seed-db ./data/features.db -matchups 500

  # Replay against an already-seeded service
  go run cmd/loadgen/main.go -matchups 500 -workers 16
`)
}
