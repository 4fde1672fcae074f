package loadgen

import "time"

// Config holds configuration for the prediction load test.
type Config struct {
	BaseURL     string        // Base URL of the service
	NumMatchups int           // Number of synthetic matchups to generate
	Season      int           // Season the matchups belong to
	Week        int           // Week the matchups belong to
	Workers     int           // Number of concurrent workers
	Timeout     time.Duration // HTTP request timeout
	SeedDBPath  string        // Feature database to seed (empty skips seeding)
	OutputFile  string        // Output file for generated matchups
	LogFile     string        // Log file for test output
	Verbose     bool          // Enable verbose logging
}

// Prediction mirrors the GET /predict response shape.
type Prediction struct {
	Home           string  `json:"home"`
	Away           string  `json:"away"`
	Season         int     `json:"season"`
	Week           int     `json:"week"`
	SchemaVersion  string  `json:"schema_version"`
	Margin         float64 `json:"margin"`
	WinProbability float64 `json:"win_probability"`
	Confidence     float64 `json:"confidence"`
	Degraded       bool    `json:"degraded"`
}

// Stats holds test statistics.
type Stats struct {
	MatchupsGenerated    int
	SnapshotsSeeded      int
	PredictionsRequested int
	PredictionsReceived  int
	PredictionsFailed    int
	CacheReplays         int
	VerificationErrors   int
	StartTime            time.Time
	EndTime              time.Time
	Duration             time.Duration
}
