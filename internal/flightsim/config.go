// Package flightsim drives a running compliance service with synthetic
// drone telemetry and reports what came back.
package flightsim

import "time"

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL string        // Base URL of the service
	Samples int           // Number of telemetry samples to submit
	Pilots  int           // Number of distinct pilots
	Workers int           // Number of concurrent submitters
	Timeout time.Duration // HTTP request timeout

	// ExcursionRate is the share of samples pushed past a limit, in [0,1].
	ExcursionRate float64
	// Seed fixes the generated flights. Zero picks a random seed.
	Seed uint64

	Train        bool          // Trigger training once samples are persisted
	TrainWait    time.Duration // Upper bound for persistence and training waits
	PollInterval time.Duration // Delay between status polls
	Probes       int           // Samples submitted after training to observe predictions

	OutputFile string // Optional JSON dump of generated samples
}

// Stats holds simulation results.
type Stats struct {
	Generated    int
	Submitted    int
	Compliant    int
	NonCompliant int
	Duplicates   int
	Failed       int
	Scored       int // Results that carried risk scores

	ModelVersion int64
	ModelState   string
	TrainReason  string

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}
