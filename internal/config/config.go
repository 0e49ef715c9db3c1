// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Load layers a YAML file and FLIGHTGUARD_* environment variables on top.
package config

import (
	"runtime"

	"github.com/okian/flightguard/internal/domain/model"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// DataDir holds the badger database. Empty keeps everything in memory.
	DataDir string `koanf:"data_dir"`

	// QueueSize bounds the in-memory persistence queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of persistence workers.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize sets how many submission fingerprints are remembered.
	DedupeSize int `koanf:"dedupe_size"`

	PersistMaxRetries int `koanf:"persist_max_retries"`
	PersistBackoffMS  int `koanf:"persist_backoff_ms"`

	// MinTrainingExamples can raise, never lower, the 100 example floor.
	MinTrainingExamples int     `koanf:"min_training_examples"`
	TrainingEpochs      int     `koanf:"training_epochs"`
	TrainingBatchSize   int     `koanf:"training_batch_size"`
	ValidationSplit     float64 `koanf:"validation_split"`
	LearningRate        float64 `koanf:"learning_rate"`
	TrainingTimeoutSec  int     `koanf:"training_timeout_sec"`
	// TrainingSeed fixes weight init and shuffling; zero is random.
	TrainingSeed uint64 `koanf:"training_seed"`
	// TrainRatePerMin caps POST /compliance/train requests.
	TrainRatePerMin int `koanf:"train_rate_per_min"`

	ZoneCacheTTLSec       int `koanf:"zone_cache_ttl_sec"`
	ZoneBreakerFailures   int `koanf:"zone_breaker_failures"`
	ZoneBreakerTimeoutSec int `koanf:"zone_breaker_timeout_sec"`

	// RestrictedZones seeds an empty zone store at startup.
	RestrictedZones []model.RestrictedZone `koanf:"restricted_zones"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:              "info",
		LogFormat:             "text",
		Addr:                  ":9080",
		DataDir:               "",
		QueueSize:             10_000,
		WorkerCount:           runtime.NumCPU(),
		DedupeSize:            100_000,
		PersistMaxRetries:     3,
		PersistBackoffMS:      50,
		MinTrainingExamples:   100,
		TrainingEpochs:        50,
		TrainingBatchSize:     32,
		ValidationSplit:       0.2,
		LearningRate:          0.001,
		TrainingTimeoutSec:    600,
		TrainRatePerMin:       6,
		ZoneCacheTTLSec:       30,
		ZoneBreakerFailures:   5,
		ZoneBreakerTimeoutSec: 30,
	}
}
