package service

import (
	"time"

	"github.com/okian/flightguard/internal/config"
	"github.com/okian/flightguard/internal/domain/model"
	"github.com/okian/flightguard/internal/domain/risk"
	"github.com/okian/flightguard/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithDataDir sets the badger directory. Empty keeps everything in memory.
func WithDataDir(dir string) Option {
	return func(s *Service) {
		s.dataDir = dir
	}
}

// WithWorkerCount sets the number of persistence workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the persistence queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets how many submission fingerprints are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithPersistRetry sets the retry budget for persistence writes.
func WithPersistRetry(maxRetries int, backoff time.Duration) Option {
	return func(s *Service) {
		if maxRetries >= 0 {
			s.persistRetries = uint64(maxRetries)
		}
		if backoff > 0 {
			s.persistBackoff = backoff
		}
	}
}

// WithTrainConfig sets training hyperparameters.
func WithTrainConfig(cfg risk.TrainConfig) Option {
	return func(s *Service) {
		s.trainCfg = cfg
	}
}

// WithMinTrainingExamples raises the minimum corpus size.
func WithMinTrainingExamples(n int) Option {
	return func(s *Service) {
		s.minExamples = n
	}
}

// WithTrainingTimeout bounds background training runs.
func WithTrainingTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.trainTimeout = d
		}
	}
}

// WithZoneCacheTTL sets how long a zone index is reused.
func WithZoneCacheTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.zoneTTL = d
		}
	}
}

// WithZoneBreaker configures the zone lookup circuit breaker.
func WithZoneBreaker(failures int, openFor time.Duration) Option {
	return func(s *Service) {
		if failures > 0 {
			s.breakerFailures = failures
		}
		if openFor > 0 {
			s.breakerTimeout = openFor
		}
	}
}

// WithRestrictedZones seeds an empty zone store on Start.
func WithRestrictedZones(zones []model.RestrictedZone) Option {
	return func(s *Service) {
		s.seedZones = append([]model.RestrictedZone(nil), zones...)
	}
}

// WithClock sets the clock used for evaluation timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithConfig maps a loaded Config onto the service options.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg == nil {
			return
		}
		opts := []Option{
			WithDataDir(cfg.DataDir),
			WithWorkerCount(cfg.WorkerCount),
			WithQueueSize(cfg.QueueSize),
			WithDedupeSize(cfg.DedupeSize),
			WithPersistRetry(cfg.PersistMaxRetries, time.Duration(cfg.PersistBackoffMS)*time.Millisecond),
			WithTrainConfig(risk.TrainConfig{
				Epochs:          cfg.TrainingEpochs,
				BatchSize:       cfg.TrainingBatchSize,
				ValidationSplit: cfg.ValidationSplit,
				LearningRate:    cfg.LearningRate,
				Seed:            cfg.TrainingSeed,
			}),
			WithMinTrainingExamples(cfg.MinTrainingExamples),
			WithTrainingTimeout(time.Duration(cfg.TrainingTimeoutSec) * time.Second),
			WithZoneCacheTTL(time.Duration(cfg.ZoneCacheTTLSec) * time.Second),
			WithZoneBreaker(cfg.ZoneBreakerFailures, time.Duration(cfg.ZoneBreakerTimeoutSec)*time.Second),
			WithRestrictedZones(cfg.RestrictedZones),
		}
		for _, opt := range opts {
			opt(s)
		}
	}
}
