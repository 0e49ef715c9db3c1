package flightsim

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/okian/flightguard/internal/domain/telemetry"
	"github.com/okian/flightguard/pkg/logger"
)

const (
	modelReady    = "READY"
	modelTraining = "TRAINING"
)

type counters struct {
	submitted    atomic.Int64
	compliant    atomic.Int64
	nonCompliant atomic.Int64
	duplicates   atomic.Int64
	failed       atomic.Int64
	scored       atomic.Int64
}

// Run executes a complete simulation against cfg.BaseURL.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	c := cfg.withDefaults()
	log := logger.Get().Named("flightsim").With(logger.String("baseURL", c.BaseURL))
	stats := &Stats{StartTime: time.Now()}

	log.Info(ctx, "starting flight simulation",
		logger.Int("samples", c.Samples),
		logger.Int("pilots", c.Pilots),
		logger.Int("workers", c.Workers),
		logger.Float64("excursionRate", c.ExcursionRate),
		logger.Bool("train", c.Train))

	client := NewClient(c.BaseURL, c.Timeout)
	if err := client.Health(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	gen := NewGenerator(c.Seed, c.Pilots, c.ExcursionRate, time.Now())
	samples := gen.Batch(0, c.Samples)
	stats.Generated = len(samples)

	if c.OutputFile != "" {
		if err := saveSamples(c.OutputFile, samples); err != nil {
			log.Warn(ctx, "failed to save samples", logger.Error(err))
		}
	}

	var cnt counters
	if err := submit(ctx, client, c.Workers, samples, &cnt); err != nil {
		return stats, fmt.Errorf("submission failed: %w", err)
	}
	log.Info(ctx, "samples submitted",
		logger.Int64("submitted", cnt.submitted.Load()),
		logger.Int64("nonCompliant", cnt.nonCompliant.Load()),
		logger.Int64("failed", cnt.failed.Load()))

	if c.Train {
		if err := train(ctx, log, client, &c, &cnt, stats); err != nil {
			fill(stats, &cnt)
			return stats, err
		}
		if stats.ModelState == modelReady && c.Probes > 0 {
			probes := gen.Batch(c.Samples, c.Probes)
			if err := submit(ctx, client, c.Workers, probes, &cnt); err != nil {
				fill(stats, &cnt)
				return stats, fmt.Errorf("probe submission failed: %w", err)
			}
		}
	}

	fill(stats, &cnt)
	displayFinalStats(ctx, log, stats)
	return stats, nil
}

// submit posts samples with at most workers requests in flight. Per-sample
// failures are counted, not returned.
func submit(ctx context.Context, client *Client, workers int, samples []telemetry.Raw, cnt *counters) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range samples {
		raw := samples[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := client.Check(gctx, raw)
			cnt.submitted.Add(1)
			if err != nil {
				cnt.failed.Add(1)
				return nil
			}
			switch {
			case res.Duplicate:
				cnt.duplicates.Add(1)
			case res.IsCompliant:
				cnt.compliant.Add(1)
			default:
				cnt.nonCompliant.Add(1)
			}
			if res.RiskScores != nil {
				cnt.scored.Add(1)
			}
			return nil
		})
	}
	return g.Wait()
}

// train waits for persistence to catch up, starts a run and polls until a
// newer version serves.
func train(ctx context.Context, log logger.Logger, client *Client, c *Config, cnt *counters, stats *Stats) error {
	ctx, cancel := context.WithTimeout(ctx, c.TrainWait)
	defer cancel()

	accepted := cnt.compliant.Load() + cnt.nonCompliant.Load()
	if err := poll(ctx, c.PollInterval, func() (bool, error) {
		st, err := client.Stats(ctx)
		if err != nil {
			return false, err
		}
		return st.Persisted+st.PersistFailures >= accepted, nil
	}); err != nil {
		return fmt.Errorf("waiting for persistence: %w", err)
	}

	before, err := client.ModelStatus(ctx)
	if err != nil {
		return fmt.Errorf("model status: %w", err)
	}

	res, err := client.Train(ctx, false)
	stats.TrainReason = res.Reason
	if err != nil {
		// Refusals such as too few records are a result, not a failed run.
		if errors.Is(err, ErrUnexpectedStatus) {
			log.Warn(ctx, "training refused", logger.String("reason", res.Reason))
			stats.ModelState = before.State
			stats.ModelVersion = before.Version
			return nil
		}
		return fmt.Errorf("train: %w", err)
	}
	log.Info(ctx, "training started")

	var last string
	err = poll(ctx, c.PollInterval, func() (bool, error) {
		st, err := client.ModelStatus(ctx)
		if err != nil {
			return false, err
		}
		stats.ModelState = st.State
		stats.ModelVersion = st.Version
		last = st.LastError
		if st.State == modelReady && st.Version > before.Version {
			return true, nil
		}
		return st.State != modelTraining && st.LastError != "" && st.LastError != before.LastError, nil
	})
	if err != nil {
		return fmt.Errorf("waiting for training: %w", err)
	}
	if stats.ModelVersion <= before.Version {
		stats.TrainReason = last
		log.Warn(ctx, "training failed", logger.String("error", last))
		return nil
	}
	log.Info(ctx, "model ready", logger.Int64("version", stats.ModelVersion))
	return nil
}

func poll(ctx context.Context, every time.Duration, done func() (bool, error)) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		ok, err := done()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrWaitTimeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

func fill(stats *Stats, cnt *counters) {
	stats.Submitted = int(cnt.submitted.Load())
	stats.Compliant = int(cnt.compliant.Load())
	stats.NonCompliant = int(cnt.nonCompliant.Load())
	stats.Duplicates = int(cnt.duplicates.Load())
	stats.Failed = int(cnt.failed.Load())
	stats.Scored = int(cnt.scored.Load())
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
}

// saveSamples writes the generated samples as a JSON array.
func saveSamples(filename string, samples []telemetry.Raw) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(samples, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal samples: %w", err)
	}
	if err := os.WriteFile(filename, data, filePermission); err != nil {
		return fmt.Errorf("write %s: %w", filename, err)
	}
	return nil
}

// displayFinalStats logs the final simulation statistics.
func displayFinalStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var violationRate, samplesPerSecond float64
	if answered := stats.Compliant + stats.NonCompliant; answered > 0 {
		violationRate = float64(stats.NonCompliant) / float64(answered) * percentageMultiplier
	}
	if stats.Duration > 0 {
		samplesPerSecond = float64(stats.Submitted) / stats.Duration.Seconds()
	}

	log.Info(ctx, "final statistics",
		logger.Int("generated", stats.Generated),
		logger.Int("submitted", stats.Submitted),
		logger.Int("compliant", stats.Compliant),
		logger.Int("nonCompliant", stats.NonCompliant),
		logger.Int("duplicates", stats.Duplicates),
		logger.Int("failed", stats.Failed),
		logger.Int("scored", stats.Scored),
		logger.Int64("modelVersion", stats.ModelVersion),
		logger.String("modelState", stats.ModelState),
		logger.Duration("duration", stats.Duration),
		logger.Float64("violationRate", violationRate),
		logger.Float64("samplesPerSecond", samplesPerSecond))
}
