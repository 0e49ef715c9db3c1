package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/flightguard/internal/flightsim"
	"github.com/okian/flightguard/pkg/logger"
)

// Default configuration constants.
const (
	defaultWorkers       = 2 // multiplier for runtime.NumCPU()
	defaultExcursionRate = 0.15
	defaultRunTimeout    = 30 * time.Minute
)

func main() {
	var (
		baseURL   = flag.String("url", "http://localhost:9080", "Base URL of the service")
		samples   = flag.Int("samples", flightsim.DefaultSamples, "Number of telemetry samples to submit")
		pilots    = flag.Int("pilots", flightsim.DefaultPilots, "Number of distinct pilots")
		workers   = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent submitters")
		timeout   = flag.Duration("timeout", flightsim.DefaultTimeout, "HTTP request timeout")
		excursion = flag.Float64("excursions", defaultExcursionRate, "Share of samples that break a limit (0-1)")
		seed      = flag.Uint64("seed", 0, "Generator seed (0 = random)")
		train     = flag.Bool("train", false, "Train a model after submitting and wait for it")
		trainWait = flag.Duration("train-wait", flightsim.DefaultTrainWait, "How long to wait for persistence and training")
		probes    = flag.Int("probes", flightsim.DefaultProbes, "Samples submitted after training to observe predictions")
		output    = flag.String("output", "", "Write generated samples to this JSON file")
		logFormat = flag.String("log-format", "text", "Log format: text or json")
	)
	flag.Parse()

	if err := logger.InitWithFormat(*logFormat); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultRunTimeout)
	defer cancel()

	_, err := flightsim.Run(ctx, &flightsim.Config{
		BaseURL:       *baseURL,
		Samples:       *samples,
		Pilots:        *pilots,
		Workers:       *workers,
		Timeout:       *timeout,
		ExcursionRate: *excursion,
		Seed:          *seed,
		Train:         *train,
		TrainWait:     *trainWait,
		Probes:        *probes,
		OutputFile:    *output,
	})
	if err != nil {
		logger.Get().Error(ctx, "simulation failed", logger.Error(err))
		cancel()
		stop()
		os.Exit(1)
	}
}
