// Package worker drains the flight record queue into durable storage.
package worker

import (
	"time"

	"github.com/okian/flightguard/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithRetry sets how many times a failed write is retried and the base
// Fibonacci backoff between attempts.
func WithRetry(maxRetries uint64, backoff time.Duration) Option {
	return func(w *InMemoryWorker) {
		w.maxRetries = maxRetries
		if backoff > 0 {
			w.backoff = backoff
		}
	}
}

// WithStats shares counters between workers of a pool.
func WithStats(s *Stats) Option {
	return func(w *InMemoryWorker) {
		if s != nil {
			w.stats = s
		}
	}
}
