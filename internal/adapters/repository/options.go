package repository

import "github.com/okian/flightguard/pkg/logger"

// Option applies a configuration option to the BadgerStore.
type Option func(*BadgerStore)

// WithSyncWrites fsyncs every write. Off by default.
func WithSyncWrites(enabled bool) Option {
	return func(s *BadgerStore) {
		s.syncWrites = enabled
	}
}

// WithLogger sets the logger used for store lifecycle events.
func WithLogger(l logger.Logger) Option {
	return func(s *BadgerStore) {
		if l != nil {
			s.log = l
		}
	}
}
