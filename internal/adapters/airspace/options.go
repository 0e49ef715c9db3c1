package airspace

import (
	"time"

	"github.com/okian/flightguard/pkg/logger"
)

// Option configures a Provider.
type Option func(*Provider)

// WithCacheTTL sets how long a fetched zone index is reused.
func WithCacheTTL(ttl time.Duration) Option {
	return func(p *Provider) {
		if ttl > 0 {
			p.ttl = ttl
		}
	}
}

// WithBreaker sets consecutive failures before the breaker opens and how
// long it stays open.
func WithBreaker(failures uint32, openFor time.Duration) Option {
	return func(p *Provider) {
		if failures > 0 {
			p.breakerFailures = failures
		}
		if openFor > 0 {
			p.breakerTimeout = openFor
		}
	}
}

// WithClock sets the time source for cache expiry.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		if now != nil {
			p.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Provider) {
		if l != nil {
			p.log = l
		}
	}
}
