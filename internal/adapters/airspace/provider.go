// Package airspace serves the restricted zone index to the compliance path,
// guarding the backing store with a circuit breaker.
package airspace

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"

	"github.com/okian/flightguard/internal/domain/geofence"
	"github.com/okian/flightguard/internal/domain/model"
	"github.com/okian/flightguard/pkg/logger"
	"github.com/okian/flightguard/pkg/metrics"
)

// Source lists restricted zones.
type Source interface {
	Zones(ctx context.Context) ([]model.RestrictedZone, error)
}

// Writer mutates the zone set.
type Writer interface {
	UpsertZone(ctx context.Context, z model.RestrictedZone) error
	DeleteZone(ctx context.Context, name string) error
}

type cachedIndex struct {
	idx       *geofence.Index
	fetchedAt time.Time
}

// Provider caches a geofence.Index built from a Source.
type Provider struct {
	src   Source
	cb    *gobreaker.CircuitBreaker[*geofence.Index]
	group singleflight.Group
	cache atomic.Pointer[cachedIndex]

	ttl             time.Duration
	breakerFailures uint32
	breakerTimeout  time.Duration
	now             func() time.Time
	log             logger.Logger
}

// NewProvider creates a Provider over src.
func NewProvider(src Source, opts ...Option) *Provider {
	p := &Provider{
		src:             src,
		ttl:             30 * time.Second,
		breakerFailures: 5,
		breakerTimeout:  30 * time.Second,
		now:             time.Now,
		log:             logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.cb = gobreaker.NewCircuitBreaker[*geofence.Index](gobreaker.Settings{
		Name:        "zone-lookup",
		MaxRequests: 1,
		Timeout:     p.breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= p.breakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.UpdateZoneBreakerState(breakerGauge(to))
			p.log.Warn(context.Background(), "zone lookup breaker changed state",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()))
		},
	})
	return p
}

func breakerGauge(s gobreaker.State) int {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Index returns the current zone index, refreshing it when the cache expired.
// Failures return ErrZoneDataUnavailable; a stale index is never served.
func (p *Provider) Index(ctx context.Context) (*geofence.Index, error) {
	if c := p.cache.Load(); c != nil && p.now().Sub(c.fetchedAt) < p.ttl {
		return c.idx, nil
	}

	v, err, _ := p.group.Do("zones", func() (any, error) {
		return p.cb.Execute(func() (*geofence.Index, error) {
			zones, err := p.src.Zones(ctx)
			if err != nil {
				return nil, err
			}
			return geofence.NewIndex(zones), nil
		})
	})
	if err != nil {
		metrics.RecordZoneLookupFailure()
		metrics.RecordErrorByComponent("airspace", "zone_lookup")
		return nil, fmt.Errorf("%w: %w", ErrZoneDataUnavailable, err)
	}
	idx := v.(*geofence.Index)
	p.cache.Store(&cachedIndex{idx: idx, fetchedAt: p.now()})
	metrics.UpdateZoneCount(idx.Len())
	return idx, nil
}

// Invalidate drops the cached index so the next lookup refetches.
func (p *Provider) Invalidate() {
	p.cache.Store(nil)
}

// Upsert writes z through the source when it supports writes.
func (p *Provider) Upsert(ctx context.Context, z model.RestrictedZone) error {
	w, ok := p.src.(Writer)
	if !ok {
		return fmt.Errorf("zone source is read-only")
	}
	if err := w.UpsertZone(ctx, z); err != nil {
		return err
	}
	p.Invalidate()
	return nil
}

// Delete removes a zone through the source when it supports writes.
func (p *Provider) Delete(ctx context.Context, name string) error {
	w, ok := p.src.(Writer)
	if !ok {
		return fmt.Errorf("zone source is read-only")
	}
	if err := w.DeleteZone(ctx, name); err != nil {
		return err
	}
	p.Invalidate()
	return nil
}

// Seed writes zones only when the source is currently empty.
func (p *Provider) Seed(ctx context.Context, zones []model.RestrictedZone) (int, error) {
	if len(zones) == 0 {
		return 0, nil
	}
	existing, err := p.src.Zones(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrZoneDataUnavailable, err)
	}
	if len(existing) > 0 {
		return 0, nil
	}
	for _, z := range zones {
		if err := p.Upsert(ctx, z); err != nil {
			return 0, fmt.Errorf("seed zone %s: %w", z.Name, err)
		}
	}
	p.log.Info(ctx, "restricted zones seeded", logger.Int("count", len(zones)))
	return len(zones), nil
}

// BreakerState names the breaker state ("closed", "half-open", "open").
func (p *Provider) BreakerState() string {
	return p.cb.State().String()
}

// ActiveZones returns the size of the cached index, or 0 before the first lookup.
func (p *Provider) ActiveZones() int {
	if c := p.cache.Load(); c != nil {
		return c.idx.Len()
	}
	return 0
}
