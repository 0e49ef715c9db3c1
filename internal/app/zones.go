package service

import (
	"context"
	"fmt"

	"github.com/okian/flightguard/internal/adapters/repository"
	"github.com/okian/flightguard/internal/domain/model"
	"github.com/okian/flightguard/pkg/logger"
)

// Zones lists the stored restricted zones.
func (s *Service) Zones(ctx context.Context) ([]model.RestrictedZone, error) {
	if !s.isStarted() {
		return nil, ErrNotStarted
	}
	return s.store.Zones(ctx)
}

// UpsertZone stores z and drops the cached zone index.
func (s *Service) UpsertZone(ctx context.Context, z model.RestrictedZone) error {
	if !s.isStarted() {
		return ErrNotStarted
	}
	if z.Name == "" || z.RadiusMiles <= 0 {
		return fmt.Errorf("%w: name required and radius must be positive", repository.ErrInvalidZone)
	}
	if err := s.zones.Upsert(ctx, z); err != nil {
		return err
	}
	s.logger.Info(ctx, "restricted zone updated",
		logger.String("zone", z.Name),
		logger.Float64("radiusMiles", z.RadiusMiles),
		logger.Bool("active", z.Active))
	return nil
}

// DeleteZone removes a zone by name.
func (s *Service) DeleteZone(ctx context.Context, name string) error {
	if !s.isStarted() {
		return ErrNotStarted
	}
	if err := s.zones.Delete(ctx, name); err != nil {
		return err
	}
	s.logger.Info(ctx, "restricted zone deleted", logger.String("zone", name))
	return nil
}
