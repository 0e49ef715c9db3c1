// Package repository persists telemetry, compliance records, restricted
// zones and model snapshots.
package repository

import (
	"context"

	"github.com/okian/flightguard/internal/domain/model"
)

// Store provides durable access to flight data and model snapshots.
type Store interface {
	// SaveFlight writes a sample and its compliance record together.
	SaveFlight(ctx context.Context, rec model.FlightRecord) error
	// FlightRecords returns stored pairs for pilotID ordered by timestamp.
	// An empty pilotID returns every pilot. limit <= 0 means no limit.
	FlightRecords(ctx context.Context, pilotID string, limit int) ([]model.FlightRecord, error)
	// Count returns the number of stored samples.
	Count(ctx context.Context) (int, error)

	Zones(ctx context.Context) ([]model.RestrictedZone, error)
	UpsertZone(ctx context.Context, z model.RestrictedZone) error
	DeleteZone(ctx context.Context, name string) error

	SaveSnapshot(ctx context.Context, version int64, data []byte) error
	LoadSnapshot(ctx context.Context, version int64) ([]byte, error)
	SetActiveVersion(ctx context.Context, version int64) error
	ActiveVersion(ctx context.Context) (int64, error)
	LatestVersion(ctx context.Context) (int64, error)

	Close() error
}
