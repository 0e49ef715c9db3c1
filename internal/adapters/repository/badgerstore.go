package repository

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/okian/flightguard/internal/domain/model"
	"github.com/okian/flightguard/pkg/logger"
	"github.com/okian/flightguard/pkg/metrics"
)

// Key layout:
//
//	tel/<pilot>/<unix-nanos>/<sampleID>  telemetry sample
//	cmp/<sampleID>                       compliance record
//	zone/<name>                          restricted zone
//	snap/v/<version>                     model snapshot
//	snap/active                          active snapshot version
const (
	telemetryPrefix  = "tel/"
	compliancePrefix = "cmp/"
	zonePrefix       = "zone/"
	snapshotPrefix   = "snap/v/"
	activeSnapshot   = "snap/active"
)

// BadgerStore implements Store on an embedded Badger database.
type BadgerStore struct {
	db         *badger.DB
	syncWrites bool
	log        logger.Logger
}

var _ Store = (*BadgerStore)(nil)

// NewBadgerStore opens a store at dir. An empty dir keeps everything in memory.
func NewBadgerStore(dir string, opts ...Option) (*BadgerStore, error) {
	s := &BadgerStore{log: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}

	bopts := badger.DefaultOptions(dir)
	if dir == "" {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts = bopts.WithLogger(nil).WithSyncWrites(s.syncWrites)

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("%w: open badger at %q: %w", ErrPersistence, dir, err)
	}
	s.db = db
	s.log.Info(context.Background(), "repository opened",
		logger.String("dir", dir),
		logger.Bool("inMemory", dir == ""))
	return s, nil
}

// Close releases the database.
func (s *BadgerStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("%w: close: %w", ErrPersistence, err)
	}
	return nil
}

func telemetryKey(s model.TelemetrySample) []byte {
	return []byte(telemetryPrefix + url.PathEscape(s.PilotID) + "/" +
		fmt.Sprintf("%020d", s.Timestamp.UnixNano()) + "/" + s.ID)
}

func telemetryScanPrefix(pilotID string) []byte {
	if pilotID == "" {
		return []byte(telemetryPrefix)
	}
	return []byte(telemetryPrefix + url.PathEscape(pilotID) + "/")
}

func snapshotKey(version int64) []byte {
	return []byte(snapshotPrefix + fmt.Sprintf("%020d", version))
}

// SaveFlight writes the sample and its record in one transaction.
func (s *BadgerStore) SaveFlight(ctx context.Context, rec model.FlightRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	defer func() { metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Microseconds()) / 1000) }()

	sample, err := json.Marshal(rec.Sample)
	if err != nil {
		return fmt.Errorf("encode sample %s: %w", rec.Sample.ID, err)
	}
	verdict, err := json.Marshal(rec.Record)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", rec.Sample.ID, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(telemetryKey(rec.Sample), sample); err != nil {
			return err
		}
		return txn.Set([]byte(compliancePrefix+rec.Sample.ID), verdict)
	})
	if err != nil {
		return fmt.Errorf("%w: save flight %s: %w", ErrPersistence, rec.Sample.ID, err)
	}
	return nil
}

// FlightRecords scans samples in key order and joins their compliance records.
// Samples whose record is missing are skipped.
func (s *BadgerStore) FlightRecords(ctx context.Context, pilotID string, limit int) ([]model.FlightRecord, error) {
	start := time.Now()
	defer func() { metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Microseconds()) / 1000) }()

	var out []model.FlightRecord
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := telemetryScanPrefix(pilotID)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var fr model.FlightRecord
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &fr.Sample)
			}); err != nil {
				return fmt.Errorf("decode sample %s: %w", it.Item().Key(), err)
			}
			item, err := txn.Get([]byte(compliancePrefix + fr.Sample.ID))
			if errors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &fr.Record)
			}); err != nil {
				return fmt.Errorf("decode record %s: %w", fr.Sample.ID, err)
			}
			out = append(out, fr)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: scan flights: %w", ErrPersistence, err)
	}
	if out == nil {
		out = []model.FlightRecord{}
	}
	return out, nil
}

// Count returns the number of stored samples.
func (s *BadgerStore) Count(ctx context.Context) (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(telemetryPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: count: %w", ErrPersistence, err)
	}
	return count, nil
}

// Zones returns every stored zone ordered by name.
func (s *BadgerStore) Zones(ctx context.Context) ([]model.RestrictedZone, error) {
	zones := []model.RestrictedZone{}
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(zonePrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var z model.RestrictedZone
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &z)
			}); err != nil {
				return fmt.Errorf("decode zone %s: %w", it.Item().Key(), err)
			}
			zones = append(zones, z)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list zones: %w", ErrPersistence, err)
	}
	return zones, nil
}

// UpsertZone stores z under its name.
func (s *BadgerStore) UpsertZone(ctx context.Context, z model.RestrictedZone) error {
	if z.Name == "" || z.RadiusMiles < 0 {
		return ErrInvalidZone
	}
	data, err := json.Marshal(z)
	if err != nil {
		return fmt.Errorf("encode zone %s: %w", z.Name, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(zonePrefix+z.Name), data)
	})
	if err != nil {
		return fmt.Errorf("%w: upsert zone %s: %w", ErrPersistence, z.Name, err)
	}
	return nil
}

// DeleteZone removes a zone. Deleting an unknown zone returns ErrNotFound.
func (s *BadgerStore) DeleteZone(ctx context.Context, name string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		key := []byte(zonePrefix + name)
		if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		} else if err != nil {
			return fmt.Errorf("%w: delete zone %s: %w", ErrPersistence, name, err)
		}
		return txn.Delete(key)
	})
}

// SaveSnapshot stores snapshot bytes under version.
func (s *BadgerStore) SaveSnapshot(ctx context.Context, version int64, data []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(snapshotKey(version), data)
	})
	if err != nil {
		return fmt.Errorf("%w: save snapshot v%d: %w", ErrPersistence, version, err)
	}
	return nil
}

// LoadSnapshot returns the bytes stored for version or ErrNotFound.
func (s *BadgerStore) LoadSnapshot(ctx context.Context, version int64) ([]byte, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey(version))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("%w: load snapshot v%d: %w", ErrPersistence, version, err)
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// SetActiveVersion points the active pointer at version.
func (s *BadgerStore) SetActiveVersion(ctx context.Context, version int64) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(activeSnapshot), []byte(strconv.FormatInt(version, 10)))
	})
	if err != nil {
		return fmt.Errorf("%w: set active snapshot: %w", ErrPersistence, err)
	}
	return nil
}

// ActiveVersion returns the active version or 0 when unset.
func (s *BadgerStore) ActiveVersion(ctx context.Context) (int64, error) {
	var version int64
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(activeSnapshot))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			v, err := strconv.ParseInt(string(val), 10, 64)
			version = v
			return err
		})
	})
	if err != nil {
		return 0, fmt.Errorf("%w: read active snapshot: %w", ErrPersistence, err)
	}
	return version, nil
}

// LatestVersion returns the highest stored version or 0.
func (s *BadgerStore) LatestVersion(ctx context.Context) (int64, error) {
	var version int64
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(snapshotPrefix)
		seek := append([]byte(snapshotPrefix), 0xFF)
		it.Seek(seek)
		if !it.ValidForPrefix(prefix) {
			return nil
		}
		v, err := strconv.ParseInt(string(it.Item().Key()[len(prefix):]), 10, 64)
		if err != nil {
			return fmt.Errorf("parse snapshot key %s: %w", it.Item().Key(), err)
		}
		version = v
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: latest snapshot: %w", ErrPersistence, err)
	}
	return version, nil
}
