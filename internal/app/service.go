// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/flightguard/internal/adapters/airspace"
	"github.com/okian/flightguard/internal/adapters/mq/queue"
	"github.com/okian/flightguard/internal/adapters/mq/worker"
	"github.com/okian/flightguard/internal/adapters/repository"
	"github.com/okian/flightguard/internal/domain/compliance"
	"github.com/okian/flightguard/internal/domain/corpus"
	"github.com/okian/flightguard/internal/domain/dedupe"
	"github.com/okian/flightguard/internal/domain/model"
	"github.com/okian/flightguard/internal/domain/recommend"
	"github.com/okian/flightguard/internal/domain/risk"
	"github.com/okian/flightguard/internal/domain/telemetry"
	"github.com/okian/flightguard/internal/domain/types"
	"github.com/okian/flightguard/pkg/logger"
	"github.com/okian/flightguard/pkg/metrics"
)

// Service implements the API dependencies for the compliance engine.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      *repository.BadgerStore
	zones      *airspace.Provider
	normalizer *telemetry.Normalizer
	deduper    dedupe.Deduper
	queue      *queue.InMemoryQueue
	workerPool *worker.Pool
	model      *risk.Model

	// Configuration
	dataDir         string
	workerCount     int
	queueSize       int
	dedupeSize      int
	persistRetries  uint64
	persistBackoff  time.Duration
	trainCfg        risk.TrainConfig
	minExamples     int
	trainTimeout    time.Duration
	zoneTTL         time.Duration
	breakerFailures int
	breakerTimeout  time.Duration
	seedZones       []model.RestrictedZone
	now             func() time.Time

	// State
	started   bool
	startedAt time.Time
	runCtx    context.Context
	stopRun   context.CancelFunc
	trainBusy atomic.Bool
	trainWG   sync.WaitGroup

	checks       atomic.Int64
	nonCompliant atomic.Int64
	duplicates   atomic.Int64

	// Logging
	logger logger.Logger
}

// New creates a new service instance with the given options.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:     runtime.NumCPU(),
		queueSize:       10_000,
		dedupeSize:      100_000,
		persistRetries:  3,
		persistBackoff:  50 * time.Millisecond,
		trainCfg:        risk.DefaultTrainConfig(),
		minExamples:     risk.MinTrainingExamples,
		trainTimeout:    10 * time.Minute,
		zoneTTL:         30 * time.Second,
		breakerFailures: 5,
		breakerTimeout:  30 * time.Second,
		now:             time.Now,
		logger:          logger.Get().Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes and starts all service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return ErrAlreadyStarted
	}

	s.logger.Info(ctx, "starting compliance service")

	store, err := repository.NewBadgerStore(s.dataDir, repository.WithLogger(s.logger.Named("repository")))
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}

	zones := airspace.NewProvider(store,
		airspace.WithCacheTTL(s.zoneTTL),
		airspace.WithBreaker(uint32(s.breakerFailures), s.breakerTimeout),
		airspace.WithLogger(s.logger.Named("airspace")),
	)
	if _, err := zones.Seed(ctx, s.seedZones); err != nil {
		_ = store.Close()
		return fmt.Errorf("seed restricted zones: %w", err)
	}

	rm := risk.NewModel(
		risk.WithStore(store),
		risk.WithTrainConfig(s.trainCfg),
		risk.WithMinExamples(s.minExamples),
		risk.WithLogger(s.logger.Named("risk")),
	)
	if !rm.Load(ctx) {
		s.logger.Info(ctx, "no stored risk model, serving rule-only verdicts")
	}
	if snap := rm.Active(); snap != nil {
		metrics.UpdateModelVersion(snap.Version)
		metrics.UpdateModelAccuracy(snap.TrainingAccuracy, snap.ValidationAccuracy)
	}

	q := queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	pool := worker.NewPool(s.workerCount, q, store,
		worker.WithRetry(s.persistRetries, s.persistBackoff),
		worker.WithLogger(s.logger.Named("worker")),
	)

	s.store = store
	s.zones = zones
	s.normalizer = telemetry.NewNormalizer(telemetry.WithClock(s.now))
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = q
	s.workerPool = pool
	s.model = rm
	s.runCtx, s.stopRun = context.WithCancel(context.WithoutCancel(ctx))

	pool.Start(s.runCtx)

	s.started = true
	s.startedAt = s.now()
	s.logger.Info(ctx, "compliance service started",
		logger.String("dataDir", s.dataDir),
		logger.Int("workerCount", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.String("modelState", string(rm.State())),
	)

	return nil
}

// Stop cancels training, drains pending writes and closes the store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.logger.Info(ctx, "stopping compliance service...")

	s.model.Cancel()
	s.trainWG.Wait()

	// workers drain the closed queue on the still-live run context
	var errs []error
	if err := s.workerPool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	s.stopRun()
	if lost := int64(s.queue.Len(ctx)) + s.queue.Dropped(); lost > 0 {
		metrics.RecordErrorByComponent("service", "shutdown_drop")
		s.logger.Error(ctx, "flight records not persisted before shutdown",
			logger.Int64("records", lost))
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, err)
	}

	s.started = false
	s.logger.Info(ctx, "compliance service stopped")
	return errors.Join(errs...)
}

func (s *Service) isStarted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// Check validates raw telemetry, evaluates it against the altitude ceiling and
// the restricted zones, attaches risk scores when a model is serving, and
// queues the sample and verdict for persistence. Only validation failures
// fail the check.
func (s *Service) Check(ctx context.Context, raw telemetry.Raw) (types.CheckResult, error) {
	if !s.isStarted() {
		return types.CheckResult{}, ErrNotStarted
	}
	start := time.Now()

	sample, err := s.normalizer.Normalize(ctx, raw)
	if err != nil {
		var ve *telemetry.ValidationError
		if errors.As(err, &ve) {
			metrics.RecordValidationError(ve.Field)
		}
		return types.CheckResult{}, err
	}

	record := s.evaluate(ctx, sample)

	res := types.CheckResult{
		RecordID:            record.ID,
		IsCompliant:         record.IsCompliant,
		Warnings:            record.Warnings,
		ZoneDataUnavailable: record.ZoneDataUnavailable,
	}

	if snap := s.model.Active(); snap != nil {
		scores := snap.Predict(corpus.Features(sample))
		res.RiskScores = &scores
		res.ModelVersion = snap.Version
		res.Recommendations = recommend.Recommend(scores, sample)
		metrics.RecordPrediction()
		for _, r := range res.Recommendations {
			metrics.RecordRecommendation(r.Action)
		}
	} else {
		metrics.RecordPredictionSkipped("model_not_ready")
	}

	if s.deduper.SeenAndRecord(ctx, dedupe.Fingerprint(sample)) {
		res.Duplicate = true
		s.duplicates.Add(1)
		metrics.RecordCheckDuplicate()
	} else {
		s.persist(ctx, model.FlightRecord{Sample: sample, Record: record})
	}

	s.checks.Add(1)
	if !res.IsCompliant {
		s.nonCompliant.Add(1)
	}
	metrics.RecordCheck(res.IsCompliant)
	metrics.RecordCheckLatency(float64(time.Since(start).Microseconds()) / 1000)
	return res, nil
}

// evaluate runs the rule evaluator. Zone lookup failures degrade to the
// altitude rule with the zone-data-unavailable warning.
func (s *Service) evaluate(ctx context.Context, sample model.TelemetrySample) model.ComplianceRecord {
	evaluatedAt := s.now()
	var record model.ComplianceRecord
	idx, err := s.zones.Index(ctx)
	if err != nil {
		s.logger.Warn(ctx, "zone data unavailable, evaluating altitude only",
			logger.String("pilotId", sample.PilotID),
			logger.String("sampleId", sample.ID),
			logger.Error(err))
		record = compliance.EvaluateWithoutZones(sample, evaluatedAt)
	} else {
		record = compliance.Stamp(sample, compliance.Check(sample, idx), evaluatedAt)
	}
	record.ID = uuid.NewString()
	return record
}

// persist hands the record to the worker pool. A full or closed queue is
// logged and forgotten so that a retry of the same sample can be stored.
func (s *Service) persist(ctx context.Context, fr model.FlightRecord) {
	err := s.queue.Enqueue(ctx, fr)
	if err == nil {
		return
	}
	s.deduper.Unrecord(ctx, dedupe.Fingerprint(fr.Sample))
	metrics.RecordPersistenceFailure()
	metrics.RecordErrorByComponent("service", "enqueue")
	s.logger.Error(ctx, "flight record not queued for persistence",
		logger.String("pilotId", fr.Sample.PilotID),
		logger.String("sampleId", fr.Sample.ID),
		logger.Error(err))
}

// TrainingData returns persisted samples for pilotID (all pilots when empty)
// with the features and labels derived from them, oldest first.
func (s *Service) TrainingData(ctx context.Context, pilotID string, limit int) ([]types.TrainingRecord, error) {
	if !s.isStarted() {
		return nil, ErrNotStarted
	}
	records, err := s.store.FlightRecords(ctx, pilotID, limit)
	if err != nil {
		return nil, err
	}
	corpus.SortByTime(records)
	out := make([]types.TrainingRecord, 0, len(records))
	for _, fr := range records {
		ex, err := corpus.ToExample(fr.Sample, fr.Record)
		if err != nil {
			s.logger.Warn(ctx, "skipping unpaired flight record",
				logger.String("sampleId", fr.Sample.ID), logger.Error(err))
			continue
		}
		out = append(out, types.TrainingRecord{
			SampleID:    fr.Sample.ID,
			PilotID:     fr.Sample.PilotID,
			Timestamp:   fr.Sample.Timestamp,
			IsCompliant: fr.Record.IsCompliant,
			Warnings:    fr.Record.Warnings,
			Features:    ex.Features,
			Labels:      ex.Labels,
		})
	}
	return out, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) types.Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := types.Stats{
		ChecksTotal:  s.checks.Load(),
		NonCompliant: s.nonCompliant.Load(),
		Duplicates:   s.duplicates.Load(),
		WorkerCount:  s.workerCount,
		ModelState:   string(risk.StateUntrained),
	}
	if !s.started {
		return stats
	}

	ps := s.workerPool.Stats()
	stats.Persisted = ps.Persisted.Load()
	stats.PersistFailures = ps.Failed.Load()
	stats.QueueDepth = s.queue.Len(ctx)
	stats.QueueCapacity = s.queue.Cap()
	stats.DedupeSize = s.deduper.Size()
	stats.ActiveZones = s.zones.ActiveZones()
	stats.ZoneBreaker = s.zones.BreakerState()
	st := s.model.Status()
	stats.ModelState = string(st.State)
	stats.ModelVersion = st.Version
	stats.UptimeSeconds = s.now().Sub(s.startedAt).Seconds()

	metrics.UpdateQueueSize(stats.QueueDepth)
	metrics.UpdateWorkerCount(s.workerCount)
	return stats
}

// Ready reports whether the service accepts checks.
func (s *Service) Ready() bool {
	return s.isStarted()
}
