// Package risk trains and serves the flight risk prediction network.
//
// The active Snapshot is held behind an atomic pointer. Training builds a new
// network off to the side and publishes it only after it has been persisted,
// so readers never see a partially trained model.
package risk

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/flightguard/internal/domain/model"
	"github.com/okian/flightguard/pkg/logger"
)

// State of the model lifecycle.
type State string

// Model states.
const (
	StateUntrained State = "UNTRAINED"
	StateTraining  State = "TRAINING"
	StateReady     State = "READY"
)

// MinTrainingExamples is the smallest corpus Train accepts.
const MinTrainingExamples = 100

// SnapshotStore persists snapshots keyed by version plus an active pointer.
// ActiveVersion and LatestVersion return 0 when nothing is stored.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, version int64, data []byte) error
	LoadSnapshot(ctx context.Context, version int64) ([]byte, error)
	SetActiveVersion(ctx context.Context, version int64) error
	ActiveVersion(ctx context.Context) (int64, error)
	LatestVersion(ctx context.Context) (int64, error)
}

// TrainConfig holds training hyperparameters.
type TrainConfig struct {
	Epochs          int
	BatchSize       int
	ValidationSplit float64
	LearningRate    float64
	// Seed fixes initialization, dropout and shuffling. Zero picks a random seed.
	Seed uint64
	// OnEpoch, when set, is called after every epoch.
	OnEpoch func(epoch int, loss, accuracy float64)
}

// DefaultTrainConfig returns the standard hyperparameters.
func DefaultTrainConfig() TrainConfig {
	return TrainConfig{Epochs: 50, BatchSize: 32, ValidationSplit: 0.2, LearningRate: 0.001}
}

// Status describes the model for status endpoints.
type Status struct {
	State              State
	Version            int64
	TrainedAt          time.Time
	TrainingAccuracy   float64
	ValidationAccuracy float64
	ExampleCount       int
	LastError          string
}

// Model owns the active snapshot and the training state machine.
type Model struct {
	current atomic.Pointer[Snapshot]

	mu       sync.Mutex
	training bool
	cancel   context.CancelFunc
	latest   int64
	lastErr  error

	store       SnapshotStore
	cfg         TrainConfig
	minExamples int
	now         func() time.Time
	log         logger.Logger
}

// Option configures a Model.
type Option func(*Model)

// WithStore sets durable snapshot storage.
func WithStore(s SnapshotStore) Option {
	return func(m *Model) { m.store = s }
}

// WithTrainConfig overrides hyperparameters. Invalid values keep defaults.
func WithTrainConfig(cfg TrainConfig) Option {
	return func(m *Model) {
		def := DefaultTrainConfig()
		if cfg.Epochs < 1 {
			cfg.Epochs = def.Epochs
		}
		if cfg.BatchSize < 1 {
			cfg.BatchSize = def.BatchSize
		}
		if cfg.ValidationSplit <= 0 || cfg.ValidationSplit >= 1 {
			cfg.ValidationSplit = def.ValidationSplit
		}
		if cfg.LearningRate <= 0 {
			cfg.LearningRate = def.LearningRate
		}
		m.cfg = cfg
	}
}

// WithMinExamples raises the minimum corpus size. It cannot go below MinTrainingExamples.
func WithMinExamples(n int) Option {
	return func(m *Model) {
		if n > MinTrainingExamples {
			m.minExamples = n
		}
	}
}

// WithClock sets the time source for TrainedAt.
func WithClock(now func() time.Time) Option {
	return func(m *Model) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(m *Model) {
		if l != nil {
			m.log = l
		}
	}
}

// NewModel creates an untrained model.
func NewModel(opts ...Option) *Model {
	m := &Model{
		cfg:         DefaultTrainConfig(),
		minExamples: MinTrainingExamples,
		now:         time.Now,
		log:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State reports the lifecycle state.
func (m *Model) State() State {
	m.mu.Lock()
	training := m.training
	m.mu.Unlock()
	switch {
	case training:
		return StateTraining
	case m.current.Load() != nil:
		return StateReady
	default:
		return StateUntrained
	}
}

// Active returns the serving snapshot or nil.
func (m *Model) Active() *Snapshot {
	return m.current.Load()
}

// Status returns a consistent view of the model.
func (m *Model) Status() Status {
	st := Status{State: m.State()}
	m.mu.Lock()
	if m.lastErr != nil {
		st.LastError = m.lastErr.Error()
	}
	m.mu.Unlock()
	if s := m.current.Load(); s != nil {
		st.Version = s.Version
		st.TrainedAt = s.TrainedAt
		st.TrainingAccuracy = s.TrainingAccuracy
		st.ValidationAccuracy = s.ValidationAccuracy
		st.ExampleCount = s.ExampleCount
	}
	return st
}

// Predict scores a normalized feature vector against the active snapshot.
func (m *Model) Predict(features [model.FeatureCount]float64) (model.RiskScores, error) {
	s := m.current.Load()
	if s == nil {
		return model.RiskScores{}, ErrModelNotReady
	}
	return s.Predict(features), nil
}

// Train fits a new network on examples and publishes it as version latest+1.
// The previous snapshot keeps serving until the new one is stored. Cancelling
// ctx or calling Cancel abandons the run and leaves the active snapshot as is.
func (m *Model) Train(ctx context.Context, examples []model.TrainingExample) (*Snapshot, error) {
	if err := m.CheckCorpus(len(examples)); err != nil {
		return nil, err
	}
	ctx, done, err := m.Begin(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := m.Fit(ctx, examples)
	done(err)
	return snap, err
}

// Begin claims the training slot. From here until done is called the model
// reports TRAINING and Cancel ends the returned context. done records the
// run's outcome and may be called more than once; only the first call counts.
func (m *Model) Begin(ctx context.Context) (context.Context, func(error), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.training {
		return nil, nil, ErrTrainingInProgress
	}
	ctx, cancel := context.WithCancel(ctx)
	m.training = true
	m.cancel = cancel

	var once sync.Once
	done := func(err error) {
		once.Do(func() {
			m.mu.Lock()
			m.training = false
			m.cancel = nil
			m.lastErr = err
			m.mu.Unlock()
			cancel()
		})
	}
	return ctx, done, nil
}

// Fit runs one training pass on a context obtained from Begin.
func (m *Model) Fit(ctx context.Context, examples []model.TrainingExample) (*Snapshot, error) {
	if err := m.CheckCorpus(len(examples)); err != nil {
		return nil, err
	}
	snap, err := m.train(ctx, examples)
	if err != nil {
		m.log.Warn(ctx, "training aborted", logger.Error(err))
		return nil, err
	}
	return snap, nil
}

// CheckCorpus returns ErrInsufficientData when n examples are too few to train on.
func (m *Model) CheckCorpus(n int) error {
	if n >= m.minExamples {
		return nil
	}
	if m.minExamples != MinTrainingExamples {
		return fmt.Errorf("%w (minimum %d, have %d)", ErrInsufficientData, m.minExamples, n)
	}
	return ErrInsufficientData
}

// Cancel stops an in-flight training run. It reports whether one was running.
func (m *Model) Cancel() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel == nil {
		return false
	}
	m.cancel()
	return true
}

func (m *Model) train(ctx context.Context, examples []model.TrainingExample) (*Snapshot, error) {
	started := time.Now()
	seed := m.cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	xs := make([][]float64, len(examples))
	ys := make([][]float64, len(examples))
	for i := range examples {
		xs[i] = examples[i].Features[:]
		ys[i] = examples[i].Labels[:]
	}
	// callers pass examples oldest first, so the held-out tail is the newest
	split := int(float64(len(xs)) * (1 - m.cfg.ValidationSplit))
	trainX, trainY := xs[:split], ys[:split]
	valX, valY := xs[split:], ys[split:]

	net := newNetwork(rng)
	tr := newTrainer(net, m.cfg.LearningRate, rng)
	order := make([]int, len(trainX))
	for i := range order {
		order[i] = i
	}
	bx := make([][]float64, 0, m.cfg.BatchSize)
	by := make([][]float64, 0, m.cfg.BatchSize)

	for epoch := 1; epoch <= m.cfg.Epochs; epoch++ {
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		var loss float64
		batches := 0
		for start := 0; start < len(order); start += m.cfg.BatchSize {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("training cancelled at epoch %d: %w", epoch, err)
			}
			end := min(start+m.cfg.BatchSize, len(order))
			bx, by = bx[:0], by[:0]
			for _, idx := range order[start:end] {
				bx = append(bx, trainX[idx])
				by = append(by, trainY[idx])
			}
			loss += tr.trainBatch(bx, by)
			batches++
		}
		if m.cfg.OnEpoch != nil {
			m.cfg.OnEpoch(epoch, loss/float64(max(batches, 1)), binaryAccuracy(net, trainX, trainY))
		}
	}

	snap := &Snapshot{
		TrainedAt:          m.now().UTC(),
		TrainingAccuracy:   binaryAccuracy(net, trainX, trainY),
		ValidationAccuracy: binaryAccuracy(net, valX, valY),
		ExampleCount:       len(examples),
		Network:            net,
	}
	if err := m.publish(ctx, snap); err != nil {
		return nil, err
	}
	m.log.Info(ctx, "risk model trained",
		logger.Int64("version", snap.Version),
		logger.Int("examples", snap.ExampleCount),
		logger.Float64("accuracy", snap.TrainingAccuracy),
		logger.Float64("validationAccuracy", snap.ValidationAccuracy),
		logger.Duration("took", time.Since(started)))
	return snap, nil
}

// publish assigns the next version, persists, then swaps the active pointer.
func (m *Model) publish(ctx context.Context, snap *Snapshot) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("training cancelled before publish: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.latest
	if m.store != nil {
		stored, err := m.store.LatestVersion(ctx)
		if err != nil {
			return fmt.Errorf("read latest snapshot version: %w", err)
		}
		next = max(next, stored)
	}
	if cur := m.current.Load(); cur != nil {
		next = max(next, cur.Version)
	}
	snap.Version = next + 1

	if m.store != nil {
		if err := m.persist(ctx, snap); err != nil {
			return err
		}
	}
	m.latest = snap.Version
	m.current.Store(snap)
	return nil
}

func (m *Model) persist(ctx context.Context, snap *Snapshot) error {
	data, err := EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	if err := m.store.SaveSnapshot(ctx, snap.Version, data); err != nil {
		return fmt.Errorf("save snapshot v%d: %w", snap.Version, err)
	}
	if err := m.store.SetActiveVersion(ctx, snap.Version); err != nil {
		return fmt.Errorf("activate snapshot v%d: %w", snap.Version, err)
	}
	return nil
}

// Save writes the active snapshot to the store and marks it active.
func (m *Model) Save(ctx context.Context) error {
	if m.store == nil {
		return ErrNoStore
	}
	s := m.current.Load()
	if s == nil {
		return ErrModelNotReady
	}
	return m.persist(ctx, s)
}

// Load restores the stored active snapshot. A missing or corrupt snapshot
// returns false and leaves the model untouched.
func (m *Model) Load(ctx context.Context) bool {
	if m.store == nil {
		return false
	}
	version, err := m.store.ActiveVersion(ctx)
	if err != nil || version == 0 {
		if err != nil {
			m.log.Warn(ctx, "active snapshot pointer unreadable", logger.Error(err))
		}
		return false
	}
	snap, err := m.fetch(ctx, version)
	if err != nil {
		m.log.Warn(ctx, "stored snapshot unusable, serving rule-only", logger.Int64("version", version), logger.Error(err))
		return false
	}

	m.mu.Lock()
	m.latest = max(m.latest, snap.Version)
	if latest, err := m.store.LatestVersion(ctx); err == nil {
		m.latest = max(m.latest, latest)
	}
	m.current.Store(snap)
	m.mu.Unlock()
	m.log.Info(ctx, "risk model loaded", logger.Int64("version", snap.Version))
	return true
}

// Rollback makes a previously stored version active again.
func (m *Model) Rollback(ctx context.Context, version int64) (*Snapshot, error) {
	if m.store == nil {
		return nil, ErrNoStore
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.training {
		return nil, ErrTrainingInProgress
	}
	snap, err := m.fetch(ctx, version)
	if err != nil {
		return nil, err
	}
	if err := m.store.SetActiveVersion(ctx, version); err != nil {
		return nil, fmt.Errorf("activate snapshot v%d: %w", version, err)
	}
	m.current.Store(snap)
	m.log.Info(ctx, "risk model rolled back", logger.Int64("version", version))
	return snap, nil
}

func (m *Model) fetch(ctx context.Context, version int64) (*Snapshot, error) {
	data, err := m.store.LoadSnapshot(ctx, version)
	if err != nil {
		return nil, fmt.Errorf("%w: v%d: %w", ErrSnapshotNotFound, version, err)
	}
	snap, err := DecodeSnapshot(data)
	if err != nil {
		return nil, err
	}
	if snap.Version != version {
		return nil, fmt.Errorf("%w: stored v%d under key v%d", ErrCorruptSnapshot, snap.Version, version)
	}
	return snap, nil
}

// IsNotReady reports whether err means inference is unavailable.
func IsNotReady(err error) bool {
	return errors.Is(err, ErrModelNotReady)
}
