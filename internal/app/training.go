package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/flightguard/internal/domain/corpus"
	"github.com/okian/flightguard/internal/domain/model"
	"github.com/okian/flightguard/internal/domain/risk"
	"github.com/okian/flightguard/internal/domain/types"
	"github.com/okian/flightguard/pkg/logger"
	"github.com/okian/flightguard/pkg/metrics"
)

// Training outcomes recorded in metrics.
const (
	outcomeSucceeded = "succeeded"
	outcomeCancelled = "cancelled"
	outcomeFailed    = "failed"
	outcomeRejected  = "rejected"
)

// ErrTrainingDataUnavailable means the corpus could not be read from storage.
var ErrTrainingDataUnavailable = errors.New("training data unavailable")

// trainingRun is a claimed training slot and the corpus it will fit.
type trainingRun struct {
	ctx      context.Context
	examples []model.TrainingExample
	finish   func(error)
}

// StartTraining validates the corpus and launches a background training run
// bounded by the training timeout. The run is registered before this returns,
// so status reports TRAINING and CancelTraining can stop it straight away.
// A rejected request carries the reason.
func (s *Service) StartTraining(ctx context.Context) (types.TrainResult, error) {
	run, err := s.acquireTraining(ctx, s.runCtx)
	if err != nil {
		return rejected(err), err
	}
	go func() { _, _ = s.runTraining(run) }()

	return types.TrainResult{Accepted: true, ExampleCount: len(run.examples)}, nil
}

// Train runs training synchronously and returns the new snapshot's figures.
func (s *Service) Train(ctx context.Context) (types.TrainResult, error) {
	run, err := s.acquireTraining(ctx, ctx)
	if err != nil {
		return rejected(err), err
	}
	snap, err := s.runTraining(run)
	if err != nil {
		return rejected(err), err
	}
	return types.TrainResult{
		Accepted:           true,
		Version:            snap.Version,
		Accuracy:           snap.TrainingAccuracy,
		ValidationAccuracy: snap.ValidationAccuracy,
		ExampleCount:       snap.ExampleCount,
	}, nil
}

// CancelTraining stops an in-flight run. The active snapshot is untouched.
func (s *Service) CancelTraining() bool {
	if !s.isStarted() {
		return false
	}
	return s.model.Cancel()
}

// ModelStatus describes the serving model.
func (s *Service) ModelStatus() types.ModelStatus {
	if !s.isStarted() {
		return types.ModelStatus{State: string(risk.StateUntrained)}
	}
	return toModelStatus(s.model.Status())
}

// Rollback re-activates a retained snapshot version.
func (s *Service) Rollback(ctx context.Context, version int64) (types.ModelStatus, error) {
	if !s.isStarted() {
		return types.ModelStatus{}, ErrNotStarted
	}
	snap, err := s.model.Rollback(ctx, version)
	if err != nil {
		return types.ModelStatus{}, err
	}
	metrics.UpdateModelVersion(snap.Version)
	metrics.UpdateModelAccuracy(snap.TrainingAccuracy, snap.ValidationAccuracy)
	return toModelStatus(s.model.Status()), nil
}

// acquireTraining claims the single training slot, loads the corpus and
// registers the run with the model on a context derived from parent. The
// slot is released on error, otherwise by the run's finish.
func (s *Service) acquireTraining(ctx, parent context.Context) (*trainingRun, error) {
	if !s.isStarted() {
		return nil, ErrNotStarted
	}
	if !s.trainBusy.CompareAndSwap(false, true) {
		metrics.RecordTrainingRun(outcomeRejected)
		return nil, risk.ErrTrainingInProgress
	}
	s.trainWG.Add(1)

	examples, err := s.loadCorpus(ctx)
	if err == nil {
		err = s.model.CheckCorpus(len(examples))
	}
	var run *trainingRun
	if err == nil {
		timeoutCtx, cancel := context.WithTimeout(parent, s.trainTimeout)
		runCtx, done, berr := s.model.Begin(timeoutCtx)
		if berr != nil {
			cancel()
			err = berr
		} else {
			run = &trainingRun{
				ctx:      runCtx,
				examples: examples,
				finish: func(err error) {
					done(err)
					cancel()
					s.trainBusy.Store(false)
					s.trainWG.Done()
				},
			}
		}
	}
	if err != nil {
		s.trainBusy.Store(false)
		s.trainWG.Done()
		metrics.RecordTrainingRun(outcomeRejected)
		s.logger.Warn(ctx, "training request rejected", logger.Error(err))
		return nil, err
	}
	return run, nil
}

func (s *Service) loadCorpus(ctx context.Context) ([]model.TrainingExample, error) {
	records, err := s.store.FlightRecords(ctx, "", 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTrainingDataUnavailable, err)
	}
	// storage order is per pilot; the validation split needs the newest last
	corpus.SortByTime(records)
	b := corpus.NewBuilder(len(records))
	b.AddRecords(records)
	if n := b.Skipped(); n > 0 {
		s.logger.Warn(ctx, "unpaired flight records skipped", logger.Int("count", n))
	}
	return b.Examples(), nil
}

func (s *Service) runTraining(run *trainingRun) (*risk.Snapshot, error) {
	ctx := run.ctx
	start := time.Now()
	log := s.logger.With(logger.Int("examples", len(run.examples)))
	log.Info(ctx, "training risk model")

	snap, err := s.model.Fit(ctx, run.examples)
	run.finish(err)
	metrics.RecordTrainingDuration(time.Since(start).Seconds())
	switch {
	case err == nil:
		metrics.RecordTrainingRun(outcomeSucceeded)
		metrics.UpdateModelVersion(snap.Version)
		metrics.UpdateModelAccuracy(snap.TrainingAccuracy, snap.ValidationAccuracy)
		log.Info(ctx, "training run finished",
			logger.Int64("version", snap.Version),
			logger.Float64("validationAccuracy", snap.ValidationAccuracy),
			logger.Duration("took", time.Since(start)))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		metrics.RecordTrainingRun(outcomeCancelled)
		log.Info(ctx, "training cancelled", logger.Error(err))
	default:
		metrics.RecordTrainingRun(outcomeFailed)
		metrics.RecordErrorByComponent("risk", "training")
		log.Error(ctx, "training failed", logger.Error(err))
	}
	return snap, err
}

func rejected(err error) types.TrainResult {
	return types.TrainResult{Accepted: false, Reason: err.Error()}
}

func toModelStatus(st risk.Status) types.ModelStatus {
	out := types.ModelStatus{
		State:              string(st.State),
		Version:            st.Version,
		Accuracy:           st.TrainingAccuracy,
		ValidationAccuracy: st.ValidationAccuracy,
		ExampleCount:       st.ExampleCount,
		LastError:          st.LastError,
	}
	if !st.TrainedAt.IsZero() {
		t := st.TrainedAt
		out.TrainedAt = &t
	}
	return out
}
