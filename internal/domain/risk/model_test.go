package risk_test

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/okian/flightguard/internal/domain/corpus"
	"github.com/okian/flightguard/internal/domain/model"
	"github.com/okian/flightguard/internal/domain/risk"
	. "github.com/smartystreets/goconvey/convey"
)

var errMissing = errors.New("missing")

type memStore struct {
	mu     sync.Mutex
	snaps  map[int64][]byte
	active int64
}

func newMemStore() *memStore { return &memStore{snaps: map[int64][]byte{}} }

func (s *memStore) SaveSnapshot(_ context.Context, v int64, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[v] = append([]byte(nil), data...)
	return nil
}

func (s *memStore) LoadSnapshot(_ context.Context, v int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.snaps[v]
	if !ok {
		return nil, errMissing
	}
	return d, nil
}

func (s *memStore) SetActiveVersion(_ context.Context, v int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = v
	return nil
}

func (s *memStore) ActiveVersion(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active, nil
}

func (s *memStore) LatestVersion(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest int64
	for v := range s.snaps {
		latest = max(latest, v)
	}
	return latest, nil
}

func examples(n int, seed uint64) []model.TrainingExample {
	rng := rand.New(rand.NewPCG(seed, seed))
	out := make([]model.TrainingExample, n)
	for i := range out {
		s := model.TelemetrySample{
			Position:     model.Position{Lat: 34 + rng.Float64(), Lng: -78 + rng.Float64()},
			AltitudeFeet: rng.Float64() * 500,
			SpeedMph:     rng.Float64() * 50,
			BatteryPct:   rng.Float64() * 100,
			SignalPct:    rng.Float64() * 100,
			HeadingDeg:   rng.Float64() * 360,
		}
		out[i] = model.TrainingExample{Features: corpus.Features(s), Labels: corpus.Labels(s)}
	}
	return out
}

func quick(seed uint64) risk.TrainConfig {
	cfg := risk.DefaultTrainConfig()
	cfg.Epochs = 2
	cfg.Seed = seed
	return cfg
}

func TestModelLifecycle(t *testing.T) {
	ctx := context.Background()

	Convey("Given an untrained model with a store", t, func() {
		store := newMemStore()
		m := risk.NewModel(risk.WithStore(store), risk.WithTrainConfig(quick(1)))

		Convey("Then it is UNTRAINED and cannot predict", func() {
			So(m.State(), ShouldEqual, risk.StateUntrained)
			_, err := m.Predict([model.FeatureCount]float64{})
			So(errors.Is(err, risk.ErrModelNotReady), ShouldBeTrue)
			So(risk.IsNotReady(err), ShouldBeTrue)
		})

		Convey("When trained with 99 examples", func() {
			_, err := m.Train(ctx, examples(99, 1))

			Convey("Then it fails with insufficient data and stays untrained", func() {
				So(errors.Is(err, risk.ErrInsufficientData), ShouldBeTrue)
				So(err.Error(), ShouldEqual, "Need at least 100 flight records to train")
				So(m.State(), ShouldEqual, risk.StateUntrained)
			})
		})

		Convey("When trained with exactly 100 examples", func() {
			snap, err := m.Train(ctx, examples(100, 2))

			Convey("Then version 1 is active and predictions are in [0,1]", func() {
				So(err, ShouldBeNil)
				So(snap.Version, ShouldEqual, 1)
				So(snap.ExampleCount, ShouldEqual, 100)
				So(m.State(), ShouldEqual, risk.StateReady)
				So(store.active, ShouldEqual, 1)

				scores, err := m.Predict(examples(1, 9)[0].Features)
				So(err, ShouldBeNil)
				for _, v := range []float64{scores.AltitudeViolationRisk, scores.BatteryWarning, scores.SignalLossRisk, scores.OverallSafety} {
					So(v, ShouldBeBetweenOrEqual, 0, 1)
				}
			})

			Convey("And retraining increments the version by one", func() {
				next, err := m.Train(ctx, examples(120, 3))
				So(err, ShouldBeNil)
				So(next.Version, ShouldEqual, 2)
				So(m.Status().Version, ShouldEqual, 2)

				Convey("And the previous snapshot is still loadable", func() {
					data, err := store.LoadSnapshot(ctx, 1)
					So(err, ShouldBeNil)
					prev, err := risk.DecodeSnapshot(data)
					So(err, ShouldBeNil)
					So(prev.Version, ShouldEqual, 1)
				})

				Convey("And rollback reactivates it without reusing its number", func() {
					back, err := m.Rollback(ctx, 1)
					So(err, ShouldBeNil)
					So(back.Version, ShouldEqual, 1)
					So(m.Active().Version, ShouldEqual, 1)
					So(store.active, ShouldEqual, 1)

					again, err := m.Train(ctx, examples(100, 4))
					So(err, ShouldBeNil)
					So(again.Version, ShouldEqual, 3)
				})

				Convey("And rollback to an unknown version fails", func() {
					_, err := m.Rollback(ctx, 42)
					So(errors.Is(err, risk.ErrSnapshotNotFound), ShouldBeTrue)
					So(m.Active().Version, ShouldEqual, 2)
				})
			})

			Convey("And a fresh model loads the active snapshot", func() {
				other := risk.NewModel(risk.WithStore(store))
				So(other.Load(ctx), ShouldBeTrue)
				So(other.State(), ShouldEqual, risk.StateReady)
				So(other.Active().Version, ShouldEqual, 1)

				a, _ := m.Predict(examples(1, 5)[0].Features)
				b, _ := other.Predict(examples(1, 5)[0].Features)
				So(b, ShouldResemble, a)
			})
		})

		Convey("When the stored snapshot is corrupt", func() {
			_ = store.SaveSnapshot(ctx, 1, []byte("{not json"))
			_ = store.SetActiveVersion(ctx, 1)

			Convey("Then Load reports not found instead of failing", func() {
				So(m.Load(ctx), ShouldBeFalse)
				So(m.State(), ShouldEqual, risk.StateUntrained)
			})
		})

		Convey("When nothing is stored", func() {
			So(m.Load(ctx), ShouldBeFalse)
		})
	})
}

func TestModelCancellation(t *testing.T) {
	ctx := context.Background()

	Convey("Given a ready model", t, func() {
		m := risk.NewModel(risk.WithStore(newMemStore()), risk.WithTrainConfig(quick(7)))
		first, err := m.Train(ctx, examples(100, 1))
		So(err, ShouldBeNil)

		Convey("When training runs with an already cancelled context", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()
			_, err := m.Train(cctx, examples(100, 2))

			Convey("Then the previous snapshot keeps serving", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
				So(m.Active(), ShouldEqual, first)
				So(m.State(), ShouldEqual, risk.StateReady)
				So(m.Status().LastError, ShouldNotBeEmpty)
			})
		})

		Convey("When a run is in flight", func() {
			cfg := quick(8)
			cfg.Epochs = 5
			started := make(chan struct{})
			release := make(chan struct{})
			var once sync.Once
			cfg.OnEpoch = func(int, float64, float64) {
				once.Do(func() {
					close(started)
					<-release
				})
			}
			busy := risk.NewModel(risk.WithStore(newMemStore()), risk.WithTrainConfig(cfg))
			done := make(chan error, 1)
			go func() {
				_, err := busy.Train(ctx, examples(100, 3))
				done <- err
			}()
			<-started

			Convey("Then state is TRAINING, a second run is rejected and Cancel stops it", func() {
				So(busy.State(), ShouldEqual, risk.StateTraining)
				_, err := busy.Train(ctx, examples(100, 4))
				So(errors.Is(err, risk.ErrTrainingInProgress), ShouldBeTrue)

				So(busy.Cancel(), ShouldBeTrue)
				close(release)
				So(errors.Is(<-done, context.Canceled), ShouldBeTrue)
				So(busy.State(), ShouldEqual, risk.StateUntrained)
				So(busy.Active(), ShouldBeNil)
				So(busy.Cancel(), ShouldBeFalse)
			})
		})
	})
}

func TestModelBegin(t *testing.T) {
	ctx := context.Background()

	Convey("Given a ready model", t, func() {
		m := risk.NewModel(risk.WithStore(newMemStore()), risk.WithTrainConfig(quick(9)))
		first, err := m.Train(ctx, examples(100, 1))
		So(err, ShouldBeNil)

		Convey("When a run is claimed but has not started fitting", func() {
			runCtx, done, err := m.Begin(ctx)
			So(err, ShouldBeNil)

			Convey("Then it reports TRAINING and can be cancelled before the fit", func() {
				So(m.State(), ShouldEqual, risk.StateTraining)
				_, _, err := m.Begin(ctx)
				So(errors.Is(err, risk.ErrTrainingInProgress), ShouldBeTrue)

				So(m.Cancel(), ShouldBeTrue)
				_, err = m.Fit(runCtx, examples(100, 2))
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
				done(err)
				done(nil)

				So(m.State(), ShouldEqual, risk.StateReady)
				So(m.Active(), ShouldEqual, first)
				So(m.Status().LastError, ShouldNotBeEmpty)
				So(m.Cancel(), ShouldBeFalse)
			})
		})
	})
}

func TestModelLearns(t *testing.T) {
	Convey("Given a seeded training run", t, func() {
		var losses []float64
		cfg := risk.DefaultTrainConfig()
		cfg.Epochs = 20
		cfg.Seed = 42
		cfg.OnEpoch = func(_ int, loss, _ float64) { losses = append(losses, loss) }
		m := risk.NewModel(risk.WithTrainConfig(cfg))

		snap, err := m.Train(context.Background(), examples(200, 11))

		Convey("Then loss falls and accuracies are reported", func() {
			So(err, ShouldBeNil)
			So(losses, ShouldHaveLength, 20)
			So(losses[19], ShouldBeLessThan, losses[0])
			So(snap.TrainingAccuracy, ShouldBeBetweenOrEqual, 0, 1)
			So(snap.ValidationAccuracy, ShouldBeBetweenOrEqual, 0, 1)
		})
	})
}

func TestSnapshotCodec(t *testing.T) {
	Convey("Given snapshot bytes", t, func() {
		Convey("When they are not a valid network", func() {
			_, err := risk.DecodeSnapshot([]byte(`{"version":1,"network":{"layers":[]}}`))
			So(errors.Is(err, risk.ErrCorruptSnapshot), ShouldBeTrue)
		})

		Convey("When encoding nil", func() {
			_, err := risk.EncodeSnapshot(nil)
			So(errors.Is(err, risk.ErrCorruptSnapshot), ShouldBeTrue)
		})
	})
}
