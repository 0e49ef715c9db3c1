package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	service "github.com/okian/flightguard/internal/app"
	"github.com/okian/flightguard/internal/domain/compliance"
	"github.com/okian/flightguard/internal/domain/model"
	"github.com/okian/flightguard/internal/domain/risk"
	"github.com/okian/flightguard/internal/domain/telemetry"
	"github.com/okian/flightguard/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

var (
	base    = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	airport = model.RestrictedZone{
		Name:        "Airport X",
		Center:      model.Position{Lat: 34.2257, Lng: -77.9447},
		RadiusMiles: 3,
		Category:    "airport",
		Active:      true,
	}
)

func f(v float64) *float64 { return &v }

func reading(pilot string, ts time.Time, alt, battery, signal, lat, lng float64) telemetry.Raw {
	return telemetry.Raw{
		Timestamp: ts.Format(time.RFC3339),
		Lat:       f(lat),
		Lng:       f(lng),
		Altitude:  f(alt),
		Speed:     f(12),
		Battery:   f(battery),
		Signal:    f(signal),
		Heading:   f(90),
		PilotID:   pilot,
	}
}

func newService(opts ...service.Option) *service.Service {
	opts = append([]service.Option{
		service.WithWorkerCount(2),
		service.WithQueueSize(1000),
		service.WithPersistRetry(1, time.Millisecond),
		service.WithTrainConfig(risk.TrainConfig{Epochs: 2, BatchSize: 32, ValidationSplit: 0.2, LearningRate: 0.001, Seed: 7}),
	}, opts...)
	return service.New(opts...)
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func submit(ctx context.Context, svc *service.Service, n int) {
	for i := range n {
		_, err := svc.Check(ctx, reading(fmt.Sprintf("pilot-%d", i%3), base.Add(time.Duration(i)*time.Second),
			float64(100+i*4), float64(10+i%90), float64(40+i%60), 34.5, -77.5))
		So(err, ShouldBeNil)
	}
}

func stored(ctx context.Context, svc *service.Service, n int) bool {
	return waitFor(func() bool {
		recs, err := svc.TrainingData(ctx, "", 0)
		return err == nil && len(recs) == n
	})
}

func TestService_Lifecycle(t *testing.T) {
	ctx := context.Background()

	Convey("Given a service that was never started", t, func() {
		svc := newService()

		Convey("Then operations report it is not started", func() {
			_, err := svc.Check(ctx, reading("p", base, 100, 80, 90, 34.5, -77.5))
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			_, err = svc.TrainingData(ctx, "", 0)
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			So(svc.ModelStatus().State, ShouldEqual, "UNTRAINED")
			So(svc.Ready(), ShouldBeFalse)
			So(svc.Stop(ctx), ShouldBeNil)
		})
	})

	Convey("Given a started service", t, func() {
		svc := newService()
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() { _ = svc.Stop(ctx) })

		Convey("Then a second start fails", func() {
			So(errors.Is(svc.Start(ctx), service.ErrAlreadyStarted), ShouldBeTrue)
		})

		Convey("Then stats describe an idle engine", func() {
			st := svc.GetStats(ctx)
			So(st.ChecksTotal, ShouldEqual, 0)
			So(st.QueueCapacity, ShouldEqual, 1000)
			So(st.WorkerCount, ShouldEqual, 2)
			So(st.ModelState, ShouldEqual, "UNTRAINED")
			So(st.ZoneBreaker, ShouldEqual, "closed")
		})

		Convey("When it is stopped", func() {
			So(svc.Stop(ctx), ShouldBeNil)

			Convey("Then it is no longer ready and stop is idempotent", func() {
				So(svc.Ready(), ShouldBeFalse)
				So(svc.Stop(ctx), ShouldBeNil)
			})
		})
	})
}

func TestService_Check(t *testing.T) {
	ctx := context.Background()

	Convey("Given a started service with one restricted zone", t, func() {
		svc := newService(service.WithRestrictedZones([]model.RestrictedZone{airport}))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() { _ = svc.Stop(ctx) })

		Convey("When a sample flies above the ceiling outside any zone", func() {
			res, err := svc.Check(ctx, reading("p1", base, 450, 80, 90, 34.9, -77.1))

			Convey("Then only the altitude warning is raised and no risk is attached", func() {
				So(err, ShouldBeNil)
				So(res.IsCompliant, ShouldBeFalse)
				So(res.Warnings, ShouldResemble, []string{compliance.AltitudeWarning})
				So(res.RecordID, ShouldNotBeEmpty)
				So(res.RiskScores, ShouldBeNil)
				So(res.Recommendations, ShouldBeNil)
			})
		})

		Convey("When a low battery sample sits on the zone center", func() {
			res, err := svc.Check(ctx, reading("p1", base, 200, 15, 90, airport.Center.Lat, airport.Center.Lng))

			Convey("Then the zone intrusion is reported", func() {
				So(err, ShouldBeNil)
				So(res.IsCompliant, ShouldBeFalse)
				So(res.Warnings, ShouldResemble, []string{"Within Airport X restricted airspace"})
			})
		})

		Convey("When telemetry is out of range", func() {
			raw := reading("p1", base, 100, 80, 90, 34.5, -77.5)
			raw.Battery = f(140)
			_, err := svc.Check(ctx, raw)

			Convey("Then a validation error names the field", func() {
				var ve *telemetry.ValidationError
				So(errors.As(err, &ve), ShouldBeTrue)
				So(ve.Field, ShouldEqual, "battery")
				So(svc.GetStats(ctx).ChecksTotal, ShouldEqual, 0)
			})
		})

		Convey("When the same sample is submitted twice", func() {
			raw := reading("p2", base, 120, 80, 90, 34.5, -77.5)
			first, err := svc.Check(ctx, raw)
			So(err, ShouldBeNil)
			second, err := svc.Check(ctx, raw)
			So(err, ShouldBeNil)

			Convey("Then both are answered but it is stored once", func() {
				So(first.Duplicate, ShouldBeFalse)
				So(second.Duplicate, ShouldBeTrue)
				So(second.IsCompliant, ShouldBeTrue)
				So(stored(ctx, svc, 1), ShouldBeTrue)
				st := svc.GetStats(ctx)
				So(st.ChecksTotal, ShouldEqual, 2)
				So(st.Duplicates, ShouldEqual, 1)
				So(waitFor(func() bool { return svc.GetStats(ctx).Persisted == 1 }), ShouldBeTrue)
			})
		})

		Convey("When checks for several pilots are persisted", func() {
			submit(ctx, svc, 6)
			So(stored(ctx, svc, 6), ShouldBeTrue)

			Convey("Then training data can be filtered by pilot", func() {
				recs, err := svc.TrainingData(ctx, "pilot-1", 0)
				So(err, ShouldBeNil)
				So(recs, ShouldHaveLength, 2)
				for _, r := range recs {
					So(r.PilotID, ShouldEqual, "pilot-1")
					So(r.Features[0], ShouldBeGreaterThan, 0)
				}
			})
		})
	})
}

func TestService_Training(t *testing.T) {
	ctx := context.Background()

	Convey("Given a started service with 99 stored flights", t, func() {
		svc := newService()
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() { _ = svc.Stop(ctx) })
		submit(ctx, svc, 99)
		So(stored(ctx, svc, 99), ShouldBeTrue)

		Convey("When training is requested", func() {
			res, err := svc.Train(ctx)

			Convey("Then it is rejected with the insufficient data message", func() {
				So(errors.Is(err, risk.ErrInsufficientData), ShouldBeTrue)
				So(res.Accepted, ShouldBeFalse)
				So(res.Reason, ShouldEqual, "Need at least 100 flight records to train")
				So(svc.ModelStatus().State, ShouldEqual, "UNTRAINED")
			})
		})

		Convey("When one more flight arrives and training runs", func() {
			_, err := svc.Check(ctx, reading("pilot-9", base.Add(time.Hour), 390, 20, 50, 34.5, -77.5))
			So(err, ShouldBeNil)
			So(stored(ctx, svc, 100), ShouldBeTrue)
			res, err := svc.Train(ctx)

			Convey("Then version 1 is serving and checks carry risk scores", func() {
				So(err, ShouldBeNil)
				So(res.Accepted, ShouldBeTrue)
				So(res.Version, ShouldEqual, 1)
				So(res.ExampleCount, ShouldEqual, 100)

				status := svc.ModelStatus()
				So(status.State, ShouldEqual, "READY")
				So(status.Version, ShouldEqual, 1)
				So(status.TrainedAt, ShouldNotBeNil)

				check, err := svc.Check(ctx, reading("pilot-9", base.Add(2*time.Hour), 300, 70, 80, 34.5, -77.5))
				So(err, ShouldBeNil)
				So(check.RiskScores, ShouldNotBeNil)
				So(check.Recommendations, ShouldNotBeNil)
				So(check.ModelVersion, ShouldEqual, 1)
				So(check.RiskScores.AltitudeViolationRisk, ShouldBeBetweenOrEqual, 0, 1)
			})

			Convey("Then a background retrain publishes version 2 and rollback restores 1", func() {
				started, err := svc.StartTraining(ctx)
				So(err, ShouldBeNil)
				So(started.Accepted, ShouldBeTrue)
				So(waitFor(func() bool {
					st := svc.ModelStatus()
					return st.Version == 2 && st.State == "READY"
				}), ShouldBeTrue)

				status, err := svc.Rollback(ctx, 1)
				So(err, ShouldBeNil)
				So(status.Version, ShouldEqual, 1)

				_, err = svc.Rollback(ctx, 42)
				So(errors.Is(err, risk.ErrSnapshotNotFound), ShouldBeTrue)
			})

			Convey("Then nothing is left to cancel", func() {
				So(svc.CancelTraining(), ShouldBeFalse)
			})
		})
	})
}

func TestService_Zones(t *testing.T) {
	ctx := context.Background()

	Convey("Given a started service without zones", t, func() {
		svc := newService()
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() { _ = svc.Stop(ctx) })

		Convey("When a zone is added", func() {
			So(svc.UpsertZone(ctx, airport), ShouldBeNil)
			res, err := svc.Check(ctx, reading("p1", base, 100, 80, 90, airport.Center.Lat, airport.Center.Lng))

			Convey("Then the next check sees it", func() {
				So(err, ShouldBeNil)
				So(res.IsCompliant, ShouldBeFalse)
				zones, err := svc.Zones(ctx)
				So(err, ShouldBeNil)
				So(zones, ShouldHaveLength, 1)
			})

			Convey("Then deleting it clears the intrusion", func() {
				So(svc.DeleteZone(ctx, airport.Name), ShouldBeNil)
				res, err := svc.Check(ctx, reading("p1", base.Add(time.Second), 100, 80, 90, airport.Center.Lat, airport.Center.Lng))
				So(err, ShouldBeNil)
				So(res.IsCompliant, ShouldBeTrue)
			})
		})

		Convey("When a zone has no radius", func() {
			err := svc.UpsertZone(ctx, model.RestrictedZone{Name: "Bad"})

			Convey("Then it is rejected", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestService_StopDrainsQueue(t *testing.T) {
	ctx := context.Background()

	Convey("Given a single-worker service on disk with a deep backlog", t, func() {
		dir := t.TempDir()
		svc := newService(
			service.WithDataDir(dir),
			service.WithWorkerCount(1),
			service.WithQueueSize(3000),
		)
		So(svc.Start(ctx), ShouldBeNil)

		const n = 1500
		var failed int
		for i := range n {
			_, err := svc.Check(ctx, reading(fmt.Sprintf("pilot-%d", i%5), base.Add(time.Duration(i)*time.Second),
				float64(50+i%300), 80, 90, 34.5, -77.5))
			if err != nil {
				failed++
			}
		}
		So(failed, ShouldEqual, 0)
		So(svc.GetStats(ctx).Duplicates, ShouldEqual, 0)

		Convey("When it is stopped and reopened on the same directory", func() {
			So(svc.Stop(ctx), ShouldBeNil)

			reopened := newService(service.WithDataDir(dir), service.WithWorkerCount(1))
			So(reopened.Start(ctx), ShouldBeNil)
			Reset(func() { _ = reopened.Stop(ctx) })

			Convey("Then every accepted check was stored", func() {
				recs, err := reopened.TrainingData(ctx, "", 0)
				So(err, ShouldBeNil)
				So(recs, ShouldHaveLength, n)
			})
		})
	})
}

func TestService_StartTrainingCancel(t *testing.T) {
	ctx := context.Background()

	Convey("Given a started service with enough stored flights and a slow trainer", t, func() {
		release := make(chan struct{})
		var releaseOnce sync.Once
		unblock := func() { releaseOnce.Do(func() { close(release) }) }

		svc := newService(service.WithTrainConfig(risk.TrainConfig{
			Epochs: 50, BatchSize: 32, ValidationSplit: 0.2, LearningRate: 0.001, Seed: 7,
			OnEpoch: func(int, float64, float64) { <-release },
		}))
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() {
			unblock()
			_ = svc.Stop(ctx)
		})
		submit(ctx, svc, 120)
		So(stored(ctx, svc, 120), ShouldBeTrue)

		Convey("When a background run is accepted", func() {
			res, err := svc.StartTraining(ctx)
			So(err, ShouldBeNil)
			So(res.Accepted, ShouldBeTrue)

			Convey("Then it reports TRAINING and an immediate cancel stops it", func() {
				So(svc.ModelStatus().State, ShouldEqual, "TRAINING")
				So(svc.CancelTraining(), ShouldBeTrue)
				unblock()

				So(waitFor(func() bool { return svc.ModelStatus().State == "UNTRAINED" }), ShouldBeTrue)
				So(svc.ModelStatus().Version, ShouldEqual, 0)
				So(svc.ModelStatus().LastError, ShouldNotBeEmpty)
			})

			Convey("Then a second request is rejected while it runs", func() {
				again, err := svc.StartTraining(ctx)
				So(errors.Is(err, risk.ErrTrainingInProgress), ShouldBeTrue)
				So(again.Accepted, ShouldBeFalse)
				So(svc.ModelStatus().State, ShouldEqual, "TRAINING")
			})
		})
	})
}

func TestService_TrainingDataOrder(t *testing.T) {
	ctx := context.Background()

	Convey("Given two pilots whose names sort against their flight times", t, func() {
		svc := newService()
		So(svc.Start(ctx), ShouldBeNil)
		Reset(func() { _ = svc.Stop(ctx) })

		for i := range 5 {
			_, err := svc.Check(ctx, reading("zz", base.Add(time.Duration(i)*time.Second), 100, 80, 90, 34.5, -77.5))
			So(err, ShouldBeNil)
			_, err = svc.Check(ctx, reading("aa", base.Add(time.Duration(5+i)*time.Second), 100, 80, 90, 34.5, -77.5))
			So(err, ShouldBeNil)
		}
		So(stored(ctx, svc, 10), ShouldBeTrue)

		Convey("Then the corpus runs oldest to newest across pilots", func() {
			recs, err := svc.TrainingData(ctx, "", 0)
			So(err, ShouldBeNil)
			So(recs, ShouldHaveLength, 10)
			So(recs[0].PilotID, ShouldEqual, "zz")
			So(recs[0].Timestamp.Equal(base), ShouldBeTrue)
			So(recs[9].PilotID, ShouldEqual, "aa")
			So(recs[9].Timestamp.Equal(base.Add(9*time.Second)), ShouldBeTrue)
			for i := 1; i < len(recs); i++ {
				So(recs[i].Timestamp.Before(recs[i-1].Timestamp), ShouldBeFalse)
			}
		})
	})
}
