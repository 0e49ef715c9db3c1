package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/okian/flightguard/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 10_000)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.MinTrainingExamples, convey.ShouldEqual, 100)
			convey.So(cfg.TrainingEpochs, convey.ShouldEqual, 50)
			convey.So(cfg.TrainingBatchSize, convey.ShouldEqual, 32)
			convey.So(cfg.ValidationSplit, convey.ShouldEqual, 0.2)
			convey.So(cfg.LearningRate, convey.ShouldEqual, 0.001)
			convey.So(cfg.DataDir, convey.ShouldBeEmpty)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Load(t *testing.T) {
	ctx := context.Background()

	convey.Convey("Given a YAML file and environment overrides", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "flightguard.yaml")
		yaml := `
addr: ":7000"
queue_size: 42
training_epochs: 10
restricted_zones:
  - name: Airport X
    center:
      lat: 34.2257
      lng: -77.9447
    radius_miles: 3
    category: airport
    active: true
`
		convey.So(os.WriteFile(path, []byte(yaml), 0o600), convey.ShouldBeNil)
		t.Setenv(config.EnvFile, path)
		t.Setenv("FLIGHTGUARD_QUEUE_SIZE", "64")
		t.Setenv("FLIGHTGUARD_LOG_FORMAT", "json")

		cfg, err := config.Load(ctx)

		convey.Convey("Then env beats file and file beats defaults", func() {
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":7000")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 64)
			convey.So(cfg.TrainingEpochs, convey.ShouldEqual, 10)
			convey.So(cfg.LogFormat, convey.ShouldEqual, "json")
			convey.So(cfg.TrainingBatchSize, convey.ShouldEqual, 32)
		})

		convey.Convey("Then zones are read from the file", func() {
			convey.So(cfg.RestrictedZones, convey.ShouldHaveLength, 1)
			convey.So(cfg.RestrictedZones[0].Name, convey.ShouldEqual, "Airport X")
			convey.So(cfg.RestrictedZones[0].Center.Lat, convey.ShouldEqual, 34.2257)
			convey.So(cfg.RestrictedZones[0].RadiusMiles, convey.ShouldEqual, 3)
			convey.So(cfg.RestrictedZones[0].Active, convey.ShouldBeTrue)
		})
	})

	convey.Convey("Given an invalid validation split", t, func() {
		t.Setenv("FLIGHTGUARD_VALIDATION_SPLIT", "1.5")

		_, err := config.Load(ctx)

		convey.Convey("Then loading fails", func() {
			convey.So(errors.Is(err, config.ErrInvalid), convey.ShouldBeTrue)
		})
	})

	convey.Convey("Given an empty address", t, func() {
		cfg := config.New()
		cfg.Addr = ""

		convey.Convey("Then validation fails", func() {
			convey.So(errors.Is(cfg.Validate(), config.ErrInvalid), convey.ShouldBeTrue)
		})
	})

	convey.Convey("Given a missing config file", t, func() {
		t.Setenv(config.EnvFile, filepath.Join(t.TempDir(), "nope.yaml"))

		_, err := config.Load(ctx)

		convey.Convey("Then loading fails", func() {
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}
