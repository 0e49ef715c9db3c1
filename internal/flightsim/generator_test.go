package flightsim

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

var genBase = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

func TestGenerator(t *testing.T) {
	Convey("Given a seeded generator", t, func() {
		Convey("The same seed yields the same flights", func() {
			a := NewGenerator(42, 3, 0.5, genBase).Batch(0, 20)
			b := NewGenerator(42, 3, 0.5, genBase).Batch(0, 20)
			for i := range a {
				So(*a[i].Altitude, ShouldEqual, *b[i].Altitude)
				So(*a[i].Lat, ShouldEqual, *b[i].Lat)
				So(a[i].Timestamp, ShouldEqual, b[i].Timestamp)
			}
		})

		Convey("Pilots rotate and timestamps advance one second per sample", func() {
			batch := NewGenerator(1, 3, 0, genBase).Batch(0, 4)
			So(batch[0].PilotID, ShouldEqual, "pilot-000")
			So(batch[1].PilotID, ShouldEqual, "pilot-001")
			So(batch[3].PilotID, ShouldEqual, "pilot-000")
			So(batch[1].Timestamp, ShouldEqual, "2026-05-01T10:00:01Z")
			So(batch[3].StreamID, ShouldEqual, batch[0].StreamID)
		})

		Convey("Without excursions every sample stays inside the envelope", func() {
			for _, s := range NewGenerator(7, 5, 0, genBase).Batch(0, 500) {
				So(*s.Altitude, ShouldBeBetweenOrEqual, nominalAltMin, nominalAltMin+nominalAltRange)
				So(*s.Battery, ShouldBeGreaterThanOrEqualTo, nominalBatMin)
				So(*s.Signal, ShouldBeGreaterThanOrEqualTo, nominalSignalMin)
				So(*s.Lat, ShouldBeGreaterThanOrEqualTo, nominalLatMin)
				So(*s.Heading, ShouldBeLessThan, maxHeading)
			}
		})

		Convey("With every sample an excursion each one breaks a limit", func() {
			for _, s := range NewGenerator(7, 5, 1, genBase).Batch(0, 500) {
				broken := *s.Altitude > 400 || *s.Battery < 20 || *s.Signal < 30 || *s.Lat < nominalLatMin
				So(broken, ShouldBeTrue)
			}
		})

		Convey("A zero seed still produces valid samples", func() {
			s := NewGenerator(0, 0, 0, genBase).Sample(0)
			So(s.PilotID, ShouldEqual, "pilot-000")
			So(s.Lat, ShouldNotBeNil)
		})
	})
}

func TestConfigDefaults(t *testing.T) {
	Convey("Given an empty config", t, func() {
		c := (&Config{ExcursionRate: 3, Probes: -1}).withDefaults()

		So(c.Samples, ShouldEqual, DefaultSamples)
		So(c.Pilots, ShouldEqual, DefaultPilots)
		So(c.Workers, ShouldEqual, 1)
		So(c.Timeout, ShouldEqual, DefaultTimeout)
		So(c.PollInterval, ShouldEqual, DefaultPollInterval)
		So(c.Probes, ShouldEqual, 0)
		So(c.ExcursionRate, ShouldEqual, 1.0)
	})
}
