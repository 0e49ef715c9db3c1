package compliance_test

import (
	"testing"
	"time"

	"github.com/okian/flightguard/internal/domain/compliance"
	"github.com/okian/flightguard/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

var here = model.Position{Lat: 34.2257, Lng: -77.9447}

func sample(alt, battery, signal float64) model.TelemetrySample {
	return model.TelemetrySample{
		ID:           "s-1",
		PilotID:      "pilot-1",
		Position:     here,
		AltitudeFeet: alt,
		BatteryPct:   battery,
		SignalPct:    signal,
	}
}

func TestEvaluate(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	Convey("Given the compliance evaluator", t, func() {
		Convey("When altitude is 450ft with no zones", func() {
			rec := compliance.Evaluate(sample(450, 80, 90), nil, now)

			Convey("Then the sample is non-compliant with only the altitude warning", func() {
				So(rec.IsCompliant, ShouldBeFalse)
				So(rec.Warnings, ShouldResemble, []string{"Altitude exceeds 400ft AGL limit"})
				So(rec.SampleRef, ShouldEqual, "s-1")
				So(rec.PilotID, ShouldEqual, "pilot-1")
			})
		})

		Convey("When altitude is over the ceiling for a range of values", func() {
			for _, alt := range []float64{400.0001, 401, 500, 10000} {
				rec := compliance.Evaluate(sample(alt, 50, 50), nil, now)
				So(rec.IsCompliant, ShouldBeFalse)
				So(rec.Warnings, ShouldContain, compliance.AltitudeWarning)
			}
		})

		Convey("When altitude is at or below the ceiling and no zone is intruded", func() {
			far := model.RestrictedZone{Name: "Far", Center: model.Position{Lat: 40, Lng: -70}, RadiusMiles: 3, Active: true}
			for _, alt := range []float64{0, 120, 399.9, 400} {
				rec := compliance.Evaluate(sample(alt, 50, 50), []model.RestrictedZone{far}, now)
				So(rec.IsCompliant, ShouldBeTrue)
				So(rec.Warnings, ShouldNotBeNil)
				So(rec.Warnings, ShouldBeEmpty)
			}
		})

		Convey("When a low-battery sample is inside a restricted zone", func() {
			zone := model.RestrictedZone{Name: "Airport X", Center: here, RadiusMiles: 3, Active: true}
			rec := compliance.Evaluate(sample(200, 15, 90), []model.RestrictedZone{zone}, now)

			Convey("Then only the zone warning is raised and the zone is kept for audit", func() {
				So(rec.IsCompliant, ShouldBeFalse)
				So(rec.Warnings, ShouldResemble, []string{"Within Airport X restricted airspace"})
				So(rec.Zones, ShouldHaveLength, 1)
				So(rec.Zones[0].Name, ShouldEqual, "Airport X")
			})
		})

		Convey("When both rules trigger", func() {
			zones := []model.RestrictedZone{
				{Name: "A", Center: here, RadiusMiles: 5, Active: true},
				{Name: "B", Center: here, RadiusMiles: 1, Active: true},
			}
			rec := compliance.Evaluate(sample(450, 80, 90), zones, now)

			Convey("Then warnings follow rule order", func() {
				So(rec.Warnings, ShouldResemble, []string{
					"Altitude exceeds 400ft AGL limit",
					"Within A restricted airspace",
					"Within B restricted airspace",
				})
			})
		})

		Convey("When the same input is evaluated twice", func() {
			zones := []model.RestrictedZone{{Name: "A", Center: here, RadiusMiles: 5, Active: true}}
			a := compliance.Evaluate(sample(410, 80, 90), zones, now)
			b := compliance.Evaluate(sample(410, 80, 90), zones, now.Add(time.Hour))

			Convey("Then the records match apart from the timestamp", func() {
				b.EvaluatedAt = a.EvaluatedAt
				So(b, ShouldResemble, a)
			})
		})

		Convey("When zone data is unavailable", func() {
			rec := compliance.EvaluateWithoutZones(sample(100, 80, 90), now)

			Convey("Then the verdict fails closed and carries the flag", func() {
				So(rec.IsCompliant, ShouldBeFalse)
				So(rec.ZoneDataUnavailable, ShouldBeTrue)
				So(rec.Warnings, ShouldResemble, []string{compliance.ZoneDataUnavailableWarning})
			})

			Convey("And the altitude rule still runs", func() {
				high := compliance.EvaluateWithoutZones(sample(500, 80, 90), now)
				So(high.Warnings[0], ShouldEqual, compliance.AltitudeWarning)
				So(high.Warnings, ShouldHaveLength, 2)
			})
		})
	})
}
