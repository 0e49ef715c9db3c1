package telemetry_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/okian/flightguard/internal/domain/telemetry"
	. "github.com/smartystreets/goconvey/convey"
)

func f(v float64) *float64 { return &v }

func validRaw() telemetry.Raw {
	return telemetry.Raw{
		Timestamp:  "2026-05-01T12:00:00Z",
		Lat:        f(34.2257),
		Lng:        f(-77.9447),
		Altitude:   f(120),
		Speed:      f(18),
		Battery:    f(80),
		Signal:     f(90),
		Heading:    f(270),
		DroneModel: "Mavic 3",
		PilotID:    "pilot-1",
		StreamID:   "stream-9",
	}
}

func TestNormalizer_Normalize(t *testing.T) {
	Convey("Given a normalizer with a fixed clock and id generator", t, func() {
		fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		n := telemetry.NewNormalizer(
			telemetry.WithClock(func() time.Time { return fixed }),
			telemetry.WithIDGenerator(func() string { return "sample-1" }),
		)
		ctx := context.Background()

		Convey("When the payload is valid", func() {
			s, err := n.Normalize(ctx, validRaw())

			Convey("Then a canonical sample is returned", func() {
				So(err, ShouldBeNil)
				So(s.ID, ShouldEqual, "sample-1")
				So(s.Position.Lat, ShouldEqual, 34.2257)
				So(s.Position.Lng, ShouldEqual, -77.9447)
				So(s.AltitudeFeet, ShouldEqual, 120)
				So(s.BatteryPct, ShouldEqual, 80)
				So(s.HeadingDeg, ShouldEqual, 270)
				So(s.PilotID, ShouldEqual, "pilot-1")
				So(s.Timestamp, ShouldEqual, time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
			})
		})

		Convey("When the timestamp and heading are omitted", func() {
			raw := validRaw()
			raw.Timestamp = ""
			raw.Heading = nil
			s, err := n.Normalize(ctx, raw)

			Convey("Then the clock is used and heading defaults to zero", func() {
				So(err, ShouldBeNil)
				So(s.Timestamp, ShouldEqual, fixed)
				So(s.HeadingDeg, ShouldEqual, 0)
			})
		})

		Convey("When a field is out of range", func() {
			cases := []struct {
				name  string
				mut   func(r *telemetry.Raw)
				field string
			}{
				{"negative altitude", func(r *telemetry.Raw) { r.Altitude = f(-1) }, "altitude"},
				{"negative speed", func(r *telemetry.Raw) { r.Speed = f(-0.5) }, "speed"},
				{"battery over 100", func(r *telemetry.Raw) { r.Battery = f(101) }, "battery"},
				{"signal below 0", func(r *telemetry.Raw) { r.Signal = f(-3) }, "signal"},
				{"latitude over 90", func(r *telemetry.Raw) { r.Lat = f(90.5) }, "lat"},
				{"longitude below -180", func(r *telemetry.Raw) { r.Lng = f(-181) }, "lng"},
				{"heading over 360", func(r *telemetry.Raw) { r.Heading = f(361) }, "heading"},
				{"infinite altitude", func(r *telemetry.Raw) { r.Altitude = f(math.Inf(1)) }, "altitude"},
				{"NaN battery", func(r *telemetry.Raw) { r.Battery = f(math.NaN()) }, "battery"},
				{"missing altitude", func(r *telemetry.Raw) { r.Altitude = nil }, "altitude"},
				{"missing pilot", func(r *telemetry.Raw) { r.PilotID = "" }, "pilotId"},
			}
			for _, tc := range cases {
				raw := validRaw()
				tc.mut(&raw)
				_, err := n.Normalize(ctx, raw)

				So(err, ShouldNotBeNil)
				So(errors.Is(err, telemetry.ErrValidation), ShouldBeTrue)
				var ve *telemetry.ValidationError
				So(errors.As(err, &ve), ShouldBeTrue)
				So(ve.Field, ShouldEqual, tc.field)
			}
		})

		Convey("When the timestamp is malformed", func() {
			raw := validRaw()
			raw.Timestamp = "yesterday"
			_, err := n.Normalize(ctx, raw)

			Convey("Then it is rejected", func() {
				So(errors.Is(err, telemetry.ErrValidation), ShouldBeTrue)
			})
		})

		Convey("When boundary values are used", func() {
			raw := validRaw()
			raw.Battery = f(100)
			raw.Signal = f(0)
			raw.Lat = f(-90)
			raw.Lng = f(180)
			raw.Altitude = f(0)
			_, err := n.Normalize(ctx, raw)

			Convey("Then they are accepted", func() {
				So(err, ShouldBeNil)
			})
		})
	})
}
