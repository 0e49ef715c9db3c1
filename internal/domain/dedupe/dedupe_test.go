package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	dedupe "github.com/okian/flightguard/internal/domain/dedupe"
	"github.com/okian/flightguard/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new InMemoryDeduper", t, func() {
		Convey("When creating a deduper with default options", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("Then it should start empty", func() {
				So(d, ShouldNotBeNil)
				So(d.Size(), ShouldEqual, 0)
			})
		})

		Convey("When recording fingerprints", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("And the fingerprint is new", func() {
				seen := d.SeenAndRecord(ctx, "p|s|1")

				Convey("Then it should return false and record it", func() {
					So(seen, ShouldBeFalse)
					So(d.Size(), ShouldEqual, 1)
				})
			})

			Convey("And the fingerprint was already seen", func() {
				d.SeenAndRecord(ctx, "p|s|1")
				seen := d.SeenAndRecord(ctx, "p|s|1")

				Convey("Then it should return true", func() {
					So(seen, ShouldBeTrue)
					So(d.Size(), ShouldEqual, 1)
				})
			})
		})

		Convey("When unrecording", func() {
			d := dedupe.NewInMemoryDeduper()
			d.SeenAndRecord(ctx, "a")
			d.Unrecord(ctx, "a")
			d.Unrecord(ctx, "missing")

			Convey("Then the fingerprint can be recorded again", func() {
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, "a"), ShouldBeFalse)
			})
		})

		Convey("When bounded and at capacity", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
			for _, id := range []string{"a", "b", "c", "d"} {
				d.SeenAndRecord(ctx, id)
			}

			Convey("Then the oldest fingerprint is evicted first", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.SeenAndRecord(ctx, "d"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "c"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "b"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "a"), ShouldBeFalse)
			})
		})

		Convey("When unbounded", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
			for i := range 1000 {
				d.SeenAndRecord(ctx, fmt.Sprintf("id-%d", i))
			}

			Convey("Then nothing is evicted", func() {
				So(d.Size(), ShouldEqual, 1000)
				So(d.SeenAndRecord(ctx, "id-0"), ShouldBeTrue)
			})
		})
	})

	Convey("Given a deduper with concurrent access", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))

		Convey("When many goroutines record the same fingerprints", func() {
			var wg sync.WaitGroup
			var mu sync.Mutex
			fresh := 0
			for range 8 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := range 100 {
						if !d.SeenAndRecord(ctx, fmt.Sprintf("id-%d", i)) {
							mu.Lock()
							fresh++
							mu.Unlock()
						}
					}
				}()
			}
			wg.Wait()

			Convey("Then each fingerprint is new exactly once", func() {
				So(fresh, ShouldEqual, 100)
				So(d.Size(), ShouldEqual, 100)
			})
		})
	})
}

func TestFingerprint(t *testing.T) {
	Convey("Given telemetry samples", t, func() {
		ts := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
		a := model.TelemetrySample{ID: "x", PilotID: "p1", StreamID: "s1", Timestamp: ts, AltitudeFeet: 100}

		Convey("Then the fingerprint ignores the id and readings", func() {
			b := a
			b.ID = "y"
			b.AltitudeFeet = 300
			So(dedupe.Fingerprint(b), ShouldEqual, dedupe.Fingerprint(a))
		})

		Convey("Then pilot, stream and time all distinguish samples", func() {
			b, c, d := a, a, a
			b.PilotID = "p2"
			c.StreamID = "s2"
			d.Timestamp = ts.Add(time.Millisecond)
			So(dedupe.Fingerprint(b), ShouldNotEqual, dedupe.Fingerprint(a))
			So(dedupe.Fingerprint(c), ShouldNotEqual, dedupe.Fingerprint(a))
			So(dedupe.Fingerprint(d), ShouldNotEqual, dedupe.Fingerprint(a))
		})
	})
}
