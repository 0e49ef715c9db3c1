package flightsim

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/okian/flightguard/internal/domain/telemetry"
)

// Flight envelope. Nominal samples stay north of the default airport zone
// and under every limit; excursions break exactly one.
const (
	nominalLatMin   = 34.5
	nominalLatRange = 0.5
	nominalLngMin   = -78.0
	nominalLngRange = 1.0

	nominalAltMin      = 50.0
	nominalAltRange    = 300.0
	nominalBatMin      = 40.0
	nominalBatRange    = 60.0
	nominalSignalMin   = 60.0
	nominalSignalRange = 40.0
	speedMin           = 5.0
	speedRange         = 35.0
	maxHeading         = 360.0
	excessAltMin       = 401.0
	excessAltRange     = 200.0
	lowBatteryMin      = 5.0
	lowBatteryRange    = 14.0
	weakSignalMin      = 5.0
	weakSignalRange    = 24.0
	zoneJitterDegrees  = 0.02

	airportLat = 34.2257
	airportLng = -77.9447
)

type excursion int

const (
	excursionAltitude excursion = iota
	excursionZone
	excursionBattery
	excursionSignal
	excursionKinds
)

var droneModels = []string{"DJI Mavic 3", "Skydio 2+", "Autel EVO II", "Parrot Anafi"}

// Generator produces deterministic telemetry for a given seed.
type Generator struct {
	rng     *rand.Rand
	pilots  int
	rate    float64
	base    time.Time
	streams []string
}

// NewGenerator creates a generator for pilots pilots. A zero seed is replaced
// by a random one.
func NewGenerator(seed uint64, pilots int, excursionRate float64, base time.Time) *Generator {
	if seed == 0 {
		seed = rand.Uint64()
	}
	if pilots <= 0 {
		pilots = 1
	}
	streams := make([]string, pilots)
	for i := range streams {
		streams[i] = fmt.Sprintf("stream-%03d", i)
	}
	return &Generator{
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		pilots:  pilots,
		rate:    excursionRate,
		base:    base.UTC().Truncate(time.Second),
		streams: streams,
	}
}

// Sample returns the i-th sample. Samples are one second apart per index so
// no two share a fingerprint.
func (g *Generator) Sample(i int) telemetry.Raw {
	p := i % g.pilots
	lat := nominalLatMin + g.rng.Float64()*nominalLatRange
	lng := nominalLngMin + g.rng.Float64()*nominalLngRange
	alt := nominalAltMin + g.rng.Float64()*nominalAltRange
	battery := nominalBatMin + g.rng.Float64()*nominalBatRange
	signal := nominalSignalMin + g.rng.Float64()*nominalSignalRange
	speed := speedMin + g.rng.Float64()*speedRange
	heading := g.rng.Float64() * maxHeading

	if g.rng.Float64() < g.rate {
		switch excursion(g.rng.IntN(int(excursionKinds))) {
		case excursionAltitude:
			alt = excessAltMin + g.rng.Float64()*excessAltRange
		case excursionZone:
			lat = airportLat + (g.rng.Float64()*2-1)*zoneJitterDegrees
			lng = airportLng + (g.rng.Float64()*2-1)*zoneJitterDegrees
		case excursionBattery:
			battery = lowBatteryMin + g.rng.Float64()*lowBatteryRange
		case excursionSignal:
			signal = weakSignalMin + g.rng.Float64()*weakSignalRange
		}
	}

	return telemetry.Raw{
		Timestamp:  g.base.Add(time.Duration(i) * time.Second).Format(time.RFC3339),
		Lat:        &lat,
		Lng:        &lng,
		Altitude:   &alt,
		Speed:      &speed,
		Battery:    &battery,
		Signal:     &signal,
		Heading:    &heading,
		DroneModel: droneModels[p%len(droneModels)],
		PilotID:    fmt.Sprintf("pilot-%03d", p),
		StreamID:   g.streams[p],
	}
}

// Batch returns samples [from, from+n).
func (g *Generator) Batch(from, n int) []telemetry.Raw {
	out := make([]telemetry.Raw, n)
	for i := range out {
		out[i] = g.Sample(from + i)
	}
	return out
}
