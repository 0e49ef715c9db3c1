// Package corpus derives labeled training examples from persisted
// telemetry and compliance records.
//
// Label thresholds are stricter than the hard compliance rules (380ft vs
// 400ft) so the risk model rises before a violation happens. Keep them that way.
package corpus

import (
	"cmp"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/okian/flightguard/internal/domain/model"
)

// Feature scaling constants. The latitude/longitude offsets are the
// nominal operating region of the deployment.
const (
	altitudeScale = 500.0
	speedScale    = 50.0
	batteryScale  = 100.0
	signalScale   = 100.0
	headingScale  = 360.0
	latOrigin     = 34.0
	lngOrigin     = -78.0
	geoScale      = 10.0
)

// Label thresholds.
const (
	AltitudeRiskFeet    = 380.0
	BatteryWarningPct   = 25.0
	SignalLossPct       = 60.0
	SafeAltitudeFeet    = 400.0
	SafeBatteryFloorPct = 20.0
)

// ErrMismatchedPair is returned when a record does not belong to the sample.
var ErrMismatchedPair = errors.New("compliance record does not reference sample")

// Features returns the normalized feature vector for s.
func Features(s model.TelemetrySample) [model.FeatureCount]float64 {
	return [model.FeatureCount]float64{
		s.AltitudeFeet / altitudeScale,
		s.SpeedMph / speedScale,
		s.BatteryPct / batteryScale,
		s.SignalPct / signalScale,
		s.HeadingDeg / headingScale,
		(s.Position.Lat - latOrigin) / geoScale,
		(s.Position.Lng - lngOrigin) / geoScale,
	}
}

// Labels returns the binary targets for s.
func Labels(s model.TelemetrySample) [model.LabelCount]float64 {
	return [model.LabelCount]float64{
		boolToFloat(s.AltitudeFeet > AltitudeRiskFeet),
		boolToFloat(s.BatteryPct < BatteryWarningPct),
		boolToFloat(s.SignalPct < SignalLossPct),
		boolToFloat(s.AltitudeFeet <= SafeAltitudeFeet && s.BatteryPct > SafeBatteryFloorPct),
	}
}

// ToExample derives the training example for a sample and its record.
func ToExample(s model.TelemetrySample, rec model.ComplianceRecord) (model.TrainingExample, error) {
	if rec.SampleRef != "" && rec.SampleRef != s.ID {
		return model.TrainingExample{}, ErrMismatchedPair
	}
	return model.TrainingExample{
		SampleRef: s.ID,
		Features:  Features(s),
		Labels:    Labels(s),
	}, nil
}

// SortByTime orders records oldest first. Ties go by sample ID.
func SortByTime(records []model.FlightRecord) {
	slices.SortStableFunc(records, func(a, b model.FlightRecord) int {
		return cmp.Or(
			a.Sample.Timestamp.Compare(b.Sample.Timestamp),
			strings.Compare(a.Sample.ID, b.Sample.ID),
		)
	})
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Builder accumulates examples. It is safe for concurrent use.
type Builder struct {
	mu       sync.Mutex
	examples []model.TrainingExample
	skipped  int
}

// NewBuilder creates an empty Builder with room for sizeHint examples.
func NewBuilder(sizeHint int) *Builder {
	if sizeHint < 0 {
		sizeHint = 0
	}
	return &Builder{examples: make([]model.TrainingExample, 0, sizeHint)}
}

// Add derives and appends the example for a pair. Mismatched pairs are
// counted and skipped.
func (b *Builder) Add(s model.TelemetrySample, rec model.ComplianceRecord) error {
	ex, err := ToExample(s, rec)
	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.skipped++
		return err
	}
	b.examples = append(b.examples, ex)
	return nil
}

// AddRecords adds every flight record, skipping mismatched pairs.
func (b *Builder) AddRecords(records []model.FlightRecord) {
	for _, r := range records {
		_ = b.Add(r.Sample, r.Record)
	}
}

// Len returns the number of accumulated examples.
func (b *Builder) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.examples)
}

// Skipped returns how many pairs were rejected.
func (b *Builder) Skipped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.skipped
}

// Examples returns a copy of the accumulated examples.
func (b *Builder) Examples() []model.TrainingExample {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.TrainingExample, len(b.examples))
	copy(out, b.examples)
	return out
}
