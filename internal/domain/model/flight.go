// Package model contains domain models passed between layers.
package model

import "time"

// Position is a WGS84 coordinate in decimal degrees.
type Position struct {
	Lat float64 `json:"lat" koanf:"lat"`
	Lng float64 `json:"lng" koanf:"lng"`
}

// TelemetrySample is a validated, canonical telemetry reading.
// Samples are produced by the telemetry normalizer and never mutated afterwards.
type TelemetrySample struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Position     Position  `json:"position"`
	AltitudeFeet float64   `json:"altitudeFeet"`
	SpeedMph     float64   `json:"speedMph"`
	BatteryPct   float64   `json:"batteryPct"`
	SignalPct    float64   `json:"signalPct"`
	HeadingDeg   float64   `json:"headingDeg"`
	DroneModel   string    `json:"droneModel"`
	PilotID      string    `json:"pilotId"`
	StreamID     string    `json:"streamId,omitempty"`
}

// RestrictedZone is a circular no-fly or restricted region.
// Zones are owned by the airspace feed; the engine only reads them.
type RestrictedZone struct {
	Name        string   `json:"name" koanf:"name"`
	Center      Position `json:"center" koanf:"center"`
	RadiusMiles float64  `json:"radiusMiles" koanf:"radius_miles"`
	Category    string   `json:"category" koanf:"category"`
	Active      bool     `json:"active" koanf:"active"`
}

// ComplianceRecord is the append-only verdict for one sample.
type ComplianceRecord struct {
	ID          string `json:"id"`
	SampleRef   string `json:"sampleRef"`
	PilotID     string `json:"pilotId"`
	IsCompliant bool   `json:"isCompliant"`
	// Warnings is never nil so that JSON always carries an array.
	Warnings []string `json:"warnings"`
	// Zones lists the restricted zones the sample intruded, kept for audit.
	Zones               []RestrictedZone `json:"zones,omitempty"`
	ZoneDataUnavailable bool             `json:"zoneDataUnavailable,omitempty"`
	EvaluatedAt         time.Time        `json:"evaluatedAt"`
}

// FlightRecord pairs a sample with its verdict for persistence.
type FlightRecord struct {
	Sample TelemetrySample
	Record ComplianceRecord
}
