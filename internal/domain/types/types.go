// Package types contains the response shapes shared by the service and its transports.
package types

import (
	"time"

	"github.com/okian/flightguard/internal/domain/model"
)

// CheckResult is the outcome of a compliance check. RiskScores is present
// only when a model snapshot is serving. Recommendations is null without a
// serving model and an empty list when no risk crossed its threshold.
type CheckResult struct {
	RecordID            string                 `json:"recordId"`
	IsCompliant         bool                   `json:"isCompliant"`
	Warnings            []string               `json:"warnings"`
	ZoneDataUnavailable bool                   `json:"zoneDataUnavailable,omitempty"`
	RiskScores          *model.RiskScores      `json:"riskScores,omitempty"`
	Recommendations     []model.Recommendation `json:"recommendations"`
	ModelVersion        int64                  `json:"modelVersion,omitempty"`
	Duplicate           bool                   `json:"duplicate,omitempty"`
}

// TrainingRecord is a persisted sample with its verdict and derived example.
type TrainingRecord struct {
	SampleID    string                      `json:"sampleId"`
	PilotID     string                      `json:"pilotId"`
	Timestamp   time.Time                   `json:"timestamp"`
	IsCompliant bool                        `json:"isCompliant"`
	Warnings    []string                    `json:"warnings"`
	Features    [model.FeatureCount]float64 `json:"features"`
	Labels      [model.LabelCount]float64   `json:"labels"`
}

// TrainResult answers a training request.
type TrainResult struct {
	Accepted           bool    `json:"accepted"`
	Reason             string  `json:"reason,omitempty"`
	Version            int64   `json:"version,omitempty"`
	Accuracy           float64 `json:"accuracy,omitempty"`
	ValidationAccuracy float64 `json:"validationAccuracy,omitempty"`
	ExampleCount       int     `json:"exampleCount,omitempty"`
}

// ModelStatus describes the serving model.
type ModelStatus struct {
	State              string     `json:"state"`
	Version            int64      `json:"version"`
	TrainedAt          *time.Time `json:"trainedAt,omitempty"`
	Accuracy           float64    `json:"accuracy"`
	ValidationAccuracy float64    `json:"validationAccuracy"`
	ExampleCount       int        `json:"exampleCount"`
	LastError          string     `json:"lastError,omitempty"`
}

// Stats is a point-in-time view of service counters.
type Stats struct {
	ChecksTotal     int64   `json:"checksTotal"`
	NonCompliant    int64   `json:"nonCompliant"`
	Duplicates      int64   `json:"duplicates"`
	Persisted       int64   `json:"persisted"`
	PersistFailures int64   `json:"persistFailures"`
	QueueDepth      int     `json:"queueDepth"`
	QueueCapacity   int     `json:"queueCapacity"`
	WorkerCount     int     `json:"workerCount"`
	DedupeSize      int64   `json:"dedupeSize"`
	ActiveZones     int     `json:"activeZones"`
	ZoneBreaker     string  `json:"zoneBreaker"`
	ModelState      string  `json:"modelState"`
	ModelVersion    int64   `json:"modelVersion"`
	UptimeSeconds   float64 `json:"uptimeSeconds"`
}
