package model

// Feature and label vector widths of a TrainingExample.
const (
	FeatureCount = 7
	LabelCount   = 4
)

// TrainingExample is a normalized feature vector with binary labels
// (altitude violation, battery warning, signal loss, overall safe).
type TrainingExample struct {
	SampleRef string                `json:"sampleRef,omitempty"`
	Features  [FeatureCount]float64 `json:"features"`
	Labels    [LabelCount]float64   `json:"labels"`
}

// RiskScores are the four sigmoid outputs of the risk model, each in [0,1].
type RiskScores struct {
	AltitudeViolationRisk float64 `json:"altitudeViolationRisk"`
	BatteryWarning        float64 `json:"batteryWarning"`
	SignalLossRisk        float64 `json:"signalLossRisk"`
	OverallSafety         float64 `json:"overallSafety"`
}

// Severity grades a recommendation.
type Severity string

// Recommendation severities.
const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Recommendation is an actionable hint derived from risk scores.
type Recommendation struct {
	Type     string   `json:"type"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Action   string   `json:"action"`
}
