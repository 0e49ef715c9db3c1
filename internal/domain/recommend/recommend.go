// Package recommend maps predicted risk scores to pilot actions.
package recommend

import (
	"fmt"

	"github.com/okian/flightguard/internal/domain/model"
)

// Thresholds on predicted scores.
const (
	AltitudeRiskThreshold = 0.7
	BatteryRiskThreshold  = 0.6
	SignalRiskThreshold   = 0.5
)

// Actions.
const (
	ActionDescend        = "DESCEND"
	ActionLandSoon       = "LAND_SOON"
	ActionReduceDistance = "REDUCE_DISTANCE"
)

// Recommendation types.
const (
	TypeAltitude = "altitude"
	TypeBattery  = "battery"
	TypeSignal   = "signal"
)

type rule struct {
	typ       string
	threshold float64
	severity  model.Severity
	action    string
	score     func(model.RiskScores) float64
	message   func(model.TelemetrySample) string
}

// rules are evaluated in table order; output keeps that order.
var rules = []rule{
	{
		typ:       TypeAltitude,
		threshold: AltitudeRiskThreshold,
		severity:  model.SeverityHigh,
		action:    ActionDescend,
		score:     func(r model.RiskScores) float64 { return r.AltitudeViolationRisk },
		message: func(s model.TelemetrySample) string {
			return fmt.Sprintf("High risk of exceeding the altitude ceiling at %.0fft; descend below 380ft", s.AltitudeFeet)
		},
	},
	{
		typ:       TypeBattery,
		threshold: BatteryRiskThreshold,
		severity:  model.SeverityMedium,
		action:    ActionLandSoon,
		score:     func(r model.RiskScores) float64 { return r.BatteryWarning },
		message: func(s model.TelemetrySample) string {
			return fmt.Sprintf("Battery at %.0f%%; plan to land soon", s.BatteryPct)
		},
	},
	{
		typ:       TypeSignal,
		threshold: SignalRiskThreshold,
		severity:  model.SeverityMedium,
		action:    ActionReduceDistance,
		score:     func(r model.RiskScores) float64 { return r.SignalLossRisk },
		message: func(s model.TelemetrySample) string {
			return fmt.Sprintf("Signal at %.0f%%; reduce distance to the controller", s.SignalPct)
		},
	},
}

// Recommend returns the recommendations triggered by risk, interpolating the
// current telemetry into each message. The result is never nil.
func Recommend(risk model.RiskScores, sample model.TelemetrySample) []model.Recommendation {
	out := make([]model.Recommendation, 0, len(rules))
	for _, r := range rules {
		if r.score(risk) <= r.threshold {
			continue
		}
		out = append(out, model.Recommendation{
			Type:     r.typ,
			Severity: r.severity,
			Message:  r.message(sample),
			Action:   r.action,
		})
	}
	return out
}
