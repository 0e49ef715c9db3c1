// Package compliance evaluates telemetry against the hard regulatory rules.
//
// Evaluation is pure: the verdict depends only on the sample, the zone set
// and the altitude ceiling. Rules run in a fixed order and each may append a
// warning; a sample is compliant iff no rule warned.
package compliance

import (
	"fmt"
	"time"

	"github.com/okian/flightguard/internal/domain/geofence"
	"github.com/okian/flightguard/internal/domain/model"
)

// AltitudeCeilingFeet is the AGL ceiling for small unmanned aircraft.
const AltitudeCeilingFeet = 400.0

// Warning texts.
const (
	AltitudeWarning            = "Altitude exceeds 400ft AGL limit"
	ZoneDataUnavailableWarning = "Restricted airspace data unavailable"
	zoneWarningFormat          = "Within %s restricted airspace"
)

// Rule names, used for metrics labels.
const (
	RuleAltitude = "altitude_ceiling"
	RuleAirspace = "restricted_airspace"
	RuleZoneData = "zone_data_unavailable"
)

// ZoneWarning formats the intrusion warning for zone.
func ZoneWarning(zone model.RestrictedZone) string {
	return fmt.Sprintf(zoneWarningFormat, zone.Name)
}

// Finding is one triggered rule.
type Finding struct {
	Rule    string
	Message string
}

// Verdict is the outcome of a rule pass before it is stamped into a record.
type Verdict struct {
	Findings            []Finding
	Zones               []model.RestrictedZone
	ZoneDataUnavailable bool
}

// Compliant reports whether no rule was triggered.
func (v Verdict) Compliant() bool { return len(v.Findings) == 0 }

// Warnings returns the finding messages in rule order; never nil.
func (v Verdict) Warnings() []string {
	out := make([]string, 0, len(v.Findings))
	for _, f := range v.Findings {
		out = append(out, f.Message)
	}
	return out
}

// Check runs the rules against sample using the zone index.
func Check(sample model.TelemetrySample, idx *geofence.Index) Verdict {
	v := checkAltitude(sample)
	v.Zones = idx.ZonesNear(sample.Position)
	for _, z := range v.Zones {
		v.Findings = append(v.Findings, Finding{Rule: RuleAirspace, Message: ZoneWarning(z)})
	}
	return v
}

// CheckWithoutZones runs the altitude rule only and flags the missing zone
// data. The flag is itself a finding, so the verdict fails closed.
func CheckWithoutZones(sample model.TelemetrySample) Verdict {
	v := checkAltitude(sample)
	v.Zones = []model.RestrictedZone{}
	v.ZoneDataUnavailable = true
	v.Findings = append(v.Findings, Finding{Rule: RuleZoneData, Message: ZoneDataUnavailableWarning})
	return v
}

func checkAltitude(sample model.TelemetrySample) Verdict {
	v := Verdict{Findings: make([]Finding, 0, 2)}
	if sample.AltitudeFeet > AltitudeCeilingFeet {
		v.Findings = append(v.Findings, Finding{Rule: RuleAltitude, Message: AltitudeWarning})
	}
	return v
}

// Evaluate produces the compliance record for sample against zones.
func Evaluate(sample model.TelemetrySample, zones []model.RestrictedZone, evaluatedAt time.Time) model.ComplianceRecord {
	return Stamp(sample, Check(sample, geofence.NewIndex(zones)), evaluatedAt)
}

// EvaluateWithoutZones produces a record when zone data could not be read.
func EvaluateWithoutZones(sample model.TelemetrySample, evaluatedAt time.Time) model.ComplianceRecord {
	return Stamp(sample, CheckWithoutZones(sample), evaluatedAt)
}

// Stamp turns a verdict into a record. The record id is left empty for the
// caller to assign.
func Stamp(sample model.TelemetrySample, v Verdict, evaluatedAt time.Time) model.ComplianceRecord {
	return model.ComplianceRecord{
		SampleRef:           sample.ID,
		PilotID:             sample.PilotID,
		IsCompliant:         v.Compliant(),
		Warnings:            v.Warnings(),
		Zones:               v.Zones,
		ZoneDataUnavailable: v.ZoneDataUnavailable,
		EvaluatedAt:         evaluatedAt.UTC(),
	}
}
