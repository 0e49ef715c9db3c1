package risk

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/okian/flightguard/internal/domain/model"
)

// Snapshot is an immutable, fully trained model version.
type Snapshot struct {
	Version            int64     `json:"version"`
	TrainedAt          time.Time `json:"trainedAt"`
	TrainingAccuracy   float64   `json:"trainingAccuracy"`
	ValidationAccuracy float64   `json:"validationAccuracy"`
	ExampleCount       int       `json:"exampleCount"`
	Network            *Network  `json:"network"`
}

// Predict runs a forward pass of this snapshot's network.
func (s *Snapshot) Predict(features [model.FeatureCount]float64) model.RiskScores {
	out := s.Network.Predict(features[:])
	return model.RiskScores{
		AltitudeViolationRisk: out[0],
		BatteryWarning:        out[1],
		SignalLossRisk:        out[2],
		OverallSafety:         out[3],
	}
}

// EncodeSnapshot serializes s for a SnapshotStore.
func EncodeSnapshot(s *Snapshot) ([]byte, error) {
	if s == nil || !s.Network.validate() {
		return nil, ErrCorruptSnapshot
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot v%d: %w", s.Version, err)
	}
	return data, nil
}

// DecodeSnapshot parses and shape-checks stored snapshot bytes.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	if s.Version <= 0 || !s.Network.validate() {
		return nil, ErrCorruptSnapshot
	}
	return &s, nil
}
