package risk

import "errors"

// Sentinel errors for the risk model.
var (
	ErrInsufficientData   = errors.New("Need at least 100 flight records to train") //nolint:stylecheck,revive // user-facing message
	ErrModelNotReady      = errors.New("risk model not ready")
	ErrTrainingInProgress = errors.New("training already in progress")
	ErrSnapshotNotFound   = errors.New("model snapshot not found")
	ErrCorruptSnapshot    = errors.New("model snapshot corrupt")
	ErrNoStore            = errors.New("no snapshot store configured")
)
