package flightsim

import "time"

// Defaults applied to zero Config fields.
const (
	DefaultSamples      = 500
	DefaultPilots       = 20
	DefaultTimeout      = 30 * time.Second
	DefaultTrainWait    = 10 * time.Minute
	DefaultPollInterval = time.Second
	DefaultProbes       = 10
)

const (
	percentageMultiplier = 100
	filePermission       = 0o600
)

func (c *Config) withDefaults() Config {
	out := *c
	if out.Samples <= 0 {
		out.Samples = DefaultSamples
	}
	if out.Pilots <= 0 {
		out.Pilots = DefaultPilots
	}
	if out.Workers <= 0 {
		out.Workers = 1
	}
	if out.Timeout <= 0 {
		out.Timeout = DefaultTimeout
	}
	if out.TrainWait <= 0 {
		out.TrainWait = DefaultTrainWait
	}
	if out.PollInterval <= 0 {
		out.PollInterval = DefaultPollInterval
	}
	if out.Probes < 0 {
		out.Probes = 0
	}
	out.ExcursionRate = min(max(out.ExcursionRate, 0), 1)
	return out
}
