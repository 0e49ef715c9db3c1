package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variable names.
const (
	EnvPrefix = "FLIGHTGUARD_"
	EnvFile   = "FLIGHTGUARD_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if FLIGHTGUARD_CONFIG is set
//  3. env (prefix FLIGHTGUARD_)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(EnvFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	// FLIGHTGUARD_QUEUE_SIZE -> queue_size. Underscores are kept to match the
	// flat koanf tags; the config file path itself is not a key.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		if s == EnvFile {
			return ""
		}
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail later at runtime.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalid)
	case c.ValidationSplit <= 0 || c.ValidationSplit >= 1:
		return fmt.Errorf("%w: validation_split must be in (0,1), got %v", ErrInvalid, c.ValidationSplit)
	case c.TrainingEpochs < 1:
		return fmt.Errorf("%w: training_epochs must be >= 1", ErrInvalid)
	case c.TrainingBatchSize < 1:
		return fmt.Errorf("%w: training_batch_size must be >= 1", ErrInvalid)
	case c.LearningRate <= 0:
		return fmt.Errorf("%w: learning_rate must be positive", ErrInvalid)
	case c.QueueSize < 1:
		return fmt.Errorf("%w: queue_size must be >= 1", ErrInvalid)
	}
	for _, z := range c.RestrictedZones {
		if z.Name == "" || z.RadiusMiles <= 0 {
			return fmt.Errorf("%w: restricted zone needs a name and positive radius_miles", ErrInvalid)
		}
	}
	return nil
}
