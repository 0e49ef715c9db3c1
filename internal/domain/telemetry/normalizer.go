// Package telemetry validates raw drone telemetry and converts it into
// canonical samples.
//
// Every numeric field of a Raw payload is a pointer so that an absent field
// is rejected instead of silently becoming zero.
package telemetry

import (
	"context"
	"errors"
	"math"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/okian/flightguard/internal/domain/model"
)

// Raw is the untrusted telemetry payload submitted by a client.
type Raw struct {
	Timestamp  string   `json:"timestamp" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Lat        *float64 `json:"lat" validate:"required,finite,gte=-90,lte=90"`
	Lng        *float64 `json:"lng" validate:"required,finite,gte=-180,lte=180"`
	Altitude   *float64 `json:"altitude" validate:"required,finite,gte=0"`
	Speed      *float64 `json:"speed" validate:"required,finite,gte=0"`
	Battery    *float64 `json:"battery" validate:"required,finite,gte=0,lte=100"`
	Signal     *float64 `json:"signal" validate:"required,finite,gte=0,lte=100"`
	Heading    *float64 `json:"heading" validate:"omitempty,finite,gte=0,lte=360"`
	DroneModel string   `json:"droneModel" validate:"max=128"`
	PilotID    string   `json:"pilotId" validate:"required,max=128"`
	StreamID   string   `json:"streamId" validate:"max=128"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report JSON names so callers see the field they actually sent.
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
		_ = validate.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
			v := fl.Field()
			switch v.Kind() {
			case reflect.Float32, reflect.Float64:
				f := v.Float()
				return !math.IsNaN(f) && !math.IsInf(f, 0)
			default:
				return true
			}
		})
	})
	return validate
}

// Normalizer turns Raw payloads into TelemetrySamples.
type Normalizer struct {
	now   func() time.Time
	newID func() string
}

// Option configures a Normalizer.
type Option func(*Normalizer)

// WithClock sets the clock used when a payload carries no timestamp.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		if now != nil {
			n.now = now
		}
	}
}

// WithIDGenerator overrides sample id generation.
func WithIDGenerator(gen func() string) Option {
	return func(n *Normalizer) {
		if gen != nil {
			n.newID = gen
		}
	}
}

// NewNormalizer creates a Normalizer.
func NewNormalizer(opts ...Option) *Normalizer {
	n := &Normalizer{
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize validates raw and returns the canonical sample. It fails with a
// *ValidationError naming the first offending field.
func (n *Normalizer) Normalize(_ context.Context, raw Raw) (model.TelemetrySample, error) {
	if err := getValidator().Struct(raw); err != nil {
		return model.TelemetrySample{}, toValidationError(err)
	}

	ts := n.now().UTC()
	if raw.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, raw.Timestamp)
		if err != nil {
			return model.TelemetrySample{}, &ValidationError{Field: "timestamp", Reason: "must be RFC3339"}
		}
		ts = parsed.UTC()
	}

	var heading float64
	if raw.Heading != nil {
		heading = *raw.Heading
	}

	return model.TelemetrySample{
		ID:           n.newID(),
		Timestamp:    ts,
		Position:     model.Position{Lat: *raw.Lat, Lng: *raw.Lng},
		AltitudeFeet: *raw.Altitude,
		SpeedMph:     *raw.Speed,
		BatteryPct:   *raw.Battery,
		SignalPct:    *raw.Signal,
		HeadingDeg:   heading,
		DroneModel:   strings.TrimSpace(raw.DroneModel),
		PilotID:      strings.TrimSpace(raw.PilotID),
		StreamID:     strings.TrimSpace(raw.StreamID),
	}, nil
}

func toValidationError(err error) *ValidationError {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ValidationError{Field: "payload", Reason: err.Error()}
	}
	ve := &ValidationError{
		Field:  fieldErrs[0].Field(),
		Reason: describe(fieldErrs[0]),
	}
	for _, fe := range fieldErrs[1:] {
		ve.Others = append(ve.Others, ValidationError{Field: fe.Field(), Reason: describe(fe)})
	}
	return ve
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "finite":
		return "must be a finite number"
	case "gte":
		return "must be >= " + fe.Param()
	case "lte":
		return "must be <= " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "datetime":
		return "must be RFC3339"
	default:
		return "failed " + fe.Tag() + " check"
	}
}
