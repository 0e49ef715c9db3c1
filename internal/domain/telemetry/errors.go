package telemetry

import (
	"errors"
	"strings"
)

// ErrValidation is the kind of every normalizer rejection.
var ErrValidation = errors.New("invalid telemetry")

// ValidationError reports the offending field of a rejected payload.
type ValidationError struct {
	Field  string
	Reason string
	// Others holds further failing fields, if any.
	Others []ValidationError
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Field)
	b.WriteString(" ")
	b.WriteString(e.Reason)
	for _, o := range e.Others {
		b.WriteString("; ")
		b.WriteString(o.Field)
		b.WriteString(" ")
		b.WriteString(o.Reason)
	}
	return b.String()
}

// Unwrap lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Unwrap() error { return ErrValidation }
