package flightsim

import "errors"

var (
	// ErrUnhealthy is returned when the service health check does not pass.
	ErrUnhealthy = errors.New("service unhealthy")
	// ErrUnexpectedStatus wraps non-success HTTP answers.
	ErrUnexpectedStatus = errors.New("unexpected status")
	// ErrWaitTimeout is returned when persistence or training did not finish in time.
	ErrWaitTimeout = errors.New("timed out waiting for service")
)
