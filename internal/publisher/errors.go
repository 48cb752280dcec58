package publisher

import "errors"

// Domain errors for the publisher package.
var (
	// ErrDialFailed is returned when a sensor's MQTT session cannot be
	// opened. Nothing is cached; the next GetOrCreate dials again.
	ErrDialFailed = errors.New("publisher: session dial failed")

	// ErrRegistrationFailed is returned when a discovery descriptor could
	// not be published. The handle is kept and registration is retried on
	// the next GetOrCreate.
	ErrRegistrationFailed = errors.New("publisher: discovery registration failed")

	// ErrRegistryClosed is returned by GetOrCreate after Close.
	ErrRegistryClosed = errors.New("publisher: registry closed")
)
