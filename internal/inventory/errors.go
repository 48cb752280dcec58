package inventory

import "errors"

// ErrSensorNotFound is returned when an id has never been recorded.
var ErrSensorNotFound = errors.New("sensor not found")
