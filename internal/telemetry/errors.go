package telemetry

import (
	"errors"
	"fmt"
)

// Domain errors for the telemetry package.
var (
	// ErrMalformedFrame is returned when a line is not four comma-separated
	// unsigned decimal integers.
	ErrMalformedFrame = errors.New("telemetry: malformed frame")

	// ErrChecksumMismatch is returned when the trailing checksum does not equal
	// the exact sum of the other three fields.
	ErrChecksumMismatch = errors.New("telemetry: checksum mismatch")
)

// ChecksumError describes a rejected frame. It wraps ErrChecksumMismatch.
type ChecksumError struct {
	Computed uint64
	Received uint64

	// Overflow is set when the exact sum does not fit in 64 bits; Computed
	// then holds the truncated value.
	Overflow bool
}

func (e *ChecksumError) Error() string {
	if e.Overflow {
		return fmt.Sprintf("%s: sum overflows 64 bits, received %d", ErrChecksumMismatch, e.Received)
	}
	return fmt.Sprintf("%s: computed %d, received %d", ErrChecksumMismatch, e.Computed, e.Received)
}

func (e *ChecksumError) Unwrap() error {
	return ErrChecksumMismatch
}
