package radio

import "errors"

// Domain errors for the radio package.
var (
	// ErrChannelFault wraps any I/O failure of the serial channel. The
	// acquirer recovers from it by closing and reopening the port.
	ErrChannelFault = errors.New("radio: channel fault")

	// ErrOpenFailed is returned when the serial device cannot be opened.
	ErrOpenFailed = errors.New("radio: open failed")

	// ErrInvalidConfig is returned by NewAcquirer and SerialOpener for
	// unusable settings.
	ErrInvalidConfig = errors.New("radio: invalid configuration")
)
