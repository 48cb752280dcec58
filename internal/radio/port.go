package radio

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/nerrad567/tank-relay/internal/infrastructure/config"
)

// Port is the part of a serial port the acquirer needs.
//
// Read must return (0, nil) when the read timeout elapses with no data,
// as go.bug.st/serial does.
type Port interface {
	io.Reader
	ResetInputBuffer() error
	Close() error
}

// Opener opens the radio channel. It is called once at start and again
// after every channel fault, always with the same settings.
type Opener func() (Port, error)

// SerialOpener returns an Opener for the HC-12 receiver described by cfg.
//
// Parameters:
//   - cfg: Serial settings (device, 8N1 framing, read timeout)
//
// Returns:
//   - Opener: opens the device with a bounded read timeout
//   - error: ErrInvalidConfig for unknown parity or stop bits
func SerialOpener(cfg config.SerialConfig) (Opener, error) {
	mode, err := serialMode(cfg)
	if err != nil {
		return nil, err
	}
	timeout := time.Duration(cfg.ReadTimeout) * time.Second
	device := cfg.Device

	return func() (Port, error) {
		port, err := serial.Open(device, mode)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrOpenFailed, device, err)
		}
		if err := port.SetReadTimeout(timeout); err != nil {
			port.Close()
			return nil, fmt.Errorf("%w: %s: set read timeout: %w", ErrOpenFailed, device, err)
		}
		return port, nil
	}, nil
}

// serialMode converts config strings to a go.bug.st/serial Mode.
func serialMode(cfg config.SerialConfig) (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
	}

	switch strings.ToLower(cfg.Parity) {
	case "", "none":
		mode.Parity = serial.NoParity
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	case "mark":
		mode.Parity = serial.MarkParity
	case "space":
		mode.Parity = serial.SpaceParity
	default:
		return nil, fmt.Errorf("%w: parity %q", ErrInvalidConfig, cfg.Parity)
	}

	switch cfg.StopBits {
	case "", "1":
		mode.StopBits = serial.OneStopBit
	case "1.5":
		mode.StopBits = serial.OnePointFiveStopBits
	case "2":
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("%w: stop bits %q", ErrInvalidConfig, cfg.StopBits)
	}

	return mode, nil
}

// describePortError adds the go.bug.st/serial error code, when there is one,
// to log fields.
func describePortError(err error) string {
	var code serial.PortErrorCode
	var pe *serial.PortError
	var pv serial.PortError
	switch {
	case errors.As(err, &pe):
		code = pe.Code()
	case errors.As(err, &pv):
		code = pv.Code()
	default:
		return "io_error"
	}

	switch code {
	case serial.PortNotFound:
		return "port_not_found"
	case serial.PortClosed:
		return "port_closed"
	case serial.PortBusy:
		return "port_busy"
	case serial.PermissionDenied:
		return "permission_denied"
	case serial.InvalidSerialPort:
		return "invalid_serial_port"
	default:
		return "port_error"
	}
}
