package telemetry

import (
	"fmt"
	"math"
	"math/bits"
	"strconv"
	"strings"
)

// Frame layout.
const (
	// frameFields is the number of comma-separated fields in a frame.
	frameFields = 4

	// frameSeparator splits the fields.
	frameSeparator = ","

	// SensorFieldMax is the largest value the sensor firmware can encode in a
	// field (signed 16-bit int on AVR). Larger values are accepted but flagged.
	SensorFieldMax = math.MaxInt16
)

// Frame is one raw telemetry line: sensor_id,distance,vcc,checksum.
//
// A Frame returned by ParseFrame is well formed but not yet trusted;
// call Validate before using its values.
type Frame struct {
	SensorID uint64
	Distance uint64 // centimetres from transducer to water surface
	VCC      uint64 // supply voltage, raw units as sent
	Checksum uint64
}

// ParseFrame parses a decoded line into a Frame.
//
// Surrounding whitespace, including the line terminator, is ignored. What
// remains must be exactly four fields of ASCII decimal digits separated by
// commas. A field too large for 64 bits is treated as malformed.
//
// Returns:
//   - Frame: the parsed fields
//   - error: wraps ErrMalformedFrame
func ParseFrame(line string) (Frame, error) {
	parts := strings.Split(strings.TrimSpace(line), frameSeparator)
	if len(parts) != frameFields {
		return Frame{}, fmt.Errorf("%w: want %d fields, got %d", ErrMalformedFrame, frameFields, len(parts))
	}

	var vals [frameFields]uint64
	for i, p := range parts {
		if !isDigits(p) {
			return Frame{}, fmt.Errorf("%w: field %d %q is not an unsigned integer", ErrMalformedFrame, i, p)
		}
		v, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return Frame{}, fmt.Errorf("%w: field %d: %w", ErrMalformedFrame, i, err)
		}
		vals[i] = v
	}

	return Frame{
		SensorID: vals[0],
		Distance: vals[1],
		VCC:      vals[2],
		Checksum: vals[3],
	}, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Sum returns the exact sum sensor_id + distance + vcc and whether it
// overflowed 64 bits.
func (f Frame) Sum() (sum uint64, overflow bool) {
	s, c1 := bits.Add64(f.SensorID, f.Distance, 0)
	s, c2 := bits.Add64(s, f.VCC, 0)
	return s, c1+c2 != 0
}

// Validate checks the checksum and returns the frame unchanged when it holds.
//
// Returns:
//   - Frame: f, when valid
//   - error: *ChecksumError (errors.Is ErrChecksumMismatch) otherwise
func (f Frame) Validate() (Frame, error) {
	sum, overflow := f.Sum()
	if overflow || sum != f.Checksum {
		return Frame{}, &ChecksumError{Computed: sum, Received: f.Checksum, Overflow: overflow}
	}
	return f, nil
}

// EncodingWidthExceeded reports whether any field is wider than the sensor
// firmware can produce. Such frames pass Validate but point at corruption
// that happened to keep the checksum consistent, or at different firmware.
func (f Frame) EncodingWidthExceeded() bool {
	return f.SensorID > SensorFieldMax ||
		f.Distance > SensorFieldMax ||
		f.VCC > SensorFieldMax ||
		f.Checksum > SensorFieldMax
}

// String formats the frame as it appears on the wire.
func (f Frame) String() string {
	return fmt.Sprintf("%d,%d,%d,%d", f.SensorID, f.Distance, f.VCC, f.Checksum)
}

// DecodeLine turns raw bytes from the radio into a candidate frame line.
// Invalid UTF-8 sequences are dropped and surrounding whitespace (including
// the line terminator) is trimmed.
func DecodeLine(raw []byte) string {
	return strings.TrimSpace(strings.ToValidUTF8(string(raw), ""))
}
