package telemetry

import (
	"errors"
	"math"
)

// Calibration maps a distance reading onto the tank's water level.
// All values are centimetres.
type Calibration struct {
	// TankHeight is the distance from the transducer to the tank floor.
	TankHeight int64

	// MinLevel is the water column reported as 0%.
	MinLevel int64

	// MaxLevel is the water column reported as 100%.
	MaxLevel int64
}

// ErrInvalidCalibration is returned by Calibration.Validate.
var ErrInvalidCalibration = errors.New("telemetry: min and max level must differ")

// Validate rejects a calibration that would divide by zero.
func (c Calibration) Validate() error {
	if c.MaxLevel == c.MinLevel {
		return ErrInvalidCalibration
	}
	return nil
}

// Level converts a distance to the water column height.
// Distances beyond the int64 range saturate to math.MinInt64.
func (c Calibration) Level(distance uint64) int64 {
	if distance > math.MaxInt64 {
		return math.MinInt64
	}
	level, borrow := subInt64(c.TankHeight, int64(distance))
	if borrow {
		return math.MinInt64
	}
	return level
}

// Percent converts a distance straight to a fill percentage.
func (c Calibration) Percent(distance uint64) float64 {
	return ToPercent(c.Level(distance), c.MinLevel, c.MaxLevel)
}

// ToPercent linearly maps level from [min, max] onto [0, 100].
//
// The result is not clamped: a level below min gives a negative value and a
// level above max gives more than 100. Callers must not pass min == max.
func ToPercent(level, min, max int64) float64 {
	return (float64(level) - float64(min)) * 100 / (float64(max) - float64(min))
}

// RoundPercent rounds a percentage to two decimals for publication.
func RoundPercent(pct float64) float64 {
	return math.Round(pct*100) / 100
}

func subInt64(a, b int64) (int64, bool) {
	d := a - b
	// Overflow iff the operands have different signs and the result's sign
	// differs from a's.
	return d, (a >= 0) != (b >= 0) && (d >= 0) != (a >= 0)
}
