package telemetry

import (
	"errors"
	"math"
	"testing"
	"time"
)

// calibration used by the deployed tank: 190 cm deep, 30..165 cm usable.
var tankCal = Calibration{TankHeight: 190, MinLevel: 30, MaxLevel: 165}

func TestToPercent(t *testing.T) {
	tests := []struct {
		name            string
		level, min, max int64
		want            float64
	}{
		{"at min", 30, 30, 165, 0},
		{"at max", 165, 30, 165, 100},
		{"midpoint", 50, 0, 100, 50},
		{"below min not clamped", 0, 30, 165, -22.222222222222222},
		{"above max not clamped", 200, 0, 100, 200},
		{"inverted range", 25, 100, 0, 75},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToPercent(tt.level, tt.min, tt.max)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ToPercent(%d, %d, %d) = %v, want %v", tt.level, tt.min, tt.max, got, tt.want)
			}
		})
	}
}

// Equal level steps give equal percentage steps.
func TestToPercent_Linear(t *testing.T) {
	const min, max = 30, 165
	step := ToPercent(min+1, min, max) - ToPercent(min, min, max)
	for level := int64(-50); level < 300; level++ {
		d := ToPercent(level+1, min, max) - ToPercent(level, min, max)
		if math.Abs(d-step) > 1e-9 {
			t.Fatalf("step at level %d = %v, want %v", level, d, step)
		}
	}
}

func TestCalibration_Level(t *testing.T) {
	tests := []struct {
		distance uint64
		want     int64
	}{
		{80, 110},
		{0, 190},
		{190, 0},
		{250, -60},
		{math.MaxInt64, 190 - math.MaxInt64},
		{math.MaxUint64, math.MinInt64},
	}

	for _, tt := range tests {
		if got := tankCal.Level(tt.distance); got != tt.want {
			t.Errorf("Level(%d) = %d, want %d", tt.distance, got, tt.want)
		}
	}
}

func TestCalibration_Percent(t *testing.T) {
	got := RoundPercent(tankCal.Percent(80))
	if got != 59.26 {
		t.Errorf("Percent(80) rounded = %v, want 59.26", got)
	}

	// Empty tank reads below zero; no clamping.
	if p := tankCal.Percent(190); p >= 0 {
		t.Errorf("Percent(190) = %v, want negative", p)
	}
	// Sensor closer than the full mark reads above 100.
	if p := tankCal.Percent(10); p <= 100 {
		t.Errorf("Percent(10) = %v, want > 100", p)
	}
}

func TestCalibration_Validate(t *testing.T) {
	if err := tankCal.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	bad := Calibration{TankHeight: 190, MinLevel: 40, MaxLevel: 40}
	if err := bad.Validate(); !errors.Is(err, ErrInvalidCalibration) {
		t.Errorf("Validate() error = %v, want ErrInvalidCalibration", err)
	}
}

func TestRoundPercent(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{59.259259, 59.26},
		{0.004, 0},
		{-22.2222, -22.22},
		{100, 100},
	}
	for _, tt := range tests {
		if got := RoundPercent(tt.in); got != tt.want {
			t.Errorf("RoundPercent(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewReading(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewReading(Frame{1, 80, 330, 411}, tankCal, now)

	if r.SensorID != 1 || r.DistanceCM != 80 || r.VCCRaw != 330 {
		t.Errorf("NewReading() = %+v", r)
	}
	if RoundPercent(r.WaterLevelPct) != 59.26 {
		t.Errorf("WaterLevelPct = %v, want ~59.26", r.WaterLevelPct)
	}
	if !r.ObservedAt.Equal(now) {
		t.Errorf("ObservedAt = %v, want %v", r.ObservedAt, now)
	}
}
