package telemetry

import "time"

// Reading is the latest validated measurement from one sensor.
// Readings are values: a newer reading for the same sensor replaces the old
// one in the Store, it is never modified in place.
type Reading struct {
	SensorID      uint64    `json:"sensor_id"`
	DistanceCM    uint64    `json:"distance"`
	VCCRaw        uint64    `json:"vcc"`
	WaterLevelPct float64   `json:"water_level_percent"`
	ObservedAt    time.Time `json:"observed_at"`
}

// NewReading builds a Reading from a frame that has passed Validate.
func NewReading(f Frame, cal Calibration, observedAt time.Time) Reading {
	return Reading{
		SensorID:      f.SensorID,
		DistanceCM:    f.Distance,
		VCCRaw:        f.VCC,
		WaterLevelPct: cal.Percent(f.Distance),
		ObservedAt:    observedAt,
	}
}
