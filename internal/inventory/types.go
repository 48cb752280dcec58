package inventory

import (
	"cmp"
	"slices"
	"time"
)

// Sensor is one row of the inventory: a transmitter id the relay has heard
// at least once.
type Sensor struct {
	SensorID     uint64     `json:"sensor_id"`
	FirstSeen    time.Time  `json:"first_seen"`
	LastSeen     time.Time  `json:"last_seen"`
	FrameCount   int64      `json:"frame_count"`
	LastDistance *uint64    `json:"last_distance,omitempty"`
	LastVCC      *uint64    `json:"last_vcc,omitempty"`
	LastLevelPct *float64   `json:"last_level_percent,omitempty"`
	Registered   bool       `json:"registered"`
	RegisteredAt *time.Time `json:"registered_at,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
}

func sortByID(sensors []Sensor) {
	slices.SortFunc(sensors, func(a, b Sensor) int { return cmp.Compare(a.SensorID, b.SensorID) })
}
