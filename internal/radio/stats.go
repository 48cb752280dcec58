package radio

import "time"

// State is the acquisition loop's position in its cycle.
type State int32

// Acquisition states.
const (
	StateIdle State = iota
	StateReading
	StateParsing
	StateFaultRecovery
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReading:
		return "reading"
	case StateParsing:
		return "parsing"
	case StateFaultRecovery:
		return "fault_recovery"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Stats is a point-in-time view of the acquirer's counters.
type Stats struct {
	Connected       bool       `json:"connected"`
	State           string     `json:"state"`
	FramesValid     uint64     `json:"frames_valid"`
	FramesMalformed uint64     `json:"frames_malformed"`
	FramesChecksum  uint64     `json:"frames_checksum"`
	FramesWide      uint64     `json:"frames_encoding_width_exceeded"`
	Faults          uint64     `json:"faults"`
	Reopens         uint64     `json:"reopens"`
	Panics          uint64     `json:"panics"`
	LastFrame       *time.Time `json:"last_frame,omitempty"`
}
