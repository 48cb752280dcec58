package telemetry

import (
	"maps"
	"slices"
	"sync"
)

// Store holds the latest Reading per sensor.
//
// Acquisition is the only writer; publication and the HTTP API read.
// Each Put replaces one entry atomically, so readers see either the old
// reading or the new one for a sensor, never a mix.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Store struct {
	mu       sync.RWMutex
	readings map[uint64]Reading
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{readings: make(map[uint64]Reading)}
}

// Put records r as the latest reading for r.SensorID.
func (s *Store) Put(r Reading) {
	s.mu.Lock()
	s.readings[r.SensorID] = r
	s.mu.Unlock()
}

// Get returns the latest reading for a sensor.
func (s *Store) Get(sensorID uint64) (Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.readings[sensorID]
	return r, ok
}

// GetAll returns a point-in-time copy of every sensor's latest reading.
// The caller owns the returned map.
func (s *Store) GetAll() map[uint64]Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.readings)
}

// Len returns the number of sensors seen.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.readings)
}

// IDs returns the known sensor ids in ascending order.
func (s *Store) IDs() []uint64 {
	s.mu.RLock()
	var ids []uint64
	for id := range s.readings {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	slices.Sort(ids)
	return ids
}
