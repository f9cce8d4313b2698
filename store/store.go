package store

import (
	"sync"
	"time"

	"thermobeacon-exporter/decoder"
)

// Reading is the latest decoded state for one device, stamped with the time it
// was observed. ObservedAt is carried through Snapshot so a staleness filter
// can be layered on top without changing the store contract.
type Reading struct {
	decoder.Reading
	ObservedAt time.Time
}

// Store keeps the most recent reading per device address. Writes come from the
// scan callback, reads from the scrape and push paths; entries are replaced
// whole so a concurrent reader never observes fields from two frames.
type Store struct {
	mu       sync.RWMutex
	readings map[string]Reading
	now      func() time.Time
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		readings: make(map[string]Reading),
		now:      time.Now,
	}
}

// Record replaces any previous reading for the reading's address. There is no
// field-by-field merge across frames.
func (s *Store) Record(r decoder.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.readings[r.Address] = Reading{
		Reading:    r,
		ObservedAt: s.now(),
	}
}

// Snapshot returns a copy of the current reading set, keyed by device address.
// The returned map is safe to use after the call.
func (s *Store) Snapshot() map[string]Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make(map[string]Reading, len(s.readings))
	for address, reading := range s.readings {
		snapshot[address] = reading
	}
	return snapshot
}

// Len returns the number of devices with a recorded reading.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.readings)
}
