package sensor

import (
	"sync/atomic"
	"time"
)

// Reading is one sample captured from the serial transport.
type Reading struct {
	// Raw is the byte as received.
	Raw byte
	// Celsius is Raw interpreted as signed whole degrees.
	Celsius float64
	// CapturedAt is when the byte was read.
	CapturedAt time.Time
}

// NewReading interprets a raw byte as a two's complement whole-degree Celsius value.
func NewReading(raw byte, at time.Time) Reading {
	return Reading{
		Raw:        raw,
		Celsius:    float64(int8(raw)),
		CapturedAt: at,
	}
}

// Slot holds the most recent Reading. One writer, any number of readers;
// a Load never observes a partially written Reading.
type Slot struct {
	p atomic.Pointer[Reading]
}

// Store replaces the current reading.
func (s *Slot) Store(r Reading) {
	s.p.Store(&r)
}

// Load returns the current reading and false if nothing has been stored yet.
func (s *Slot) Load() (Reading, bool) {
	r := s.p.Load()
	if r == nil {
		return Reading{}, false
	}
	return *r, true
}
