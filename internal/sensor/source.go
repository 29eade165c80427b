package sensor

import (
	"errors"
	"fmt"

	"procodus.dev/lab-services/pkg/generator"
)

// Reading sources selectable with ServerConfig.Source.
const (
	SourceSimulated = "simulated"
	SourceSerial    = "serial"
)

// ErrNoReading is returned by the serial source before the first byte arrives.
var ErrNoReading = errors.New("no reading captured yet")

// Source yields the current temperature in Celsius.
type Source interface {
	Celsius() (float64, error)
	Name() string
}

// SimulatedSource draws a fresh random room temperature per call.
type SimulatedSource struct {
	gen *generator.Temperature
}

// NewSimulatedSource wraps gen; nil uses generator.NewRoomTemperature.
func NewSimulatedSource(gen *generator.Temperature) *SimulatedSource {
	if gen == nil {
		gen = generator.NewRoomTemperature()
	}
	return &SimulatedSource{gen: gen}
}

// Celsius implements Source.
func (s *SimulatedSource) Celsius() (float64, error) {
	return s.gen.Celsius(), nil
}

// Name implements Source.
func (s *SimulatedSource) Name() string { return SourceSimulated }

// SlotSource returns the last reading captured by a Reader.
type SlotSource struct {
	slot *Slot
}

// NewSlotSource reads from slot.
func NewSlotSource(slot *Slot) *SlotSource {
	return &SlotSource{slot: slot}
}

// Celsius implements Source.
func (s *SlotSource) Celsius() (float64, error) {
	r, ok := s.slot.Load()
	if !ok {
		return 0, ErrNoReading
	}
	return r.Celsius, nil
}

// Name implements Source.
func (s *SlotSource) Name() string { return SourceSerial }

// ValidateSource rejects unknown source names.
func ValidateSource(name string) error {
	switch name {
	case SourceSimulated, SourceSerial:
		return nil
	default:
		return fmt.Errorf("unknown reading source %q (want %s or %s)", name, SourceSimulated, SourceSerial)
	}
}

// Ensure the implementations satisfy Source.
var (
	_ Source = (*SimulatedSource)(nil)
	_ Source = (*SlotSource)(nil)
)
