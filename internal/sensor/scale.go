// Package sensor serves temperature readings from a serial-attached sensor,
// converted to a per-sensor display scale kept in JSON config files.
package sensor

import "math"

// Scale is the unit a sensor's readings are reported in.
type Scale string

// Supported scales.
const (
	Celsius    Scale = "Celsius"
	Fahrenheit Scale = "Fahrenheit"
	Kelvin     Scale = "Kelvin"
)

// ValidScales returns the accepted scales in display order.
func ValidScales() []Scale {
	return []Scale{Celsius, Fahrenheit, Kelvin}
}

// Valid reports whether s is one of ValidScales.
func (s Scale) Valid() bool {
	switch s {
	case Celsius, Fahrenheit, Kelvin:
		return true
	default:
		return false
	}
}

// Convert converts a Celsius value to scale, rounded to two decimal places.
// Unknown scales return the value unchanged.
func Convert(celsius float64, scale Scale) float64 {
	var v float64
	switch scale {
	case Fahrenheit:
		v = celsius*9/5 + 32
	case Kelvin:
		v = celsius + 273.15
	default:
		v = celsius
	}
	return math.Round(v*100) / 100
}
