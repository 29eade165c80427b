// Package generator produces simulated sensor readings.
package generator

import (
	"math"
	"sync"

	"github.com/brianvoe/gofakeit/v7"
)

// Default bounds of a simulated room temperature in degrees Celsius.
const (
	DefaultMinCelsius = 20.0
	DefaultMaxCelsius = 30.0
)

// Temperature draws uniformly distributed temperatures from [Min, Max].
// It is safe for concurrent use.
type Temperature struct {
	mu    sync.Mutex
	faker *gofakeit.Faker
	min   float64
	max   float64
}

// NewTemperature returns a generator over [minC, maxC]. A seed of 0 draws a random seed.
// Bounds given in the wrong order are swapped.
func NewTemperature(minC, maxC float64, seed uint64) *Temperature {
	if minC > maxC {
		minC, maxC = maxC, minC
	}
	return &Temperature{
		faker: gofakeit.New(seed),
		min:   minC,
		max:   maxC,
	}
}

// NewRoomTemperature returns a randomly seeded generator over the default bounds.
func NewRoomTemperature() *Temperature {
	return NewTemperature(DefaultMinCelsius, DefaultMaxCelsius, 0)
}

// Celsius returns the next simulated value rounded to two decimal places.
func (t *Temperature) Celsius() float64 {
	t.mu.Lock()
	v := t.faker.Float64Range(t.min, t.max)
	t.mu.Unlock()

	return math.Round(v*100) / 100
}
