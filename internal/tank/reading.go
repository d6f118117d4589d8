// Package tank holds the value types shared by the server and observers.
package tank

import (
	"math"
	"time"
)

const (
	// DefaultCapacity is the capacity unit used for levels. A level is the
	// empty space above the liquid, so a full tank has level 0.
	DefaultCapacity = 100.0

	// DefaultVolumeLitres is the physical tank size used for display.
	DefaultVolumeLitres = 1000.0

	MinPercentage = 0.0
	MaxPercentage = 100.0
)

// Reading is one sampled or simulated tank measurement. Values are never
// mutated after construction.
type Reading struct {
	Level      float64   `json:"level"`
	Percentage float64   `json:"percentage"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewReading builds a Reading from a sensor-provided level and percentage.
func NewReading(level, percentage float64, at time.Time) Reading {
	return Reading{Level: level, Percentage: percentage, Timestamp: at}
}

// Synthetic builds a Reading for a simulated percentage, deriving the
// complementary level from capacity.
func Synthetic(percentage, capacity float64, at time.Time) Reading {
	p := ClampPercentage(percentage)
	return Reading{
		Level:      LevelFor(p, capacity),
		Percentage: p,
		Timestamp:  at,
	}
}

// Empty is the reading broadcast after a reset.
func Empty(capacity float64, at time.Time) Reading {
	return Synthetic(MinPercentage, capacity, at)
}

// Full reports whether the reading has reached the auto-cutoff threshold.
func (r Reading) Full() bool {
	return r.Percentage >= MaxPercentage
}

// ClampPercentage bounds p to [0,100].
func ClampPercentage(p float64) float64 {
	if p < MinPercentage {
		return MinPercentage
	}
	if p > MaxPercentage {
		return MaxPercentage
	}
	return p
}

// LevelFor returns the empty space, in capacity units, for a fill percentage.
func LevelFor(percentage, capacity float64) float64 {
	return Round1(capacity * (1 - ClampPercentage(percentage)/MaxPercentage))
}

// Round1 rounds to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
