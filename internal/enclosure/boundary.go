package enclosure

import (
	"fmt"
	"math"
)

// Harmonic is a periodic temperature law:
// Mean + Amplitude*cos(2π(t-Phase)/Period), with t, Period and Phase in hours.
type Harmonic struct {
	Mean      float64
	Amplitude float64
	Period    float64
	Phase     float64 // time of the maximum
}

func (h Harmonic) Validate() error {
	if !isFinite(h.Mean, h.Amplitude, h.Period, h.Phase) {
		return fmt.Errorf("harmonic %+v must be finite: %w", h, ErrInvalidPhysicalParameter)
	}
	if h.Period <= 0 {
		return fmt.Errorf("harmonic period must be > 0, got %v: %w", h.Period, ErrInvalidPhysicalParameter)
	}
	return nil
}

func (h Harmonic) Value(t float64) float64 {
	return h.Mean + h.Amplitude*math.Cos(2*math.Pi*(t-h.Phase)/h.Period)
}

// Constant returns a harmonic without oscillation.
func Constant(temperature float64) Harmonic {
	return Harmonic{Mean: temperature, Period: 24}
}

type BoundaryConditions struct {
	Exterior Harmonic
	Ground   Harmonic
}

// Boundary holds the boundary temperatures for one instant.
type Boundary struct {
	Exterior float64
	Ground   float64
}

func (b BoundaryConditions) Validate() error {
	if err := b.Exterior.Validate(); err != nil {
		return fmt.Errorf("exterior: %w", err)
	}
	if err := b.Ground.Validate(); err != nil {
		return fmt.Errorf("ground: %w", err)
	}
	return nil
}

func (b BoundaryConditions) At(t float64) Boundary {
	return Boundary{
		Exterior: b.Exterior.Value(t),
		Ground:   b.Ground.Value(t),
	}
}
