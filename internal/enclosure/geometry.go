package enclosure

import "fmt"

// Geometry is the box model of the enclosure: zones of individual length laid
// out front to back, sharing the same width and height (m).
type Geometry struct {
	Lengths         []float64
	Width           float64
	Height          float64
	AirDensity      float64 // kg/m³
	AirSpecificHeat float64 // J/(kg.K)
}

func (g Geometry) Validate() error {
	if len(g.Lengths) == 0 {
		return fmt.Errorf("geometry without zones: %w", ErrDimensionMismatch)
	}
	for i, l := range g.Lengths {
		if !(l > 0) || !isFinite(l) {
			return fmt.Errorf("zone %d length %v: %w", i+1, l, ErrInvalidPhysicalParameter)
		}
	}
	if !(g.Width > 0) || !(g.Height > 0) || !isFinite(g.Width, g.Height) {
		return fmt.Errorf("width %v height %v: %w", g.Width, g.Height, ErrInvalidPhysicalParameter)
	}
	return nil
}

// PlateAreas is the shell area of each zone exposed to the exterior: both
// side walls and the roof, plus the front wall for the first zone and the back wall for the last one.
func (g Geometry) PlateAreas() []float64 {
	out := make([]float64, len(g.Lengths))
	last := len(g.Lengths) - 1
	for i, l := range g.Lengths {
		out[i] = 2*l*g.Height + l*g.Width
		if i == 0 {
			out[i] += g.Width * g.Height
		}
		if i == last {
			out[i] += g.Width * g.Height
		}
	}
	return out
}

// CementAreas is the floor area of each zone.
func (g Geometry) CementAreas() []float64 {
	out := make([]float64, len(g.Lengths))
	for i, l := range g.Lengths {
		out[i] = l * g.Width
	}
	return out
}

// Capacitances is the thermal capacitance of the air of each zone (J/K).
func (g Geometry) Capacitances() ([]float64, error) {
	if !(g.AirDensity > 0) || !(g.AirSpecificHeat > 0) {
		return nil, fmt.Errorf("air density %v specific heat %v: %w", g.AirDensity, g.AirSpecificHeat, ErrInvalidPhysicalParameter)
	}
	out := make([]float64, len(g.Lengths))
	for i, l := range g.Lengths {
		out[i] = g.AirDensity * l * g.Width * g.Height * g.AirSpecificHeat
	}
	return out, nil
}
