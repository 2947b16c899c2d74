package enclosure

import (
	"fmt"
	"math"
)

// Layer is a conductive slab of a wall assembly.
type Layer struct {
	Thickness    float64 // m
	Conductivity float64 // W/(m.K)
}

// ResistanceParams describes the wall assemblies shared by every zone.
// Toward the exterior: interior convection, steel plate, asphalt, exterior convection.
// Toward the ground: interior convection, cement, insulation.
type ResistanceParams struct {
	InteriorConvection float64 // h_int, W/(m².K)
	ExteriorConvection float64 // h_ext, W/(m².K)
	Plate              Layer
	Asphalt            Layer
	Cement             Layer
	Insulation         Layer
}

// ZoneResistance holds the series resistances of one zone, in K/W.
type ZoneResistance struct {
	Exterior float64
	Ground   float64
}

func ConvectionResistance(h, area float64) (float64, error) {
	if !(h > 0) || math.IsInf(h, 0) {
		return 0, fmt.Errorf("convection coefficient h=%v: %w", h, ErrInvalidPhysicalParameter)
	}
	if !(area > 0) || math.IsInf(area, 0) {
		return 0, fmt.Errorf("area A=%v: %w", area, ErrInvalidPhysicalParameter)
	}
	return 1.0 / (h * area), nil
}

func ConductionResistance(thickness, conductivity, area float64) (float64, error) {
	if !(thickness > 0) || math.IsInf(thickness, 0) {
		return 0, fmt.Errorf("thickness L=%v: %w", thickness, ErrInvalidPhysicalParameter)
	}
	if !(conductivity > 0) || math.IsInf(conductivity, 0) {
		return 0, fmt.Errorf("conductivity k=%v: %w", conductivity, ErrInvalidPhysicalParameter)
	}
	if !(area > 0) || math.IsInf(area, 0) {
		return 0, fmt.Errorf("area A=%v: %w", area, ErrInvalidPhysicalParameter)
	}
	return thickness / (conductivity * area), nil
}

// SeriesResistance sums resistances in series. Every term must be > 0.
func SeriesResistance(resistances ...float64) (float64, error) {
	total := 0.0
	for _, r := range resistances {
		if !(r > 0) {
			return 0, fmt.Errorf("series term R=%v: %w", r, ErrInvalidPhysicalParameter)
		}
		total += r
	}
	return total, nil
}

func (p ResistanceParams) exterior(area float64) (float64, error) {
	convIn, err := ConvectionResistance(p.InteriorConvection, area)
	if err != nil {
		return 0, fmt.Errorf("interior convection: %w", err)
	}
	plate, err := ConductionResistance(p.Plate.Thickness, p.Plate.Conductivity, area)
	if err != nil {
		return 0, fmt.Errorf("plate: %w", err)
	}
	asphalt, err := ConductionResistance(p.Asphalt.Thickness, p.Asphalt.Conductivity, area)
	if err != nil {
		return 0, fmt.Errorf("asphalt: %w", err)
	}
	convOut, err := ConvectionResistance(p.ExteriorConvection, area)
	if err != nil {
		return 0, fmt.Errorf("exterior convection: %w", err)
	}
	return SeriesResistance(convIn, plate, asphalt, convOut)
}

func (p ResistanceParams) ground(area float64) (float64, error) {
	convIn, err := ConvectionResistance(p.InteriorConvection, area)
	if err != nil {
		return 0, fmt.Errorf("interior convection: %w", err)
	}
	cement, err := ConductionResistance(p.Cement.Thickness, p.Cement.Conductivity, area)
	if err != nil {
		return 0, fmt.Errorf("cement: %w", err)
	}
	insulation, err := ConductionResistance(p.Insulation.Thickness, p.Insulation.Conductivity, area)
	if err != nil {
		return 0, fmt.Errorf("insulation: %w", err)
	}
	return SeriesResistance(convIn, cement, insulation)
}

// BuildResistances computes, for each zone, the series resistance toward the
// exterior (through plateAreas) and toward the ground (through cementAreas).
func BuildResistances(params ResistanceParams, plateAreas, cementAreas []float64) ([]ZoneResistance, error) {
	if len(plateAreas) != len(cementAreas) {
		return nil, fmt.Errorf("%d plate areas for %d cement areas: %w", len(plateAreas), len(cementAreas), ErrDimensionMismatch)
	}
	if len(plateAreas) == 0 {
		return nil, fmt.Errorf("no zone areas: %w", ErrDimensionMismatch)
	}
	out := make([]ZoneResistance, len(plateAreas))
	for i := range plateAreas {
		rExt, err := params.exterior(plateAreas[i])
		if err != nil {
			return nil, fmt.Errorf("zone %d exterior resistance: %w", i+1, err)
		}
		rSol, err := params.ground(cementAreas[i])
		if err != nil {
			return nil, fmt.Errorf("zone %d ground resistance: %w", i+1, err)
		}
		out[i] = ZoneResistance{Exterior: rExt, Ground: rSol}
	}
	return out, nil
}

func isFinite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
