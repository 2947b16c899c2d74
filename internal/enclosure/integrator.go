package enclosure

import (
	"fmt"
	"math"
)

const secondsPerHour = 3600.0

// ZoneStep gathers the inputs of one zone's temperature update.
type ZoneStep struct {
	Previous    float64 // °C
	Exterior    float64 // °C
	Ground      float64 // °C
	OtherFlow   float64 // W, heater + infiltration + inter-zone, explicit
	Resistance  ZoneResistance
	Capacitance float64 // J/K
}

// SemiImplicitStep advances one zone by dt hours. Conduction toward the
// exterior and the ground is implicit, OtherFlow is explicit:
//
//	(C/dt + 1/Rext + 1/Rsol)·Tnew = (C/dt)·Told + Text/Rext + Tsol/Rsol + Qother
//
// An infinite resistance removes the corresponding conduction path.
func SemiImplicitStep(in ZoneStep, dt float64) (float64, error) {
	if !(dt > 0) || math.IsInf(dt, 0) {
		return 0, fmt.Errorf("dt=%v: %w", dt, ErrDegenerateSystem)
	}
	if !(in.Capacitance > 0) || math.IsInf(in.Capacitance, 0) {
		return 0, fmt.Errorf("capacitance C=%v: %w", in.Capacitance, ErrDegenerateSystem)
	}
	if !(in.Resistance.Exterior > 0) || !(in.Resistance.Ground > 0) {
		return 0, fmt.Errorf("resistances %+v: %w", in.Resistance, ErrDegenerateSystem)
	}

	inertia := in.Capacitance / (dt * secondsPerHour)
	gExt := 1 / in.Resistance.Exterior
	gSol := 1 / in.Resistance.Ground

	a := inertia + gExt + gSol
	b := inertia*in.Previous + gExt*in.Exterior + gSol*in.Ground + in.OtherFlow
	return b / a, nil
}
