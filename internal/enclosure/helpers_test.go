package enclosure

import (
	"errors"
	"math"
	"testing"
)

func almostEqual(a, b, tolerance float64) bool {
	return math.Abs(a-b) <= tolerance
}

func assertErrorIs(t *testing.T, err error, expected error) {
	t.Helper()
	if !errors.Is(err, expected) {
		t.Fatalf("expected %v, got %v", expected, err)
	}
}

func uniform(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func chainCoefficients(t *testing.T, n int, v float64) CouplingSet {
	t.Helper()
	topo, err := LinearChain(n)
	if err != nil {
		t.Fatalf("LinearChain(%d): %v", n, err)
	}
	set := CouplingSet{}
	for _, k := range topo.CoefficientKeys() {
		set[k] = v
	}
	return set
}

func chainGaps(t *testing.T, n int, v float64) map[string]float64 {
	t.Helper()
	topo, err := LinearChain(n)
	if err != nil {
		t.Fatalf("LinearChain(%d): %v", n, err)
	}
	gaps := map[string]float64{}
	for _, g := range topo.Gaps() {
		gaps[g] = v
	}
	return gaps
}

// newTestParams builds a quiet six-zone enclosure: no heating power, no air
// exchange, constant boundaries at 15 °C.
func newTestParams(t *testing.T, opts ...func(*Params)) Params {
	t.Helper()
	const n = 6
	res := make([]ZoneResistance, n)
	for i := range res {
		res[i] = ZoneResistance{Exterior: 0.05, Ground: 0.1}
	}
	p := Params{
		Capacitances: uniform(n, 1e6),
		HeaterPowers: uniform(n, 0),
		Resistances:  res,
		Boundary: BoundaryConditions{
			Exterior: Constant(15),
			Ground:   Constant(15),
		},
		Heater: DefaultHeaterParams(),
		Coupling: CouplingParams{
			Gaps:         chainGaps(t, n, 0),
			SpecificHeat: 1005,
			HeaterOn:     chainCoefficients(t, n, 0),
			HeaterOff:    chainCoefficients(t, n, 0),
		},
		TimeStep:           1.0 / 60.0,
		Duration:           1,
		InitialTemperature: 10,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

func newTestSimulator(t *testing.T, opts ...func(*Params)) *Simulator {
	t.Helper()
	s, err := New(newTestParams(t, opts...))
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return s
}
