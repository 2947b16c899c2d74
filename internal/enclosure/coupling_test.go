package enclosure

import (
	"math"
	"testing"
)

func newTestCoupling(t *testing.T, n int, gap, coeff float64) *FlowCoupling {
	t.Helper()
	topo, _ := LinearChain(n)
	fc, err := NewFlowCoupling(topo, CouplingParams{
		Gaps:         chainGaps(t, n, gap),
		SpecificHeat: 1005,
		HeaterOn:     chainCoefficients(t, n, coeff),
		HeaterOff:    chainCoefficients(t, n, 2*coeff),
	})
	if err != nil {
		t.Fatalf("NewFlowCoupling: %v", err)
	}
	return fc
}

func TestInfiltrationSign(t *testing.T) {
	tests := []struct {
		name     string
		gap      float64
		exterior float64
		zone     float64
		sign     float64
	}{
		{"warmer outside heats", 0.01, 20, 10, 1},
		{"colder outside cools", 0.01, 0, 10, -1},
		{"negative gap flow keeps sign", -0.01, 0, 10, -1},
		{"equal temperatures", 0.01, 10, 10, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := newTestCoupling(t, 3, tt.gap, 0)
			prev := []float64{tt.zone, tt.zone, tt.zone}
			for zone := 1; zone <= 3; zone++ {
				q, err := fc.Infiltration(zone, prev, tt.exterior)
				if err != nil {
					t.Fatalf("Infiltration: %v", err)
				}
				if got := sign(q); got != tt.sign {
					t.Errorf("zone %d: q=%v, want sign %v", zone, q, tt.sign)
				}
			}
		})
	}
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func TestInfiltrationShares(t *testing.T) {
	fc := newTestCoupling(t, 3, 0.02, 0)
	prev := []float64{10, 10, 10}
	// end zones: full outer gap + half an interior gap; middle: two halves.
	want := []float64{0.03 * 1005 * 10, 0.02 * 1005 * 10, 0.03 * 1005 * 10}
	for zone := 1; zone <= 3; zone++ {
		q, _ := fc.Infiltration(zone, prev, 20)
		if !almostEqual(q, want[zone-1], 1e-9) {
			t.Errorf("zone %d: q=%v, want %v", zone, q, want[zone-1])
		}
	}
}

func TestInterZoneUsesActiveSet(t *testing.T) {
	fc := newTestCoupling(t, 2, 0, 0.5)
	prev := []float64{10, 20}

	on, _ := fc.Contribution(1, prev, 0, true)
	off, _ := fc.Contribution(1, prev, 0, false)
	if !almostEqual(on.InterZone, 0.5*1005*10, 1e-9) {
		t.Errorf("heater on: InterZone=%v", on.InterZone)
	}
	if !almostEqual(off.InterZone, 1.0*1005*10, 1e-9) {
		t.Errorf("heater off: InterZone=%v", off.InterZone)
	}

	back, _ := fc.Contribution(2, prev, 0, true)
	if !almostEqual(back.InterZone, -on.InterZone, 1e-9) {
		t.Errorf("symmetric coefficients should conserve energy: %v vs %v", back.InterZone, on.InterZone)
	}
}

func TestNewFlowCouplingMissing(t *testing.T) {
	topo, _ := LinearChain(2)
	base := func() CouplingParams {
		return CouplingParams{
			Gaps:         chainGaps(t, 2, 0.01),
			SpecificHeat: 1005,
			HeaterOn:     chainCoefficients(t, 2, 0.1),
			HeaterOff:    chainCoefficients(t, 2, 0.1),
		}
	}
	tests := []struct {
		name   string
		mutate func(*CouplingParams)
		want   error
	}{
		{"missing gap", func(p *CouplingParams) { delete(p.Gaps, "gap_1") }, ErrMissingCoefficient},
		{"missing on coefficient", func(p *CouplingParams) { delete(p.HeaterOn, "f12") }, ErrMissingCoefficient},
		{"missing off coefficient", func(p *CouplingParams) { delete(p.HeaterOff, "f21") }, ErrMissingCoefficient},
		{"NaN coefficient", func(p *CouplingParams) { p.HeaterOn["f21"] = math.NaN() }, ErrInvalidPhysicalParameter},
		{"zero cp", func(p *CouplingParams) { p.SpecificHeat = 0 }, ErrInvalidPhysicalParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base()
			tt.mutate(&p)
			_, err := NewFlowCoupling(topo, p)
			assertErrorIs(t, err, tt.want)
		})
	}
}

func TestCouplingDimensionMismatch(t *testing.T) {
	fc := newTestCoupling(t, 3, 0.01, 0.1)
	_, err := fc.Contribution(1, []float64{10, 10}, 0, false)
	assertErrorIs(t, err, ErrDimensionMismatch)
	_, err = fc.Contribution(4, []float64{10, 10, 10}, 0, false)
	assertErrorIs(t, err, ErrUnknownZoneTopology)
}
