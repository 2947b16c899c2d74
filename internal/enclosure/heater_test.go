package enclosure

import (
	"testing"
)

const minute = 1.0 / 60.0

func newTestHeater(t *testing.T) *Heater {
	t.Helper()
	h, err := NewHeater(DefaultHeaterParams(), 1500)
	if err != nil {
		t.Fatalf("NewHeater: %v", err)
	}
	return h
}

func TestHeaterTurnsOnWhenCold(t *testing.T) {
	h := newTestHeater(t)
	prev := []float64{10, 10, 10}
	if q := h.Step(prev, -5, minute); q != 1500 || !h.On() {
		t.Fatalf("expected heater on with full power, got q=%v on=%v", q, h.On())
	}
	if q := h.Step(prev, -5, minute); q != 1500 || !h.On() {
		t.Fatalf("expected heater to stay on, got q=%v on=%v", q, h.On())
	}
}

func TestHeaterExactThresholdHolds(t *testing.T) {
	h := newTestHeater(t)
	prev := []float64{10, 10}
	if q := h.Step(prev, -1, minute); q != 0 || h.On() {
		t.Fatalf("off heater at threshold should stay off")
	}
	h.Step(prev, -5, minute)
	if q := h.Step(prev, -1, minute); q != 1500 || !h.On() {
		t.Fatalf("on heater at threshold should stay on")
	}
}

func TestHeaterCooldownExact(t *testing.T) {
	h := newTestHeater(t)
	prev := []float64{10, 10}
	h.Step(prev, -5, minute)
	h.Step(prev, 0, minute) // turns off, cooldown armed
	if h.On() || !almostEqual(h.Cooldown(), 5*minute, 1e-12) {
		t.Fatalf("expected off with 5 min cooldown, got on=%v cooldown=%v", h.On(), h.Cooldown())
	}
	for i := 1; i <= 4; i++ {
		if q := h.Step(prev, -5, minute); q != 0 || h.On() {
			t.Fatalf("minute %d: heater must stay off during cooldown", i)
		}
	}
	if q := h.Step(prev, -5, minute); q != 1500 || !h.On() {
		t.Fatalf("heater should turn on exactly when the cooldown elapses, cooldown=%v", h.Cooldown())
	}
	if h.Cooldown() != 0 {
		t.Fatalf("cooldown should be floored to 0, got %v", h.Cooldown())
	}
}

func TestHeaterWithoutTemperaturesTurnsOff(t *testing.T) {
	h := newTestHeater(t)
	if q := h.Step(nil, -5, minute); q != 0 || h.On() {
		t.Fatalf("off heater without readings should stay off, got q=%v", q)
	}
	h.Step([]float64{10, 10}, -5, minute)
	if q := h.Step([]float64{}, -5, minute); q != 0 || h.On() {
		t.Fatalf("on heater without readings should turn off, got q=%v", q)
	}
	if !almostEqual(h.Cooldown(), DefaultHeaterParams().Cooldown, 1e-12) {
		t.Fatalf("expected cooldown armed, got %v", h.Cooldown())
	}
}

func TestHeaterCeilingWinsOverCold(t *testing.T) {
	h := newTestHeater(t)
	h.Step([]float64{10, 10}, -5, minute)
	// mean of the end zones above 38.75
	if q := h.Step([]float64{40, 0, 39}, -5, minute); q != 0 || h.On() {
		t.Fatalf("ceiling must turn the heater off")
	}
	if !almostEqual(h.Cooldown(), 5*minute, 1e-12) {
		t.Fatalf("cooldown not armed: %v", h.Cooldown())
	}
}

func TestHeaterOffNeverArmsCooldown(t *testing.T) {
	h := newTestHeater(t)
	h.Step([]float64{10, 10}, 5, minute)
	if h.Cooldown() != 0 {
		t.Fatalf("off to off must not arm cooldown, got %v", h.Cooldown())
	}
}

func TestHeaterCooldownMonotone(t *testing.T) {
	h := newTestHeater(t)
	prev := []float64{10, 10}
	exteriors := []float64{-5, -5, 2, -5, -5, -3, 0, 0, -5, -5, -5, -5, -5, -5, 3, -5}
	last := h.Cooldown()
	for i, ext := range exteriors {
		wasOn := h.On()
		h.Step(prev, ext, minute)
		c := h.Cooldown()
		if c < 0 {
			t.Fatalf("step %d: negative cooldown %v", i, c)
		}
		armed := wasOn && !h.On()
		if !armed && c > last {
			t.Fatalf("step %d: cooldown increased without a turn-off (%v -> %v)", i, last, c)
		}
		if armed && !almostEqual(c, 5*minute, 1e-12) {
			t.Fatalf("step %d: cooldown %v after turn-off", i, c)
		}
		if h.On() && c != 0 {
			t.Fatalf("step %d: heater on with cooldown %v", i, c)
		}
		last = c
	}
}

func TestHeaterInvalidParams(t *testing.T) {
	p := DefaultHeaterParams()
	p.Cooldown = -1
	_, err := NewHeater(p, 1000)
	assertErrorIs(t, err, ErrInvalidHeaterParams)

	_, err = NewHeater(DefaultHeaterParams(), -5)
	assertErrorIs(t, err, ErrInvalidPhysicalParameter)
}

func TestHeaterStateParse(t *testing.T) {
	tests := []struct {
		in      string
		want    HeaterState
		wantErr bool
	}{
		{"on", HeaterOn, false},
		{"off", HeaterOff, false},
		{"ON", HeaterUnknown, true},
		{"", HeaterUnknown, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseHeaterState(tt.in)
			if (err != nil) != tt.wantErr || got != tt.want {
				t.Fatalf("ParseHeaterState(%q) = %v, %v", tt.in, got, err)
			}
			if !tt.wantErr && got.String() != tt.in {
				t.Fatalf("String() = %q, want %q", got.String(), tt.in)
			}
		})
	}
	if HeaterUnknown.Valid() {
		t.Fatal("unknown state must not be valid")
	}
}
