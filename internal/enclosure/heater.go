package enclosure

import (
	"fmt"
	"math"
)

// HeaterState is an integer enum.
type HeaterState int

const (
	HeaterUnknown HeaterState = iota
	HeaterOff
	HeaterOn
)

func (s HeaterState) Valid() bool {
	return s == HeaterOff || s == HeaterOn
}

func (s HeaterState) String() string {
	switch s {
	case HeaterOff:
		return "off"
	case HeaterOn:
		return "on"
	default:
		return "unknown"
	}
}

func ParseHeaterState(s string) (HeaterState, error) {
	switch s {
	case "off":
		return HeaterOff, nil
	case "on":
		return HeaterOn, nil
	default:
		return HeaterUnknown, fmt.Errorf("invalid heater state: %q", s)
	}
}

// Cooldown timers below this value (hours) are considered elapsed, so that
// repeated subtraction of dt does not leave a residue of a few ulps.
const cooldownEpsilon = 1e-9

type HeaterParams struct {
	ExteriorThreshold float64 // °C, heaters run only below it
	EnclosureCeiling  float64 // °C, end-zone mean above which heaters stop
	Cooldown          float64 // hours a heater stays off after turning off
}

func DefaultHeaterParams() HeaterParams {
	return HeaterParams{
		ExteriorThreshold: -1,
		EnclosureCeiling:  38.75,
		Cooldown:          5.0 / 60.0,
	}
}

func (params *HeaterParams) Validate() error {
	if !isFinite(params.ExteriorThreshold, params.EnclosureCeiling, params.Cooldown) {
		return fmt.Errorf("%+v: %w", *params, ErrInvalidHeaterParams)
	}
	if params.Cooldown < 0 {
		return fmt.Errorf("cooldown %v < 0: %w", params.Cooldown, ErrInvalidHeaterParams)
	}
	return nil
}

// Heater is the on/off controller of one zone's heating unit. It owns its
// state and cooldown timer; nothing else mutates them.
type Heater struct {
	params   HeaterParams
	power    float64
	state    HeaterState
	cooldown float64
}

func NewHeater(params HeaterParams, power float64) (*Heater, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if !(power >= 0) || math.IsInf(power, 0) {
		return nil, fmt.Errorf("heater power %v: %w", power, ErrInvalidPhysicalParameter)
	}
	return &Heater{params: params, power: power, state: HeaterOff}, nil
}

func (h *Heater) On() bool {
	return h.state == HeaterOn
}

func (h *Heater) State() HeaterState {
	return h.state
}

// Cooldown returns the remaining off time in hours.
func (h *Heater) Cooldown() float64 {
	return h.cooldown
}

func (h *Heater) Power() float64 {
	return h.power
}

// Step advances the controller by dt hours and returns the heating power (W)
// delivered during the step. prev holds the previous step temperatures of
// every zone; control looks at the mean of the two end zones. An empty prev
// gives no enclosure reading and counts as a turn-off condition.
func (h *Heater) Step(prev []float64, exterior, dt float64) float64 {
	h.cooldown -= dt
	if h.cooldown < cooldownEpsilon {
		h.cooldown = 0
	}

	tooWarm := len(prev) == 0
	if !tooWarm {
		tooWarm = 0.5*(prev[0]+prev[len(prev)-1]) > h.params.EnclosureCeiling
	}

	// Turn-off is checked first: it wins over turn-on in the same step.
	if exterior > h.params.ExteriorThreshold || tooWarm {
		if h.state == HeaterOn {
			h.state = HeaterOff
			h.cooldown = h.params.Cooldown
		}
		return 0
	}
	if exterior < h.params.ExteriorThreshold {
		if h.cooldown > 0 {
			return 0
		}
		h.state = HeaterOn
		return h.power
	}

	// exterior sits exactly on the threshold: hold the current state.
	if h.state == HeaterOn {
		return h.power
	}
	return 0
}
