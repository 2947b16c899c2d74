package enclosure

import (
	"context"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
)

// maxSteps bounds the number of recorded states of one run.
const maxSteps = math.MaxInt32

// Params is everything a run needs, already resolved by the caller.
// Times are in hours, temperatures in °C.
type Params struct {
	Capacitances []float64        // J/K, one per zone
	HeaterPowers []float64        // W, one per zone
	Resistances  []ZoneResistance // from BuildResistances
	Boundary     BoundaryConditions
	Heater       HeaterParams
	Coupling     CouplingParams
	Topology     *Topology // nil means LinearChain(len(Capacitances))

	TimeStep           float64
	Duration           float64
	InitialTemperature float64

	// TraceEvery logs the per-zone flow breakdown at debug level every
	// TraceEvery steps. 0 disables the trace.
	TraceEvery int
}

func (params *Params) Validate() error {
	n := len(params.Capacitances)
	if n == 0 {
		return fmt.Errorf("no zones: %w", ErrDimensionMismatch)
	}
	if len(params.HeaterPowers) != n || len(params.Resistances) != n {
		return fmt.Errorf("%d capacitances, %d heater powers, %d resistances: %w",
			n, len(params.HeaterPowers), len(params.Resistances), ErrDimensionMismatch)
	}
	if params.Topology != nil && params.Topology.Zones() != n {
		return fmt.Errorf("topology has %d zones for %d capacitances: %w", params.Topology.Zones(), n, ErrDimensionMismatch)
	}
	for i, c := range params.Capacitances {
		if !(c > 0) || math.IsInf(c, 0) {
			return fmt.Errorf("zone %d capacitance %v: %w", i+1, c, ErrInvalidPhysicalParameter)
		}
	}
	for i, r := range params.Resistances {
		if !(r.Exterior > 0) || !(r.Ground > 0) {
			return fmt.Errorf("zone %d resistances %+v: %w", i+1, r, ErrInvalidPhysicalParameter)
		}
	}
	if err := params.Boundary.Validate(); err != nil {
		return err
	}
	if err := params.Heater.Validate(); err != nil {
		return err
	}
	if !(params.TimeStep > 0) || !(params.Duration >= 0) || !isFinite(params.TimeStep, params.Duration) {
		return fmt.Errorf("dt=%v duration=%v: %w", params.TimeStep, params.Duration, ErrInvalidTimeStep)
	}
	if params.Duration/params.TimeStep >= maxSteps {
		return fmt.Errorf("dt=%v duration=%v needs more than %d steps: %w",
			params.TimeStep, params.Duration, maxSteps, ErrInvalidTimeStep)
	}
	if !isFinite(params.InitialTemperature) {
		return fmt.Errorf("initial temperature %v: %w", params.InitialTemperature, ErrInvalidPhysicalParameter)
	}
	if params.TraceEvery < 0 {
		return fmt.Errorf("trace period %d: %w", params.TraceEvery, ErrInvalidTimeStep)
	}
	return nil
}

// StepCount is the number of recorded states, the initial one included:
// ceil(Duration/TimeStep) + 1.
func (params *Params) StepCount() int {
	// the epsilon absorbs representation error, e.g. 48/0.1 = 480.00000000000006
	return int(math.Ceil(params.Duration/params.TimeStep-1e-9)) + 1
}

// Snapshot is the state of the enclosure at the end of a step. Snapshots
// are never mutated once produced.
type Snapshot struct {
	Step         int       `json:"step" yaml:"step"`
	Time         float64   `json:"time" yaml:"time"`
	Exterior     float64   `json:"exterior" yaml:"exterior"`
	Ground       float64   `json:"ground" yaml:"ground"`
	Temperatures []float64 `json:"temperatures" yaml:"temperatures"`
	HeatersOn    []bool    `json:"heaters_on" yaml:"heaters_on"`
	Cooldowns    []float64 `json:"cooldowns" yaml:"cooldowns"`
	Flows        []Flow    `json:"flows" yaml:"flows"`
	AnyHeaterOn  bool      `json:"any_heater_on" yaml:"any_heater_on"`
}

type Simulator struct {
	params   Params
	topology *Topology
	coupling *FlowCoupling
	heaters  []*Heater
	steps    int
	state    Snapshot
	log      *logrus.Entry
}

type Option func(*Simulator)

func WithLogger(log *logrus.Entry) Option {
	return func(s *Simulator) {
		s.log = log
	}
}

// New validates params and prepares the run. Any invalid input is reported
// here, before the first step.
func New(params Params, opts ...Option) (*Simulator, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	n := len(params.Capacitances)

	topology := params.Topology
	if topology == nil {
		var err error
		if topology, err = LinearChain(n); err != nil {
			return nil, err
		}
	}
	coupling, err := NewFlowCoupling(topology, params.Coupling)
	if err != nil {
		return nil, err
	}

	heaters := make([]*Heater, n)
	for i, p := range params.HeaterPowers {
		if heaters[i], err = NewHeater(params.Heater, p); err != nil {
			return nil, fmt.Errorf("zone %d: %w", i+1, err)
		}
	}

	s := &Simulator{
		params:   params,
		topology: topology,
		coupling: coupling,
		heaters:  heaters,
		steps:    params.StepCount(),
		log:      logrus.WithField("domain", "simulation"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.state = s.initialState()
	return s, nil
}

func (s *Simulator) initialState() Snapshot {
	n := len(s.params.Capacitances)
	b := s.params.Boundary.At(0)
	temps := make([]float64, n)
	for i := range temps {
		temps[i] = s.params.InitialTemperature
	}
	return Snapshot{
		Step:         0,
		Time:         0,
		Exterior:     b.Exterior,
		Ground:       b.Ground,
		Temperatures: temps,
		HeatersOn:    make([]bool, n),
		Cooldowns:    make([]float64, n),
		Flows:        make([]Flow, n),
	}
}

// Steps is the number of recorded states of a full run, the initial one included.
func (s *Simulator) Steps() int {
	return s.steps
}

func (s *Simulator) Zones() int {
	return len(s.heaters)
}

func (s *Simulator) State() Snapshot {
	return s.state
}

// Step advances the enclosure by one time step. Heaters are evaluated
// first; the coupling set is chosen once all of them are known; flows and
// integration then read the previous temperatures only.
func (s *Simulator) Step() (Snapshot, error) {
	n := len(s.heaters)
	dt := s.params.TimeStep
	step := s.state.Step + 1
	t := float64(step) * dt
	b := s.params.Boundary.At(t)
	prev := s.state.Temperatures

	flows := make([]Flow, n)
	on := make([]bool, n)
	cooldowns := make([]float64, n)
	anyOn := false
	for i, h := range s.heaters {
		flows[i].Heater = h.Step(prev, b.Exterior, dt)
		on[i] = h.On()
		cooldowns[i] = h.Cooldown()
		anyOn = anyOn || on[i]
	}

	next := make([]float64, n)
	for i := range next {
		zone := i + 1
		air, err := s.coupling.Contribution(zone, prev, b.Exterior, anyOn)
		if err != nil {
			return Snapshot{}, &StepError{Step: step, Time: t, Zone: zone, Err: err}
		}
		flows[i].Infiltration = air.Infiltration
		flows[i].InterZone = air.InterZone

		r := s.params.Resistances[i]
		temp, err := SemiImplicitStep(ZoneStep{
			Previous:    prev[i],
			Exterior:    b.Exterior,
			Ground:      b.Ground,
			OtherFlow:   flows[i].Other(),
			Resistance:  r,
			Capacitance: s.params.Capacitances[i],
		}, dt)
		if err != nil {
			return Snapshot{}, &StepError{Step: step, Time: t, Zone: zone, Err: err}
		}
		if !isFinite(temp) {
			return Snapshot{}, &StepError{Step: step, Time: t, Zone: zone, Err: ErrNumericalDivergence}
		}
		flows[i].Exterior = (b.Exterior - temp) / r.Exterior
		flows[i].Ground = (b.Ground - temp) / r.Ground
		next[i] = temp
	}

	s.state = Snapshot{
		Step:         step,
		Time:         t,
		Exterior:     b.Exterior,
		Ground:       b.Ground,
		Temperatures: next,
		HeatersOn:    on,
		Cooldowns:    cooldowns,
		Flows:        flows,
		AnyHeaterOn:  anyOn,
	}
	if s.params.TraceEvery > 0 && step%s.params.TraceEvery == 0 {
		s.trace()
	}
	return s.state, nil
}

func (s *Simulator) trace() {
	for i, f := range s.state.Flows {
		s.log.WithFields(logrus.Fields{
			"step":         s.state.Step,
			"time":         s.state.Time,
			"zone":         i + 1,
			"temperature":  s.state.Temperatures[i],
			"heater":       f.Heater,
			"infiltration": f.Infiltration,
			"inter_zone":   f.InterZone,
			"exterior":     f.Exterior,
			"ground":       f.Ground,
		}).Debug("flow breakdown")
	}
}

// Run advances the simulator until Steps states are recorded. On failure
// the states recorded so far are returned along with the error.
func (s *Simulator) Run(ctx context.Context) (*Result, error) {
	result := &Result{Snapshots: make([]Snapshot, 0, s.steps)}
	result.Snapshots = append(result.Snapshots, s.state)

	s.log.WithFields(logrus.Fields{
		"zones": len(s.heaters),
		"steps": s.steps,
		"dt":    s.params.TimeStep,
	}).Info("simulation started")

	for len(result.Snapshots) < s.steps {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}
		snap, err := s.Step()
		if err != nil {
			s.log.WithError(err).Error("simulation aborted")
			return result, err
		}
		result.Snapshots = append(result.Snapshots, snap)
	}

	final := result.Final()
	s.log.WithFields(logrus.Fields{
		"time":         final.Time,
		"temperatures": final.Temperatures,
	}).Info("simulation completed")
	return result, nil
}
