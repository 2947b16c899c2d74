package enclosure

import (
	"fmt"
	"math"
)

// CouplingSet maps a coefficient key (see CoefficientKey) to an air mass
// flow rate in kg/s.
type CouplingSet map[string]float64

// CouplingParams groups the mass-flow inputs of the flow model.
type CouplingParams struct {
	Gaps         map[string]float64 // infiltration mass flow per named gap, kg/s
	SpecificHeat float64            // cp of air, J/(kg.K)
	HeaterOn     CouplingSet
	HeaterOff    CouplingSet
}

// Flow is the heat-flow breakdown of one zone for one step, in W.
// Exterior and Ground are the conductive flows evaluated at the new
// temperature; the other terms are evaluated from the previous step.
type Flow struct {
	Heater       float64 `json:"heater" yaml:"heater"`
	Infiltration float64 `json:"infiltration" yaml:"infiltration"`
	InterZone    float64 `json:"inter_zone" yaml:"inter_zone"`
	Exterior     float64 `json:"exterior" yaml:"exterior"`
	Ground       float64 `json:"ground" yaml:"ground"`
}

// Other is the explicit (non-conductive) part of the balance.
func (f Flow) Other() float64 {
	return f.Heater + f.Infiltration + f.InterZone
}

type FlowCoupling struct {
	topology *Topology
	params   CouplingParams
}

// NewFlowCoupling checks that every gap and coefficient referenced by the
// topology is present in params.
func NewFlowCoupling(topology *Topology, params CouplingParams) (*FlowCoupling, error) {
	if topology == nil {
		return nil, fmt.Errorf("nil topology: %w", ErrUnknownZoneTopology)
	}
	if !(params.SpecificHeat > 0) || math.IsInf(params.SpecificHeat, 0) {
		return nil, fmt.Errorf("specific heat cp=%v: %w", params.SpecificHeat, ErrInvalidPhysicalParameter)
	}
	for _, gap := range topology.Gaps() {
		v, ok := params.Gaps[gap]
		if !ok {
			return nil, fmt.Errorf("infiltration gap %q: %w", gap, ErrMissingCoefficient)
		}
		if !isFinite(v) {
			return nil, fmt.Errorf("infiltration gap %q=%v: %w", gap, v, ErrInvalidPhysicalParameter)
		}
	}
	sets := []struct {
		name string
		set  CouplingSet
	}{{"heater_on", params.HeaterOn}, {"heater_off", params.HeaterOff}}
	for _, key := range topology.CoefficientKeys() {
		for _, s := range sets {
			v, ok := s.set[key]
			if !ok {
				return nil, fmt.Errorf("%s coefficient %q: %w", s.name, key, ErrMissingCoefficient)
			}
			if !isFinite(v) {
				return nil, fmt.Errorf("%s coefficient %q=%v: %w", s.name, key, v, ErrInvalidPhysicalParameter)
			}
		}
	}
	return &FlowCoupling{topology: topology, params: params}, nil
}

// Set returns the coefficient set active for the step.
func (fc *FlowCoupling) Set(anyHeaterOn bool) CouplingSet {
	if anyHeaterOn {
		return fc.params.HeaterOn
	}
	return fc.params.HeaterOff
}

// Infiltration is the heat brought into zone by leakage with the exterior.
// The sign only depends on exterior-zone temperature difference.
func (fc *FlowCoupling) Infiltration(zone int, prev []float64, exterior float64) (float64, error) {
	links, err := fc.links(zone, prev)
	if err != nil {
		return 0, err
	}
	mdot := 0.0
	for _, lk := range links.Leaks {
		mdot += math.Abs(lk.Share * fc.params.Gaps[lk.Gap])
	}
	return mdot * fc.params.SpecificHeat * (exterior - prev[zone-1]), nil
}

// InterZone is the heat brought into zone by air exchange with its neighbors.
func (fc *FlowCoupling) InterZone(zone int, prev []float64, set CouplingSet) (float64, error) {
	links, err := fc.links(zone, prev)
	if err != nil {
		return 0, err
	}
	q := 0.0
	for _, n := range links.Neighbors {
		q += set[n.Key] * fc.params.SpecificHeat * (prev[n.Zone-1] - prev[zone-1])
	}
	return q, nil
}

// Contribution evaluates both explicit air terms of zone. Heater, Exterior
// and Ground are left for the caller.
func (fc *FlowCoupling) Contribution(zone int, prev []float64, exterior float64, anyHeaterOn bool) (Flow, error) {
	inf, err := fc.Infiltration(zone, prev, exterior)
	if err != nil {
		return Flow{}, err
	}
	ex, err := fc.InterZone(zone, prev, fc.Set(anyHeaterOn))
	if err != nil {
		return Flow{}, err
	}
	return Flow{Infiltration: inf, InterZone: ex}, nil
}

func (fc *FlowCoupling) links(zone int, prev []float64) (ZoneLinks, error) {
	if len(prev) != fc.topology.Zones() {
		return ZoneLinks{}, fmt.Errorf("%d temperatures for %d zones: %w", len(prev), fc.topology.Zones(), ErrDimensionMismatch)
	}
	return fc.topology.Links(zone)
}
