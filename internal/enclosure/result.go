package enclosure

import "gonum.org/v1/gonum/mat"

// Result is the trajectory of a run, one snapshot per recorded step.
type Result struct {
	Snapshots []Snapshot
}

func (r *Result) Len() int {
	return len(r.Snapshots)
}

func (r *Result) Zones() int {
	if len(r.Snapshots) == 0 {
		return 0
	}
	return len(r.Snapshots[0].Temperatures)
}

func (r *Result) Final() Snapshot {
	if len(r.Snapshots) == 0 {
		return Snapshot{}
	}
	return r.Snapshots[len(r.Snapshots)-1]
}

// Times returns the time vector in hours.
func (r *Result) Times() []float64 {
	out := make([]float64, len(r.Snapshots))
	for i, s := range r.Snapshots {
		out[i] = s.Time
	}
	return out
}

// Temperatures returns one row per step, one column per zone.
func (r *Result) Temperatures() [][]float64 {
	out := make([][]float64, len(r.Snapshots))
	for i, s := range r.Snapshots {
		out[i] = s.Temperatures
	}
	return out
}

func (r *Result) HeaterTrace() [][]bool {
	out := make([][]bool, len(r.Snapshots))
	for i, s := range r.Snapshots {
		out[i] = s.HeatersOn
	}
	return out
}

// Zone returns the temperature series of a 1-based zone, nil when out of range.
func (r *Result) Zone(zone int) []float64 {
	if zone < 1 || zone > r.Zones() {
		return nil
	}
	out := make([]float64, len(r.Snapshots))
	for i, s := range r.Snapshots {
		out[i] = s.Temperatures[zone-1]
	}
	return out
}

// Matrix returns the steps × zones temperature matrix, nil for an empty result.
func (r *Result) Matrix() *mat.Dense {
	rows, cols := r.Len(), r.Zones()
	if rows == 0 || cols == 0 {
		return nil
	}
	data := make([]float64, 0, rows*cols)
	for _, s := range r.Snapshots {
		data = append(data, s.Temperatures...)
	}
	return mat.NewDense(rows, cols, data)
}
