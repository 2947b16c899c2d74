package run

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Agrid-Dev/thermozone/internal/enclosure"
)

var (
	ErrNotCompleted   = errors.New("run not completed")
	ErrStepOutOfRange = errors.New("step out of range")
)

// Run is one simulation run shared with the publication surfaces. It is
// written once by Complete and read concurrently afterwards.
type Run struct {
	ID       string
	TimeStep float64

	mu     sync.RWMutex
	status Status
	result *enclosure.Result
	err    error
}

func New(id string, timeStep float64) *Run {
	return &Run{ID: id, TimeStep: timeStep, status: StatusPending}
}

// Complete stores the outcome of Simulator.Run. A non-nil err marks the
// run aborted; the partial result is kept.
func (r *Run) Complete(res *enclosure.Result, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if res == nil {
		res = &enclosure.Result{}
	}
	r.result = res
	r.err = err
	if err != nil {
		r.status = StatusAborted
	} else {
		r.status = StatusCompleted
	}
}

func (r *Run) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

func (r *Run) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

func (r *Run) Result() *enclosure.Result {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.result
}

func (r *Run) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.result == nil {
		return 0
	}
	return r.result.Len()
}

func (r *Run) Step(i int) (enclosure.Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.result == nil {
		return enclosure.Snapshot{}, ErrNotCompleted
	}
	if i < 0 || i >= r.result.Len() {
		return enclosure.Snapshot{}, fmt.Errorf("step %d outside 0..%d: %w", i, r.result.Len()-1, ErrStepOutOfRange)
	}
	return r.result.Snapshots[i], nil
}

// Zone returns the temperature series of a 1-based zone.
func (r *Run) Zone(zone int) ([]float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.result == nil {
		return nil, ErrNotCompleted
	}
	series := r.result.Zone(zone)
	if series == nil {
		return nil, fmt.Errorf("zone %d: %w", zone, enclosure.ErrUnknownZoneTopology)
	}
	return series, nil
}

func (r *Run) Summary() Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := Summarize(r.ID, r.TimeStep, r.result)
	s.Status = r.status
	if r.err != nil {
		s.Error = r.err.Error()
	}
	return s
}
