package enclosure

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidPhysicalParameter = errors.New("invalid physical parameter")
	ErrUnknownZoneTopology      = errors.New("unknown zone topology")
	ErrDegenerateSystem         = errors.New("degenerate thermal system")
	ErrNumericalDivergence      = errors.New("numerical divergence")
	ErrDimensionMismatch        = errors.New("dimension mismatch")
	ErrMissingCoefficient       = errors.New("missing coupling coefficient")
	ErrInvalidHeaterParams      = errors.New("invalid heater parameters")
	ErrInvalidTimeStep          = errors.New("invalid time step or duration")
)

// StepError reports a failure that happened while advancing the simulation.
// Zone is 1-based, 0 when the failure is not tied to a single zone.
type StepError struct {
	Step int
	Time float64
	Zone int
	Err  error
}

func (e *StepError) Error() string {
	if e.Zone > 0 {
		return fmt.Sprintf("step %d (t=%.4fh) zone %d: %v", e.Step, e.Time, e.Zone, e.Err)
	}
	return fmt.Sprintf("step %d (t=%.4fh): %v", e.Step, e.Time, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
