package testutil

import (
	"fmt"

	"github.com/Agrid-Dev/thermozone/internal/enclosure"
	"github.com/Agrid-Dev/thermozone/internal/run"
)

// FakeTrajectoryService is a reusable fake implementing ports.TrajectoryService.
// Put ONLY what multiple test packages need here.
type FakeTrajectoryService struct {
	ID        string
	Snapshots []enclosure.Snapshot

	StepCalls int
	StepArg   int
	StepErr   error

	ZoneCalls int
	ZoneArg   int
	ZoneErr   error
}

// NewFakeTrajectoryService returns a three-step, two-zone trajectory with
// the heater of zone 1 on at step 1.
func NewFakeTrajectoryService() *FakeTrajectoryService {
	return &FakeTrajectoryService{
		ID: "run-1",
		Snapshots: []enclosure.Snapshot{
			{
				Step: 0, Time: 0, Exterior: -5, Ground: 8,
				Temperatures: []float64{10, 10},
				HeatersOn:    []bool{false, false},
				Cooldowns:    []float64{0, 0},
				Flows:        make([]enclosure.Flow, 2),
			},
			{
				Step: 1, Time: 0.5, Exterior: -4.5, Ground: 8,
				Temperatures: []float64{12.5, 9.75},
				HeatersOn:    []bool{true, false},
				Cooldowns:    []float64{0, 0},
				Flows:        []enclosure.Flow{{Heater: 1500}, {}},
				AnyHeaterOn:  true,
			},
			{
				Step: 2, Time: 1, Exterior: -3, Ground: 8.1,
				Temperatures: []float64{11.25, 9.5},
				HeatersOn:    []bool{false, false},
				Cooldowns:    []float64{1.0 / 12.0, 0},
				Flows:        make([]enclosure.Flow, 2),
			},
		},
	}
}

func (f *FakeTrajectoryService) Result() *enclosure.Result {
	return &enclosure.Result{Snapshots: f.Snapshots}
}

func (f *FakeTrajectoryService) Summary() run.Summary {
	s := run.Summarize(f.ID, 0.5, f.Result())
	s.Status = run.StatusCompleted
	return s
}

func (f *FakeTrajectoryService) Len() int { return len(f.Snapshots) }

func (f *FakeTrajectoryService) Step(i int) (enclosure.Snapshot, error) {
	f.StepCalls++
	f.StepArg = i
	if f.StepErr != nil {
		return enclosure.Snapshot{}, f.StepErr
	}
	if i < 0 || i >= len(f.Snapshots) {
		return enclosure.Snapshot{}, fmt.Errorf("step %d: %w", i, run.ErrStepOutOfRange)
	}
	return f.Snapshots[i], nil
}

func (f *FakeTrajectoryService) Zone(zone int) ([]float64, error) {
	f.ZoneCalls++
	f.ZoneArg = zone
	if f.ZoneErr != nil {
		return nil, f.ZoneErr
	}
	series := f.Result().Zone(zone)
	if series == nil {
		return nil, fmt.Errorf("zone %d: %w", zone, enclosure.ErrUnknownZoneTopology)
	}
	return series, nil
}
