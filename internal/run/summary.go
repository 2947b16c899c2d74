package run

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/Agrid-Dev/thermozone/internal/enclosure"
)

type Status int

const (
	StatusUnknown Status = iota
	StatusPending
	StatusCompleted
	StatusAborted
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusCompleted:
		return "completed"
	case StatusAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

func ParseStatus(s string) (Status, error) {
	switch s {
	case "pending":
		return StatusPending, nil
	case "completed":
		return StatusCompleted, nil
	case "aborted":
		return StatusAborted, nil
	default:
		return StatusUnknown, fmt.Errorf("invalid run status: %q", s)
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

type ZoneStats struct {
	Zone  int     `json:"zone" yaml:"zone"`
	Min   float64 `json:"min" yaml:"min"`
	Max   float64 `json:"max" yaml:"max"`
	Mean  float64 `json:"mean" yaml:"mean"`
	Final float64 `json:"final" yaml:"final"`

	HeaterHours    float64 `json:"heater_hours" yaml:"heater_hours"`
	HeaterSwitches int     `json:"heater_switches" yaml:"heater_switches"`
}

type Summary struct {
	RunID    string      `json:"run_id" yaml:"run_id"`
	Status   Status      `json:"status" yaml:"status"`
	Error    string      `json:"error,omitempty" yaml:"error,omitempty"`
	Zones    int         `json:"zones" yaml:"zones"`
	Steps    int         `json:"steps" yaml:"steps"`
	TimeStep float64     `json:"time_step" yaml:"time_step"`
	EndTime  float64     `json:"end_time" yaml:"end_time"`
	Stats    []ZoneStats `json:"zone_stats" yaml:"zone_stats"`
}

// Summarize computes per-zone statistics over a result. Heater hours count
// dt for every record in which the heater was on; switches count off to on
// transitions.
func Summarize(id string, dt float64, res *enclosure.Result) Summary {
	s := Summary{RunID: id, TimeStep: dt}
	if res == nil || res.Len() == 0 {
		return s
	}
	s.Zones = res.Zones()
	s.Steps = res.Len()
	s.EndTime = res.Final().Time

	trace := res.HeaterTrace()
	for zone := 1; zone <= s.Zones; zone++ {
		series := res.Zone(zone)
		st := ZoneStats{
			Zone:  zone,
			Min:   floats.Min(series),
			Max:   floats.Max(series),
			Mean:  stat.Mean(series, nil),
			Final: series[len(series)-1],
		}
		for i, row := range trace {
			if !row[zone-1] {
				continue
			}
			st.HeaterHours += dt
			if i > 0 && !trace[i-1][zone-1] {
				st.HeaterSwitches++
			}
		}
		s.Stats = append(s.Stats, st)
	}
	return s
}
