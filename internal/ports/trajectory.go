package ports

import (
	"github.com/Agrid-Dev/thermozone/internal/enclosure"
	"github.com/Agrid-Dev/thermozone/internal/run"
)

// TrajectoryService is the read port used by controllers (HTTP/MQTT/Modbus/Kafka).
type TrajectoryService interface {
	Summary() run.Summary
	Len() int
	Step(i int) (enclosure.Snapshot, error)
	Zone(zone int) ([]float64, error)
}
