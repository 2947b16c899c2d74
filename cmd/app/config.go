package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"

	"github.com/Agrid-Dev/thermozone/internal/enclosure"
)

const EnvPrefix = "THERMOZONE_"

var ErrUnknownKey = errors.New("unknown configuration key")

type Config struct {
	RunID string `koanf:"run_id" json:"run_id" yaml:"run_id"`

	Simulation SimulationConfig `koanf:"simulation" json:"simulation" yaml:"simulation"`
	Geometry   GeometryConfig   `koanf:"geometry" json:"geometry" yaml:"geometry"`
	Properties PropertiesConfig `koanf:"properties" json:"properties" yaml:"properties"`
	Layers     LayersConfig     `koanf:"layers" json:"layers" yaml:"layers"`

	ExteriorTemperature HarmonicConfig `koanf:"exterior_temperature" json:"exterior_temperature" yaml:"exterior_temperature"`
	GroundTemperature   HarmonicConfig `koanf:"ground_temperature" json:"ground_temperature" yaml:"ground_temperature"`

	// Mass flows in kg/s. Missing names take the defaults, unknown names are rejected.
	Infiltration  map[string]float64 `koanf:"infiltration,omitempty" json:"infiltration" yaml:"infiltration"`
	FlowHeaterOn  map[string]float64 `koanf:"flow_heater_on,omitempty" json:"flow_heater_on" yaml:"flow_heater_on"`
	FlowHeaterOff map[string]float64 `koanf:"flow_heater_off,omitempty" json:"flow_heater_off" yaml:"flow_heater_off"`

	Heaters      HeatersConfig `koanf:"heaters" json:"heaters" yaml:"heaters"`
	Capacitances []float64     `koanf:"capacitances" json:"capacitances" yaml:"capacitances"` // J/K, derived from geometry when empty

	Output      OutputConfig      `koanf:"output" json:"output" yaml:"output"`
	Controllers ControllersConfig `koanf:"controllers" json:"controllers" yaml:"controllers"`
}

type SimulationConfig struct {
	TimeStep           float64 `koanf:"time_step" json:"time_step" yaml:"time_step"` // hours
	Duration           float64 `koanf:"duration" json:"duration" yaml:"duration"`    // hours
	InitialTemperature float64 `koanf:"initial_temperature" json:"initial_temperature" yaml:"initial_temperature"`
	Debug              bool    `koanf:"debug" json:"debug" yaml:"debug"`
	TraceEvery         int     `koanf:"trace_every" json:"trace_every" yaml:"trace_every"`
}

type GeometryConfig struct {
	Lengths     []float64 `koanf:"lengths" json:"lengths" yaml:"lengths"`
	Width       float64   `koanf:"width" json:"width" yaml:"width"`
	Height      float64   `koanf:"height" json:"height" yaml:"height"`
	PlateAreas  []float64 `koanf:"plate_areas" json:"plate_areas" yaml:"plate_areas"`
	CementAreas []float64 `koanf:"cement_areas" json:"cement_areas" yaml:"cement_areas"`
}

type PropertiesConfig struct {
	HInt        float64 `koanf:"h_int" json:"h_int" yaml:"h_int"`
	HExt        float64 `koanf:"h_ext" json:"h_ext" yaml:"h_ext"`
	KPlate      float64 `koanf:"k_plate" json:"k_plate" yaml:"k_plate"`
	KAsphalt    float64 `koanf:"k_asphalt" json:"k_asphalt" yaml:"k_asphalt"`
	KCement     float64 `koanf:"k_cement" json:"k_cement" yaml:"k_cement"`
	KInsulation float64 `koanf:"k_insulation" json:"k_insulation" yaml:"k_insulation"`
	CpAir       float64 `koanf:"cp_air" json:"cp_air" yaml:"cp_air"`
	RhoAir      float64 `koanf:"rho_air" json:"rho_air" yaml:"rho_air"`
}

// LayersConfig holds layer thicknesses in m.
type LayersConfig struct {
	Plate      float64 `koanf:"plate" json:"plate" yaml:"plate"`
	Asphalt    float64 `koanf:"asphalt" json:"asphalt" yaml:"asphalt"`
	Cement     float64 `koanf:"cement" json:"cement" yaml:"cement"`
	Insulation float64 `koanf:"insulation" json:"insulation" yaml:"insulation"`
}

type HarmonicConfig struct {
	Mean      float64 `koanf:"mean" json:"mean" yaml:"mean"`
	Amplitude float64 `koanf:"amplitude" json:"amplitude" yaml:"amplitude"`
	Period    float64 `koanf:"period" json:"period" yaml:"period"`
	Phase     float64 `koanf:"phase" json:"phase" yaml:"phase"`
}

type HeatersConfig struct {
	// Powers in W, one per zone; a single value applies to every zone.
	Powers    []float64     `koanf:"powers" json:"powers" yaml:"powers"`
	Threshold float64       `koanf:"threshold" json:"threshold" yaml:"threshold"`
	Ceiling   float64       `koanf:"ceiling" json:"ceiling" yaml:"ceiling"`
	Cooldown  time.Duration `koanf:"cooldown" json:"cooldown" yaml:"cooldown"`
}

type OutputConfig struct {
	CSV     string `koanf:"csv" json:"csv" yaml:"csv"`
	Summary string `koanf:"summary" json:"summary" yaml:"summary"`
	Format  string `koanf:"format" json:"format" yaml:"format"` // "json" | "yaml"
}

type ControllersConfig struct {
	HTTP   HTTPConfig   `koanf:"http" json:"http" yaml:"http"`
	MQTT   MQTTConfig   `koanf:"mqtt" json:"mqtt" yaml:"mqtt"`
	Modbus ModbusConfig `koanf:"modbus" json:"modbus" yaml:"modbus"`
	Kafka  KafkaConfig  `koanf:"kafka" json:"kafka" yaml:"kafka"`
}

type HTTPConfig struct {
	Enabled bool   `koanf:"enabled" json:"enabled" yaml:"enabled"`
	Addr    string `koanf:"addr" json:"addr" yaml:"addr"`
}

type MQTTConfig struct {
	Enabled       bool          `koanf:"enabled" json:"enabled" yaml:"enabled"`
	BrokerURL     string        `koanf:"broker_url" json:"broker_url" yaml:"broker_url"`
	ClientID      string        `koanf:"client_id" json:"client_id" yaml:"client_id"`
	BaseTopic     string        `koanf:"base_topic" json:"base_topic" yaml:"base_topic"`
	QoS           byte          `koanf:"qos" json:"qos" yaml:"qos"`
	RetainSummary bool          `koanf:"retain_summary" json:"retain_summary" yaml:"retain_summary"`
	StepInterval  time.Duration `koanf:"step_interval" json:"step_interval" yaml:"step_interval"`
	Username      string        `koanf:"username" json:"username" yaml:"username"`
	Password      string        `koanf:"password" json:"password" yaml:"password"`
}

type ModbusConfig struct {
	Enabled bool   `koanf:"enabled" json:"enabled" yaml:"enabled"`
	Addr    string `koanf:"addr" json:"addr" yaml:"addr"`
	UnitID  byte   `koanf:"unit_id" json:"unit_id" yaml:"unit_id"`
}

type KafkaConfig struct {
	Enabled   bool     `koanf:"enabled" json:"enabled" yaml:"enabled"`
	Brokers   []string `koanf:"brokers" json:"brokers" yaml:"brokers"`
	Topic     string   `koanf:"topic" json:"topic" yaml:"topic"`
	BatchSize int      `koanf:"batch_size" json:"batch_size" yaml:"batch_size"`
	Acks      int      `koanf:"acks" json:"acks" yaml:"acks"`
}

// Default is a six-zone enclosure of 2.4 m bays under a cold winter day.
func Default() Config {
	return Config{
		Simulation: SimulationConfig{
			TimeStep:           0.1,
			Duration:           48,
			InitialTemperature: 10,
		},
		Geometry: GeometryConfig{
			Lengths: []float64{2.4, 2.4, 2.4, 2.4, 2.4, 2.4},
			Width:   2.4,
			Height:  2.6,
		},
		Properties: PropertiesConfig{
			HInt:        8,
			HExt:        25,
			KPlate:      50,
			KAsphalt:    0.7,
			KCement:     1.4,
			KInsulation: 0.035,
			CpAir:       1005,
			RhoAir:      1.2,
		},
		Layers: LayersConfig{
			Plate:      0.002,
			Asphalt:    0.004,
			Cement:     0.15,
			Insulation: 0.05,
		},
		ExteriorTemperature: HarmonicConfig{Mean: -2, Amplitude: 6, Period: 24, Phase: 15},
		GroundTemperature:   HarmonicConfig{Mean: 6, Amplitude: 1.5, Period: 24, Phase: 18},
		Heaters: HeatersConfig{
			Powers:    []float64{1500},
			Threshold: -1,
			Ceiling:   38.75,
			Cooldown:  5 * time.Minute,
		},
		Output: OutputConfig{Format: "json"},
		Controllers: ControllersConfig{
			HTTP:   HTTPConfig{Enabled: true, Addr: ":8080"},
			MQTT:   MQTTConfig{RetainSummary: true},
			Modbus: ModbusConfig{Addr: "127.0.0.1:1502", UnitID: 1},
			Kafka:  KafkaConfig{Topic: "thermozone.steps", BatchSize: 100, Acks: 1},
		},
	}
}

const (
	defaultEdgeGap  = 0.004 // kg/s, front and back gaps
	defaultInnerGap = 0.002
	defaultFlowOn   = 0.03
	defaultFlowOff  = 0.01
)

// sections whose keys are free-form names checked against the topology.
var mapSections = []string{"infiltration", "flow_heater_on", "flow_heater_off"}

// LoadConfig merges, in order: built-in defaults, the config file (.yaml,
// .yml or .json, skipped when missing) and THERMOZONE_* environment
// variables.
func LoadConfig(path string) (Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}
	known := k.Keys()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			parser, err := parserFor(path)
			if err != nil {
				return Config{}, err
			}
			if err := k.Load(file.Provider(path), parser); err != nil {
				return Config{}, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: envTransform,
	}), nil); err != nil {
		return Config{}, fmt.Errorf("load env: %w", err)
	}

	if err := checkKeys(k.Keys(), known); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := applyDefaults(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func parserFor(path string) (koanf.Parser, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return yaml.Parser(), nil
	case ".json":
		return json.Parser(), nil
	default:
		return nil, fmt.Errorf("unsupported config extension %q", ext)
	}
}

func envTransform(k, v string) (string, any) {
	key := envKeyTransform(strings.TrimPrefix(k, EnvPrefix))
	if strings.Contains(v, ",") {
		parts := strings.Split(v, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return key, parts
	}
	return key, v
}

// sections addressed as <section>.<group>.<key>.
var nestedSections = []string{"controllers"}

// sections addressed as <section>.<key>, longest names first.
var flatSections = []string{
	"exterior_temperature",
	"ground_temperature",
	"flow_heater_off",
	"flow_heater_on",
	"infiltration",
	"simulation",
	"properties",
	"geometry",
	"heaters",
	"layers",
	"output",
}

// envKeyTransform maps an unprefixed variable name to a koanf key, e.g.
// CONTROLLERS_MQTT_STEP_INTERVAL to controllers.mqtt.step_interval.
func envKeyTransform(k string) string {
	k = strings.ToLower(strings.TrimSpace(k))
	if k == "" {
		return ""
	}
	for _, sec := range nestedSections {
		if strings.HasPrefix(k, sec+"_") {
			parts := strings.SplitN(k, "_", 3)
			if len(parts) < 3 {
				return k
			}
			return parts[0] + "." + parts[1] + "." + parts[2]
		}
	}
	for _, sec := range flatSections {
		if strings.HasPrefix(k, sec+"_") {
			return sec + "." + strings.TrimPrefix(k, sec+"_")
		}
	}
	return k
}

// checkKeys rejects keys that are neither known nor inside a map section.
// Names inside map sections are checked later against the topology.
func checkKeys(keys, known []string) error {
	set := make(map[string]bool, len(known))
	for _, k := range known {
		set[k] = true
	}
	for _, k := range keys {
		if set[k] || inMapSection(k) {
			continue
		}
		return fmt.Errorf("%q%s: %w", k, suggest(k, known), ErrUnknownKey)
	}
	return nil
}

func inMapSection(key string) bool {
	for _, sec := range mapSections {
		if key == sec || strings.HasPrefix(key, sec+".") {
			return true
		}
	}
	return false
}

// suggest returns a " (did you mean ...)" hint for the closest candidate,
// or "" when nothing is close enough.
func suggest(name string, candidates []string) string {
	best, bestDist := "", -1
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(name, c)
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	if bestDist < 0 || bestDist > max(2, len(name)/3) {
		return ""
	}
	return fmt.Sprintf(" (did you mean %q?)", best)
}

func applyDefaults(cfg *Config) error {
	if cfg.Output.Format == "" {
		cfg.Output.Format = "json"
	}
	if cfg.Controllers.Modbus.UnitID == 0 {
		cfg.Controllers.Modbus.UnitID = 1
	}
	if cfg.Simulation.Debug && cfg.Simulation.TraceEvery == 0 {
		cfg.Simulation.TraceEvery = 1
	}

	topo, err := enclosure.LinearChain(len(cfg.Geometry.Lengths))
	if err != nil {
		return fmt.Errorf("geometry.lengths: %w", err)
	}
	gaps := topo.Gaps()
	keys := topo.CoefficientKeys()

	cfg.Infiltration, err = fillNames("infiltration", cfg.Infiltration, gaps, func(name string) float64 {
		if name == enclosure.FrontGap || name == enclosure.BackGap {
			return defaultEdgeGap
		}
		return defaultInnerGap
	})
	if err != nil {
		return err
	}
	cfg.FlowHeaterOn, err = fillNames("flow_heater_on", cfg.FlowHeaterOn, keys, func(string) float64 { return defaultFlowOn })
	if err != nil {
		return err
	}
	cfg.FlowHeaterOff, err = fillNames("flow_heater_off", cfg.FlowHeaterOff, keys, func(string) float64 { return defaultFlowOff })
	return err
}

// fillNames rejects names outside want and fills the missing ones.
func fillNames(section string, got map[string]float64, want []string, def func(string) float64) (map[string]float64, error) {
	allowed := make(map[string]bool, len(want))
	for _, w := range want {
		allowed[w] = true
	}
	names := make([]string, 0, len(got))
	for name := range got {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !allowed[name] {
			return nil, fmt.Errorf("%s.%s%s: %w", section, name, suggest(name, want), ErrUnknownKey)
		}
	}

	out := make(map[string]float64, len(want))
	for _, w := range want {
		if v, ok := got[w]; ok {
			out[w] = v
		} else {
			out[w] = def(w)
		}
	}
	return out, nil
}

// Params resolves the configuration into simulator inputs. Areas and
// capacitances not given explicitly are derived from the geometry.
func (c Config) Params() (enclosure.Params, error) {
	n := len(c.Geometry.Lengths)
	geo := enclosure.Geometry{
		Lengths:         c.Geometry.Lengths,
		Width:           c.Geometry.Width,
		Height:          c.Geometry.Height,
		AirDensity:      c.Properties.RhoAir,
		AirSpecificHeat: c.Properties.CpAir,
	}
	if err := geo.Validate(); err != nil {
		return enclosure.Params{}, fmt.Errorf("geometry: %w", err)
	}

	plates := orDefault(c.Geometry.PlateAreas, geo.PlateAreas)
	cements := orDefault(c.Geometry.CementAreas, geo.CementAreas)
	resistances, err := enclosure.BuildResistances(enclosure.ResistanceParams{
		InteriorConvection: c.Properties.HInt,
		ExteriorConvection: c.Properties.HExt,
		Plate:              enclosure.Layer{Thickness: c.Layers.Plate, Conductivity: c.Properties.KPlate},
		Asphalt:            enclosure.Layer{Thickness: c.Layers.Asphalt, Conductivity: c.Properties.KAsphalt},
		Cement:             enclosure.Layer{Thickness: c.Layers.Cement, Conductivity: c.Properties.KCement},
		Insulation:         enclosure.Layer{Thickness: c.Layers.Insulation, Conductivity: c.Properties.KInsulation},
	}, plates, cements)
	if err != nil {
		return enclosure.Params{}, err
	}

	caps := c.Capacitances
	if len(caps) == 0 {
		if caps, err = geo.Capacitances(); err != nil {
			return enclosure.Params{}, err
		}
	}

	powers := c.Heaters.Powers
	if len(powers) == 1 && n > 1 {
		powers = make([]float64, n)
		for i := range powers {
			powers[i] = c.Heaters.Powers[0]
		}
	}

	topo, err := enclosure.LinearChain(n)
	if err != nil {
		return enclosure.Params{}, err
	}

	return enclosure.Params{
		Capacitances: caps,
		HeaterPowers: powers,
		Resistances:  resistances,
		Boundary: enclosure.BoundaryConditions{
			Exterior: c.ExteriorTemperature.harmonic(),
			Ground:   c.GroundTemperature.harmonic(),
		},
		Heater: enclosure.HeaterParams{
			ExteriorThreshold: c.Heaters.Threshold,
			EnclosureCeiling:  c.Heaters.Ceiling,
			Cooldown:          c.Heaters.Cooldown.Hours(),
		},
		Coupling: enclosure.CouplingParams{
			Gaps:         c.Infiltration,
			SpecificHeat: c.Properties.CpAir,
			HeaterOn:     enclosure.CouplingSet(c.FlowHeaterOn),
			HeaterOff:    enclosure.CouplingSet(c.FlowHeaterOff),
		},
		Topology:           topo,
		TimeStep:           c.Simulation.TimeStep,
		Duration:           c.Simulation.Duration,
		InitialTemperature: c.Simulation.InitialTemperature,
		TraceEvery:         c.Simulation.TraceEvery,
	}, nil
}

func (h HarmonicConfig) harmonic() enclosure.Harmonic {
	return enclosure.Harmonic{Mean: h.Mean, Amplitude: h.Amplitude, Period: h.Period, Phase: h.Phase}
}

func orDefault(v []float64, derive func() []float64) []float64 {
	if len(v) > 0 {
		return v
	}
	return derive()
}

// YAML renders the effective configuration with secrets masked.
func (c Config) YAML() ([]byte, error) {
	if c.Controllers.MQTT.Password != "" {
		c.Controllers.MQTT.Password = "********"
	}
	return yamlv3.Marshal(c)
}
