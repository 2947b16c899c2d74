package kafkactrl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/Agrid-Dev/thermozone/internal/enclosure"
	"github.com/Agrid-Dev/thermozone/internal/ports"
)

const (
	headerType  = "type"
	typeStep    = "step"
	typeSummary = "summary"
)

type Config struct {
	RunID   string
	Brokers []string
	Topic   string
	// BatchSize is the number of step records per WriteMessages call.
	BatchSize int
	Acks      int
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher sends every recorded step of a run, then its summary, to a
// Kafka topic. All messages are keyed by run id so they land on one
// partition in order.
type Publisher struct {
	svc    ports.TrajectoryService
	cfg    Config
	writer messageWriter
	log    *logrus.Entry
}

func New(svc ports.TrajectoryService, cfg Config) (*Publisher, error) {
	cfg, err := withDefaults(cfg)
	if err != nil {
		return nil, err
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequiredAcks(cfg.Acks),
		AllowAutoTopicCreation: true,
	}
	return newWithWriter(svc, cfg, w), nil
}

func newWithWriter(svc ports.TrajectoryService, cfg Config, w messageWriter) *Publisher {
	return &Publisher{
		svc:    svc,
		cfg:    cfg,
		writer: w,
		log:    logrus.WithFields(logrus.Fields{"domain": "kafka", "topic": cfg.Topic}),
	}
}

func withDefaults(cfg Config) (Config, error) {
	if cfg.RunID == "" {
		return cfg, errors.New("kafka: RunID is required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		cfg.Topic = "thermozone.steps"
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Acks < -1 || cfg.Acks > 1 {
		return cfg, fmt.Errorf("kafka: acks %d not in -1..1", cfg.Acks)
	}
	return cfg, nil
}

// Run publishes the trajectory once and closes the writer.
func (p *Publisher) Run(ctx context.Context) error {
	defer func() {
		if err := p.writer.Close(); err != nil {
			p.log.WithError(err).Warn("close writer")
		}
	}()

	n := p.svc.Len()
	batch := make([]kafka.Message, 0, p.cfg.BatchSize)
	for i := 0; i < n; i++ {
		s, err := p.svc.Step(i)
		if err != nil {
			return err
		}
		msg, err := p.message(typeStep, toRecord(p.cfg.RunID, s))
		if err != nil {
			return err
		}
		batch = append(batch, msg)
		if len(batch) == p.cfg.BatchSize {
			if err := p.write(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := p.write(ctx, batch); err != nil {
			return err
		}
	}

	summary, err := p.message(typeSummary, p.svc.Summary())
	if err != nil {
		return err
	}
	if err := p.write(ctx, []kafka.Message{summary}); err != nil {
		return err
	}
	p.log.WithField("steps", n).Info("trajectory published")
	return nil
}

func (p *Publisher) write(ctx context.Context, msgs []kafka.Message) error {
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka write %d messages: %w", len(msgs), err)
	}
	return nil
}

func (p *Publisher) message(kind string, v any) (kafka.Message, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("marshal %s: %w", kind, err)
	}
	return kafka.Message{
		Key:     []byte(p.cfg.RunID),
		Value:   b,
		Headers: []kafka.Header{{Key: headerType, Value: []byte(kind)}},
	}, nil
}

type stepRecord struct {
	RunID        string    `json:"runId"`
	Step         int       `json:"step"`
	TimeHours    float64   `json:"timeH"`
	Exterior     float64   `json:"tExt"`
	Ground       float64   `json:"tSol"`
	Temperatures []float64 `json:"temperatures"`
	HeatersOn    []bool    `json:"heatersOn"`
	HeaterPower  float64   `json:"heaterPowerW"`
}

func toRecord(runID string, s enclosure.Snapshot) stepRecord {
	power := 0.0
	for _, f := range s.Flows {
		power += f.Heater
	}
	return stepRecord{
		RunID:        runID,
		Step:         s.Step,
		TimeHours:    s.Time,
		Exterior:     s.Exterior,
		Ground:       s.Ground,
		Temperatures: s.Temperatures,
		HeatersOn:    s.HeatersOn,
		HeaterPower:  power,
	}
}
