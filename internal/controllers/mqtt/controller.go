package mqttctrl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"github.com/Agrid-Dev/thermozone/internal/enclosure"
	"github.com/Agrid-Dev/thermozone/internal/ports"
)

type Config struct {
	// Identity
	RunID string

	// MQTT connection
	BrokerURL string
	ClientID  string

	// Topics
	BaseTopic string

	// Behavior
	QoS           byte
	RetainSummary bool
	// StepInterval paces step publication; 0 publishes back to back.
	StepInterval time.Duration

	Username string
	Password string
}

type Controller struct {
	svc ports.TrajectoryService
	cfg Config
	log *logrus.Entry

	client mqtt.Client
	replay chan struct{}
}

func New(svc ports.TrajectoryService, cfg Config) (*Controller, error) {
	if cfg.BrokerURL == "" {
		cfg.BrokerURL = "tcp://localhost:1883"
	}
	if cfg.RunID == "" {
		return nil, errors.New("mqtt: RunID is required")
	}
	if cfg.BaseTopic == "" {
		cfg.BaseTopic = "thermozone/" + cfg.RunID
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "thermozone-" + cfg.RunID
	}
	if cfg.StepInterval < 0 {
		return nil, errors.New("mqtt: StepInterval must not be negative")
	}
	if cfg.QoS > 1 {
		return nil, errors.New("mqtt: QoS must be 0 or 1")
	}
	return &Controller{
		svc:    svc,
		cfg:    cfg,
		log:    logrus.WithField("domain", "mqtt"),
		replay: make(chan struct{}, 1),
	}, nil
}

func (c *Controller) Run(ctx context.Context) error {
	opts := mqtt.NewClientOptions().
		AddBroker(c.cfg.BrokerURL).
		SetClientID(c.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(2 * time.Second)

	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}

	// Subscribe when connected/reconnected.
	opts.OnConnect = func(cl mqtt.Client) {
		token := cl.Subscribe(c.topic("cmd/+"), c.cfg.QoS, c.onMessage)
		token.Wait()
		if err := token.Error(); err != nil {
			c.log.WithError(err).Warn("subscribe failed")
		}
	}

	c.client = mqtt.NewClient(opts)
	tok := c.client.Connect()
	tok.Wait()
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	c.log.WithField("broker", c.cfg.BrokerURL).Info("connected")

	if err := c.publishAll(ctx); err != nil {
		c.client.Disconnect(250)
		return err
	}

	for {
		select {
		case <-ctx.Done():
			c.client.Disconnect(250)
			return ctx.Err()
		case <-c.replay:
			if err := c.publishAll(ctx); err != nil {
				c.client.Disconnect(250)
				return err
			}
		}
	}
}

// publishAll sends the retained summary then every recorded step in order.
func (c *Controller) publishAll(ctx context.Context) error {
	c.publishSummary()

	var tick <-chan time.Time
	if c.cfg.StepInterval > 0 {
		ticker := time.NewTicker(c.cfg.StepInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	n := c.svc.Len()
	for i := 0; i < n; i++ {
		if err := c.publishStep(i); err != nil {
			return err
		}
		if tick == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
		}
	}
	c.log.WithField("steps", n).Debug("trajectory published")
	return nil
}

func (c *Controller) publishSummary() {
	b, _ := json.Marshal(c.svc.Summary())
	c.client.Publish(c.topic("summary"), c.cfg.QoS, c.cfg.RetainSummary, b)
}

func (c *Controller) publishStep(i int) error {
	s, err := c.svc.Step(i)
	if err != nil {
		return err
	}
	b, _ := json.Marshal(toDTO(c.cfg.RunID, s))
	c.client.Publish(c.topic("steps"), c.cfg.QoS, false, b)
	return nil
}

type stepDTO struct {
	RunID        string    `json:"run_id"`
	Step         int       `json:"step"`
	Time         float64   `json:"time_h"`
	Exterior     float64   `json:"t_ext"`
	Ground       float64   `json:"t_sol"`
	Temperatures []float64 `json:"temperatures"`
	Heaters      []string  `json:"heaters"`
	AnyHeaterOn  bool      `json:"any_heater_on"`
}

func toDTO(runID string, s enclosure.Snapshot) stepDTO {
	heaters := make([]string, len(s.HeatersOn))
	for i, on := range s.HeatersOn {
		if on {
			heaters[i] = enclosure.HeaterOn.String()
		} else {
			heaters[i] = enclosure.HeaterOff.String()
		}
	}
	return stepDTO{
		RunID:        runID,
		Step:         s.Step,
		Time:         s.Time,
		Exterior:     s.Exterior,
		Ground:       s.Ground,
		Temperatures: s.Temperatures,
		Heaters:      heaters,
		AnyHeaterOn:  s.AnyHeaterOn,
	}
}

// Command payload format: {"value": ...}
type valueReq[T any] struct {
	Value *T `json:"value"`
}

func (c *Controller) onMessage(_ mqtt.Client, msg mqtt.Message) {
	// topic format: <base>/cmd/<command>
	t := msg.Topic()
	prefix := c.topic("cmd/")
	if !strings.HasPrefix(t, prefix) {
		return
	}
	command := strings.TrimPrefix(t, prefix)

	payload := msg.Payload()

	switch command {
	case "replay":
		v, err := decodeValueStrict[bool](payload)
		if err != nil || !v {
			return
		}
		select {
		case c.replay <- struct{}{}:
		default:
			// a replay is already pending
		}

	case "step":
		v, err := decodeValueStrict[int](payload)
		if err != nil {
			return
		}
		if err := c.publishStep(v); err != nil {
			c.log.WithError(err).WithField("step", v).Debug("step request rejected")
		}
	}
}

func (c *Controller) topic(suffix string) string {
	return strings.TrimRight(c.cfg.BaseTopic, "/") + "/" + suffix
}

func decodeValueStrict[T any](b []byte) (T, error) {
	var zero T
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	var req valueReq[T]
	if err := dec.Decode(&req); err != nil {
		return zero, err
	}
	if req.Value == nil {
		return zero, errors.New("missing field 'value'")
	}
	return *req.Value, nil
}
