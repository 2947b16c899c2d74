package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/jessevdk/go-flags"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Agrid-Dev/thermozone/cmd/app"
	httpctrl "github.com/Agrid-Dev/thermozone/internal/controllers/http"
	kafkactrl "github.com/Agrid-Dev/thermozone/internal/controllers/kafka"
	modbusctrl "github.com/Agrid-Dev/thermozone/internal/controllers/modbus"
	mqttctrl "github.com/Agrid-Dev/thermozone/internal/controllers/mqtt"
	"github.com/Agrid-Dev/thermozone/internal/enclosure"
	"github.com/Agrid-Dev/thermozone/internal/export"
	"github.com/Agrid-Dev/thermozone/internal/run"
)

type Options struct {
	Config     flags.Filename `long:"config" short:"c" description:"path to config file (.yaml/.yml/.json)" default:"config.yaml"`
	Debug      bool           `long:"debug" short:"d" description:"log the per-zone flow breakdown of every step"`
	CSV        string         `long:"csv" description:"write the trajectory as CSV to this path, - for stdout"`
	Summary    string         `long:"summary" description:"write the run summary to this path, - for stdout"`
	Format     string         `long:"format" short:"f" description:"summary format" choice:"json" choice:"yaml" choice:"yml"`
	Serve      bool           `long:"serve" description:"serve the run through the enabled controllers until interrupted"`
	DumpConfig bool           `long:"dump-config" description:"print the effective configuration and exit"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	if _, err := parser.Parse(); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			fmt.Fprintln(os.Stdout, err)
			return
		}
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logrus.SetOutput(os.Stderr)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := execute(ctx, opts, os.Stdout); err != nil {
		logrus.WithError(err).Error("thermozone failed")
		cancel()
		os.Exit(1)
	}
}

// applyOptions lets command line flags win over the configuration.
func applyOptions(cfg *app.Config, opts Options) {
	if opts.Debug {
		cfg.Simulation.Debug = true
		if cfg.Simulation.TraceEvery == 0 {
			cfg.Simulation.TraceEvery = 1
		}
	}
	if opts.CSV != "" {
		cfg.Output.CSV = opts.CSV
	}
	if opts.Summary != "" {
		cfg.Output.Summary = opts.Summary
	}
	if opts.Format != "" {
		cfg.Output.Format = opts.Format
	}
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
}

func execute(ctx context.Context, opts Options, stdout io.Writer) error {
	cfg, err := app.LoadConfig(string(opts.Config))
	if err != nil {
		return err
	}
	applyOptions(&cfg, opts)

	if opts.DumpConfig {
		out, err := cfg.YAML()
		if err != nil {
			return err
		}
		_, err = stdout.Write(out)
		return err
	}

	if cfg.Simulation.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	log := logrus.WithField("run_id", cfg.RunID)

	format, err := export.ParseFormat(cfg.Output.Format)
	if err != nil {
		return err
	}
	params, err := cfg.Params()
	if err != nil {
		return err
	}
	sim, err := enclosure.New(params, enclosure.WithLogger(log.WithField("domain", "simulation")))
	if err != nil {
		return err
	}

	r := run.New(cfg.RunID, params.TimeStep)
	res, simErr := sim.Run(ctx)
	r.Complete(res, simErr)
	if errors.Is(simErr, context.Canceled) {
		log.WithField("steps", r.Len()).Warn("simulation interrupted")
		simErr = nil
	}

	// a partial trajectory is still written out
	if err := writeOutputs(cfg.Output, r, format, stdout); err != nil {
		return err
	}

	if cfg.Controllers.Kafka.Enabled {
		if ctx.Err() != nil {
			log.Warn("interrupted, kafka publication skipped")
		} else if err := publishKafka(ctx, r, cfg); err != nil {
			return err
		}
	}

	if opts.Serve && ctx.Err() == nil {
		if err := serve(ctx, r, cfg, log); err != nil {
			return err
		}
	}
	return simErr
}

func writeOutputs(out app.OutputConfig, r *run.Run, format export.Format, stdout io.Writer) error {
	if out.CSV != "" {
		err := writeTo(out.CSV, stdout, func(w io.Writer) error {
			return export.WriteCSV(w, r.Result())
		})
		if err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
	}
	if out.Summary != "" {
		err := writeTo(out.Summary, stdout, func(w io.Writer) error {
			return export.WriteSummary(w, r.Summary(), format)
		})
		if err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	return nil
}

// writeTo writes to path, or to stdout when path is "-".
func writeTo(path string, stdout io.Writer, write func(io.Writer) error) error {
	if path == "-" {
		return write(stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func publishKafka(ctx context.Context, r *run.Run, cfg app.Config) error {
	kc := cfg.Controllers.Kafka
	pub, err := kafkactrl.New(r, kafkactrl.Config{
		RunID:     cfg.RunID,
		Brokers:   kc.Brokers,
		Topic:     kc.Topic,
		BatchSize: kc.BatchSize,
		Acks:      kc.Acks,
	})
	if err != nil {
		return err
	}
	return pub.Run(ctx)
}

type runner interface {
	Run(ctx context.Context) error
}

// serve exposes the finished run until ctx is cancelled.
func serve(ctx context.Context, r *run.Run, cfg app.Config, log *logrus.Entry) error {
	ctrl := cfg.Controllers
	var runners []runner

	if ctrl.HTTP.Enabled {
		runners = append(runners, httpctrl.New(r, ctrl.HTTP.Addr))
		log.WithField("addr", ctrl.HTTP.Addr).Info("http controller enabled")
	}
	if ctrl.MQTT.Enabled {
		m, err := mqttctrl.New(r, mqttctrl.Config{
			RunID:         cfg.RunID,
			BrokerURL:     ctrl.MQTT.BrokerURL,
			ClientID:      ctrl.MQTT.ClientID,
			BaseTopic:     ctrl.MQTT.BaseTopic,
			QoS:           ctrl.MQTT.QoS,
			RetainSummary: ctrl.MQTT.RetainSummary,
			StepInterval:  ctrl.MQTT.StepInterval,
			Username:      ctrl.MQTT.Username,
			Password:      ctrl.MQTT.Password,
		})
		if err != nil {
			return err
		}
		runners = append(runners, m)
	}
	if ctrl.Modbus.Enabled {
		m, err := modbusctrl.New(r, modbusctrl.Config{Addr: ctrl.Modbus.Addr, UnitID: ctrl.Modbus.UnitID})
		if err != nil {
			return err
		}
		runners = append(runners, m)
		log.WithField("addr", ctrl.Modbus.Addr).Info("modbus controller enabled")
	}
	if len(runners) == 0 {
		return errors.New("serve: no controller enabled")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, rn := range runners {
		g.Go(func() error {
			err := rn.Run(gctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	return g.Wait()
}
