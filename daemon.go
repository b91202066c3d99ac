package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ericogr/plura-monitor/pkg/acquire"
	"github.com/ericogr/plura-monitor/pkg/config"
	"github.com/ericogr/plura-monitor/pkg/output"
	"github.com/ericogr/plura-monitor/pkg/output/console"
	"github.com/ericogr/plura-monitor/pkg/output/influx"
	"github.com/ericogr/plura-monitor/pkg/output/mqtt"
	"github.com/ericogr/plura-monitor/pkg/server"
	"github.com/ericogr/plura-monitor/pkg/sht4x"
	"github.com/ericogr/plura-monitor/pkg/store"
)

// NewRunCommand runs the sampling loop with its outputs and HTTP server
// until interrupted.
func NewRunCommand() *cobra.Command {
	var flags *config.Flags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Sample sensors continuously and publish the latest readings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}
			logrus.WithFields(logrus.Fields{
				"version": Version,
				"commit":  GitCommit,
			}).Info("plura-monitor starting")
			return run(cfg)
		},
	}
	flags = config.BindFlags(cmd.Flags())
	return cmd
}

func run(cfg config.Config) error {
	p, err := newPipeline(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := p.Close(); err != nil {
			logrus.WithError(err).Warn("failed to close sensors")
		}
	}()

	if need := computeSensorInterval(cfg) + cfg.SHT4x.ConversionDelayMs; cfg.SampleIntervalMs < need {
		logrus.WithFields(logrus.Fields{
			"intervalMs": cfg.SampleIntervalMs,
			"cycleMs":    need,
		}).Warn("sampling interval is shorter than one cycle, cycles will run back to back")
	}

	entries, err := initOutputs(&cfg, cfg.SampleIntervalMs, outputChannels(p))
	if err != nil {
		return err
	}
	runner := output.NewRunner(p.store, entries)
	defer func() {
		if err := runner.Close(); err != nil {
			logrus.WithError(err).Warn("failed to close outputs")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		runner.Run(ctx)
	}()

	if cfg.HTTP.Listen != "" {
		srv := server.New(server.Options{
			Store:   p.store,
			Hub:     p.hub,
			Legacy:  legacyMapping(p),
			Health:  healthReporters(p),
			Scheme:  p.scheme.Kind().String(),
			Version: Version,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(ctx, cfg.HTTP.Listen); err != nil {
				logrus.WithError(err).Error("http server failed")
				stop()
			}
		}()
	}

	err = p.loop.Run(ctx)
	stop()
	wg.Wait()

	var fatal *acquire.FatalError
	if errors.As(err, &fatal) {
		// analog faults mean broken wiring or hardware; exit so the
		// supervisor restarts the process.
		_ = runner.Close()
		_ = p.Close()
		logrus.WithError(fatal.Err).Fatal("analog unit failed")
	}
	logrus.Info("plura-monitor stopped")
	return err
}

// computeSensorInterval returns the time in ms the ADC needs to convert
// every enabled channel once.
func computeSensorInterval(cfg config.Config) int {
	perChannel := func(rate int) int {
		if rate <= 0 {
			rate = 128
		}
		return int(math.Ceil(1000.0/float64(rate))) + 2
	}
	total := 0
	for _, ch := range cfg.Channels {
		if !ch.Enabled {
			continue
		}
		rate := ch.SampleRate
		if rate == 0 {
			rate = cfg.ADC.SampleRate
		}
		total += perChannel(rate)
	}
	if total == 0 {
		total = perChannel(cfg.ADC.SampleRate)
	}
	return total
}

// initOutputs opens every configured output. Outputs without an interval
// publish every defaultIntervalMs; the interval is written back to cfg.
func initOutputs(cfg *config.Config, defaultIntervalMs int, channels []output.Channel) ([]output.Entry, error) {
	entries := make([]output.Entry, 0, len(cfg.Outputs))
	for i := range cfg.Outputs {
		o := &cfg.Outputs[i]
		if o.IntervalMs <= 0 {
			o.IntervalMs = defaultIntervalMs
		}
		var (
			out output.Output
			err error
		)
		switch strings.ToLower(o.Type) {
		case "console":
			out = console.NewConsole()
		case "mqtt":
			mc := config.MQTTConfig{}
			if o.MQTT != nil {
				mc = *o.MQTT
			}
			out, err = mqtt.NewMQTT(mc, channels)
		case "influx":
			ic := config.InfluxConfig{}
			if o.Influx != nil {
				ic = *o.Influx
			}
			out, err = influx.NewInflux(ic)
		default:
			err = fmt.Errorf("unknown output type %q", o.Type)
		}
		if err != nil {
			for _, e := range entries {
				_ = e.Output.Close()
			}
			return nil, fmt.Errorf("output %d (%s): %w", i, o.Type, err)
		}
		logrus.WithFields(logrus.Fields{"type": o.Type, "intervalMs": o.IntervalMs}).Info("output enabled")
		entries = append(entries, output.Entry{Name: o.Type, Output: out, IntervalMs: o.IntervalMs})
	}
	return entries, nil
}

func outputChannels(p *pipeline) []output.Channel {
	var out []output.Channel
	for _, ch := range p.channels {
		out = append(out, output.Channel{ID: store.ID(ch.Name), Unit: ch.Unit})
	}
	if p.digital != nil {
		out = append(out,
			output.Channel{ID: acquire.TemperatureID(p.cfg.SHT4x.Name), Unit: acquire.UnitCelsius},
			output.Channel{ID: acquire.HumidityID(p.cfg.SHT4x.Name), Unit: acquire.UnitPercent},
		)
	}
	return out
}

// legacyMapping feeds /api/voltage: the first calibrated channel is the
// battery, the first raw one the fuel cell thermistor.
func legacyMapping(p *pipeline) server.Legacy {
	var l server.Legacy
	for _, ch := range p.channels {
		id := store.ID(ch.Name)
		if ch.Calibrate && l.Voltage == "" {
			l.Voltage, l.RawVBat = id, id
		}
		if !ch.Calibrate && l.RawFC == "" {
			l.RawFC = id
		}
	}
	if p.digital != nil {
		l.Temperature = acquire.TemperatureID(p.cfg.SHT4x.Name)
		l.Humidity = acquire.HumidityID(p.cfg.SHT4x.Name)
	}
	return l
}

func healthReporters(p *pipeline) map[string]server.HealthReporter {
	h := map[string]server.HealthReporter{}
	if p.digital != nil {
		h[p.cfg.SHT4x.Name] = p.digital
	}
	return h
}

var _ server.HealthReporter = (*sht4x.Client)(nil)
