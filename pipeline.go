package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/ericogr/plura-monitor/pkg/acquire"
	"github.com/ericogr/plura-monitor/pkg/calibration"
	"github.com/ericogr/plura-monitor/pkg/config"
	"github.com/ericogr/plura-monitor/pkg/events"
	"github.com/ericogr/plura-monitor/pkg/sensor"
	"github.com/ericogr/plura-monitor/pkg/sht4x"
	"github.com/ericogr/plura-monitor/pkg/store"
)

// pipeline is everything a sampling loop needs, opened from a config.
type pipeline struct {
	cfg        config.Config
	unit       sensor.Unit
	digital    *sht4x.Client
	calibrator *calibration.Calibrator
	channels   []sensor.Channel
	store      *store.Store
	hub        *events.Hub
	scheme     calibration.Scheme
	loop       *acquire.Loop
}

// loadConfig reads the config file, the env file and the command line
// overrides, in that order.
func loadConfig(cmd *cobra.Command, flags *config.Flags) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if err := config.LoadEnv(&cfg, envFile); err != nil {
		return cfg, err
	}
	if err := flags.Apply(&cfg); err != nil {
		return cfg, err
	}
	if !cmd.Flags().Changed("log-level") && cfg.LogLevel != "" {
		if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
			logrus.SetLevel(level)
		}
	}
	return cfg, nil
}

func openUnit(cfg config.Config) (sensor.Unit, calibration.Source, error) {
	table := sensor.CalibrationTable(cfg)
	if cfg.SensorType == config.SensorTypeSimulation {
		return sensor.NewFake(cfg.ADC.Unit, cfg.ADC.BitWidth, time.Now().UnixNano()),
			calibration.Sources{table, sensor.IdealSource{Unit: cfg.ADC.Unit}}, nil
	}
	ads, err := sensor.NewADS1115(cfg.ADC)
	if err != nil {
		return nil, nil, err
	}
	return ads, calibration.Sources{table, ads}, nil
}

func openDigital(cfg config.Config) (*sht4x.Client, error) {
	if !cfg.SHT4x.Enabled {
		return nil, nil
	}
	if cfg.SensorType == config.SensorTypeSimulation {
		p, err := sht4x.ParsePrecision(cfg.SHT4x.Precision)
		if err != nil {
			return nil, err
		}
		return sht4x.New(sht4x.NewSimulator(time.Now().UnixNano()), sht4x.Options{
			Precision:       p,
			ConversionDelay: time.Duration(cfg.SHT4x.ConversionDelayMs) * time.Millisecond,
			DegradedAfter:   cfg.SHT4x.DegradedAfter,
		}), nil
	}
	return sht4x.Open(cfg.SHT4x)
}

func newPipeline(cfg config.Config) (*pipeline, error) {
	p := &pipeline{cfg: cfg, hub: events.NewHub()}
	ready := false
	defer func() {
		if !ready {
			_ = p.Close()
		}
	}()

	var err error
	p.channels, err = sensor.ChannelsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	var src calibration.Source
	p.unit, src, err = openUnit(cfg)
	if err != nil {
		return nil, fmt.Errorf("open adc: %w", err)
	}

	p.calibrator = calibration.New(cfg.ADC.Unit, cfg.ADC.BitWidth, src)
	if ch, ok := sensor.CalibrationChannel(p.channels); ok {
		p.scheme, err = p.calibrator.Initialize(ch.Input, ch.Attenuation)
		if err != nil {
			return nil, fmt.Errorf("calibration: %w", err)
		}
	}

	p.digital, err = openDigital(cfg)
	if err != nil {
		return nil, fmt.Errorf("open sht4x: %w", err)
	}
	var digital []acquire.Digital
	if p.digital != nil {
		if err := p.digital.SoftReset(); err != nil {
			logrus.WithError(err).Warn("sht4x soft reset failed")
		}
		digital = append(digital, acquire.Digital{Name: cfg.SHT4x.Name, Sensor: p.digital})
	}

	p.store = store.New(acquire.IDs(p.channels, digital)...)
	p.loop = acquire.New(p.store, sensor.NewSampler(p.unit, p.scheme), p.channels, digital, acquire.Options{
		Period: time.Duration(cfg.SampleIntervalMs) * time.Millisecond,
		Hub:    p.hub,
	})

	logrus.WithFields(logrus.Fields{
		"sensorType": cfg.SensorType,
		"channels":   len(p.channels),
		"scheme":     p.scheme.String(),
		"sht4x":      p.digital != nil,
		"intervalMs": cfg.SampleIntervalMs,
	}).Info("sampling pipeline ready")
	ready = true
	return p, nil
}

// Close releases the calibration scheme and the buses.
func (p *pipeline) Close() error {
	if p.calibrator != nil {
		p.calibrator.Teardown()
	}
	var err error
	if p.unit != nil {
		err = multierr.Append(err, p.unit.Close())
	}
	if p.digital != nil {
		err = multierr.Append(err, p.digital.Close())
	}
	return err
}
