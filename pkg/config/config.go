package config

import (
	"fmt"
	"strings"

	"github.com/ericogr/plura-monitor/pkg/calibration"
)

const (
	SensorTypeReal       = "real"
	SensorTypeSimulation = "simulation"
)

type MQTTConfig struct {
	Server            string `json:"server" yaml:"server"`
	Username          string `json:"username" yaml:"username"`
	Password          string `json:"password" yaml:"password"`
	ClientID          string `json:"client_id" yaml:"client_id"`
	StateTopic        string `json:"state_topic" yaml:"state_topic"`
	DiscoveryTopic    string `json:"discovery_topic" yaml:"discovery_topic"`
	DiscoveryName     string `json:"discovery_name" yaml:"discovery_name"`
	DiscoveryUniqueID string `json:"discovery_unique_id" yaml:"discovery_unique_id"`
}

type InfluxConfig struct {
	URL         string `json:"url" yaml:"url"`
	Token       string `json:"token" yaml:"token"`
	Org         string `json:"org" yaml:"org"`
	Bucket      string `json:"bucket" yaml:"bucket"`
	Measurement string `json:"measurement" yaml:"measurement"`
}

type OutputConfig struct {
	Type       string        `json:"type" yaml:"type"`
	IntervalMs int           `json:"interval_ms,omitempty" yaml:"interval_ms,omitempty"`
	MQTT       *MQTTConfig   `json:"mqtt,omitempty" yaml:"mqtt,omitempty"`
	Influx     *InfluxConfig `json:"influx,omitempty" yaml:"influx,omitempty"`
}

type I2CConfig struct {
	Bus     string `json:"bus" yaml:"bus"`
	Address int    `json:"address" yaml:"address"`
}

// CalibrationConfig holds the calibration data recorded for an analog unit.
// Either block may be absent, in which case that scheme is not supported.
type CalibrationConfig struct {
	CurveFitting *calibration.CurveCoefficients `json:"curve_fitting,omitempty" yaml:"curve_fitting,omitempty"`
	LineFitting  *calibration.LineCoefficients  `json:"line_fitting,omitempty" yaml:"line_fitting,omitempty"`
}

type ADCConfig struct {
	Unit        int               `json:"unit" yaml:"unit"`
	Type        string            `json:"type" yaml:"type"`
	I2C         I2CConfig         `json:"i2c" yaml:"i2c"`
	SampleRate  int               `json:"sample_rate" yaml:"sample_rate"`
	BitWidth    int               `json:"bit_width" yaml:"bit_width"`
	Calibration CalibrationConfig `json:"calibration" yaml:"calibration"`
}

type ChannelConfig struct {
	Name          string  `json:"name" yaml:"name"`
	Channel       int     `json:"channel" yaml:"channel"`
	Enabled       bool    `json:"enabled" yaml:"enabled"`
	Unit          string  `json:"unit,omitempty" yaml:"unit,omitempty"`
	AttenuationDB float64 `json:"attenuation_db" yaml:"attenuation_db"`
	Divider       float64 `json:"divider,omitempty" yaml:"divider,omitempty"`
	Calibrate     bool    `json:"calibrate" yaml:"calibrate"`
	SampleRate    int     `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`
}

type SHT4xConfig struct {
	Enabled           bool      `json:"enabled" yaml:"enabled"`
	Type              string    `json:"type" yaml:"type"`
	Name              string    `json:"name" yaml:"name"`
	I2C               I2CConfig `json:"i2c" yaml:"i2c"`
	Precision         string    `json:"precision" yaml:"precision"`
	ConversionDelayMs int       `json:"conversion_delay_ms" yaml:"conversion_delay_ms"`
	DegradedAfter     int       `json:"degraded_after" yaml:"degraded_after"`
}

type HTTPConfig struct {
	Listen string `json:"listen" yaml:"listen"`
}

type Config struct {
	SensorType       string          `json:"sensor_type" yaml:"sensor_type"`
	SampleIntervalMs int             `json:"sample_interval_ms" yaml:"sample_interval_ms"`
	LogLevel         string          `json:"log_level" yaml:"log_level"`
	ADC              ADCConfig       `json:"adc" yaml:"adc"`
	Channels         []ChannelConfig `json:"channels" yaml:"channels"`
	SHT4x            SHT4xConfig     `json:"sht4x" yaml:"sht4x"`
	Outputs          []OutputConfig  `json:"outputs" yaml:"outputs"`
	HTTP             HTTPConfig      `json:"http" yaml:"http"`
}

// DefaultConfig mirrors the reference board: battery voltage behind a 2:1
// divider on a calibrated input, the fuel cell thermistor raw, and an SHT41.
func DefaultConfig() Config {
	return Config{
		SensorType:       SensorTypeReal,
		SampleIntervalMs: 1000,
		LogLevel:         "info",
		ADC: ADCConfig{
			Unit:       2,
			Type:       "ads1115",
			I2C:        I2CConfig{Bus: "1", Address: 0x48},
			SampleRate: 128,
			BitWidth:   15,
		},
		Channels: []ChannelConfig{
			{Name: "v_bat", Channel: 0, Enabled: true, Unit: "mV", AttenuationDB: 12, Divider: 2, Calibrate: true},
			{Name: "fc_temp", Channel: 1, Enabled: true, Unit: "mV", AttenuationDB: 12, Divider: 1},
		},
		SHT4x: SHT4xConfig{
			Enabled:           true,
			Type:              "sht41",
			Name:              "sht41",
			I2C:               I2CConfig{Bus: "1", Address: 0x44},
			Precision:         "high",
			ConversionDelayMs: 15,
			DegradedAfter:     3,
		},
		Outputs: []OutputConfig{{Type: "console", IntervalMs: 1000}},
		HTTP:    HTTPConfig{Listen: ":8080"},
	}
}

// EnabledChannels returns the enabled channels in configuration order.
func (c Config) EnabledChannels() []ChannelConfig {
	out := make([]ChannelConfig, 0, len(c.Channels))
	for _, ch := range c.Channels {
		if ch.Enabled {
			out = append(out, ch)
		}
	}
	return out
}

// ensureDefaults fills fields a partial file leaves empty.
func (c *Config) ensureDefaults() {
	def := DefaultConfig()
	if c.SampleIntervalMs == 0 {
		c.SampleIntervalMs = def.SampleIntervalMs
	}
	if c.ADC.BitWidth == 0 {
		c.ADC.BitWidth = def.ADC.BitWidth
	}
	if c.ADC.SampleRate == 0 {
		c.ADC.SampleRate = def.ADC.SampleRate
	}
	if c.ADC.Type == "" {
		c.ADC.Type = def.ADC.Type
	}
	if c.SHT4x.Name == "" {
		c.SHT4x.Name = def.SHT4x.Name
	}
	if c.SHT4x.Precision == "" {
		c.SHT4x.Precision = def.SHT4x.Precision
	}
	if c.SHT4x.DegradedAfter == 0 {
		c.SHT4x.DegradedAfter = def.SHT4x.DegradedAfter
	}
	if c.SHT4x.I2C.Address == 0 {
		c.SHT4x.I2C.Address = def.SHT4x.I2C.Address
	}
	for i := range c.Channels {
		if c.Channels[i].Divider == 0 {
			c.Channels[i].Divider = 1
		}
		if c.Channels[i].Unit == "" {
			c.Channels[i].Unit = "mV"
		}
	}
	for i := range c.Outputs {
		if c.Outputs[i].IntervalMs == 0 {
			c.Outputs[i].IntervalMs = c.SampleIntervalMs
		}
	}
}

// Validate reports the first configuration error found.
func (c Config) Validate() error {
	if c.SampleIntervalMs <= 0 {
		return fmt.Errorf("sample_interval_ms must be > 0")
	}
	switch c.SensorType {
	case SensorTypeReal, SensorTypeSimulation:
	default:
		return fmt.Errorf("unknown sensor_type %q", c.SensorType)
	}
	if c.ADC.BitWidth <= 0 || c.ADC.BitWidth > calibration.MaxBitWidth {
		return fmt.Errorf("adc bit_width must be in 1..%d, got %d", calibration.MaxBitWidth, c.ADC.BitWidth)
	}
	if c.ADC.SampleRate <= 0 {
		return fmt.Errorf("adc sample_rate must be > 0")
	}
	names := map[string]bool{}
	var calAtten *float64
	for i, ch := range c.Channels {
		if ch.Name == "" {
			return fmt.Errorf("channel %d has no name", i)
		}
		if names[ch.Name] {
			return fmt.Errorf("duplicate channel name %q", ch.Name)
		}
		names[ch.Name] = true
		if ch.Divider <= 0 {
			return fmt.Errorf("channel %q: divider must be > 0", ch.Name)
		}
		if _, err := calibration.ParseAttenuation(ch.AttenuationDB); err != nil {
			return fmt.Errorf("channel %q: %w", ch.Name, err)
		}
		if ch.Calibrate && ch.Enabled {
			if calAtten != nil && *calAtten != ch.AttenuationDB {
				return fmt.Errorf("channel %q: calibrated channels must share one attenuation", ch.Name)
			}
			a := ch.AttenuationDB
			calAtten = &a
		}
	}
	if c.SHT4x.Enabled {
		if names[c.SHT4x.Name+".temperature"] || names[c.SHT4x.Name+".humidity"] {
			return fmt.Errorf("sht4x name %q collides with an analog channel", c.SHT4x.Name)
		}
		switch strings.ToLower(c.SHT4x.Precision) {
		case "high", "medium", "low":
		default:
			return fmt.Errorf("unknown sht4x precision %q", c.SHT4x.Precision)
		}
	}
	for _, o := range c.Outputs {
		switch strings.ToLower(o.Type) {
		case "console", "mqtt", "influx":
		default:
			return fmt.Errorf("unknown output type %q", o.Type)
		}
	}
	return nil
}
