package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	pkgerrors "github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by LoadEnv.
const EnvPrefix = "PLURA_"

// Load reads a JSON or YAML (by extension) configuration file on top of the
// defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, pkgerrors.Wrap(err, "read config")
	}

	// Lists in the file replace the defaults instead of being merged into them.
	cfg.Channels, cfg.Outputs = nil, nil
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	default:
		err = json.Unmarshal(b, &cfg)
	}
	if err != nil {
		return cfg, pkgerrors.Wrapf(err, "parse config %s", path)
	}

	def := DefaultConfig()
	if cfg.Channels == nil {
		cfg.Channels = def.Channels
	}
	if cfg.Outputs == nil {
		cfg.Outputs = def.Outputs
	}
	cfg.ensureDefaults()
	return cfg, nil
}

// LoadEnv loads the given .env files (missing files are ignored) and applies
// PLURA_* variables to cfg.
func LoadEnv(cfg *Config, files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return pkgerrors.Wrapf(err, "load env file %s", f)
		}
	}
	return applyEnv(cfg, os.Getenv)
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	get := func(k string) string { return strings.TrimSpace(getenv(EnvPrefix + k)) }

	if v := get("SENSOR_TYPE"); v != "" {
		cfg.SensorType = v
	}
	if v := get("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := get("I2C_BUS"); v != "" {
		cfg.ADC.I2C.Bus = v
		cfg.SHT4x.I2C.Bus = v
	}
	if v := get("HTTP_LISTEN"); v != "" {
		cfg.HTTP.Listen = v
	}
	if v := get("SAMPLE_INTERVAL_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return pkgerrors.Wrapf(err, "%sSAMPLE_INTERVAL_MS", EnvPrefix)
		}
		cfg.SampleIntervalMs = n
	}
	for i := range cfg.Outputs {
		o := &cfg.Outputs[i]
		switch strings.ToLower(o.Type) {
		case "mqtt":
			if o.MQTT == nil {
				o.MQTT = &MQTTConfig{}
			}
			if v := get("MQTT_SERVER"); v != "" {
				o.MQTT.Server = v
			}
			if v := get("MQTT_USER"); v != "" {
				o.MQTT.Username = v
			}
			if v := get("MQTT_PASS"); v != "" {
				o.MQTT.Password = v
			}
		case "influx":
			if o.Influx == nil {
				o.Influx = &InfluxConfig{}
			}
			if v := get("INFLUX_URL"); v != "" {
				o.Influx.URL = v
			}
			if v := get("INFLUX_TOKEN"); v != "" {
				o.Influx.Token = v
			}
			if v := get("INFLUX_ORG"); v != "" {
				o.Influx.Org = v
			}
			if v := get("INFLUX_BUCKET"); v != "" {
				o.Influx.Bucket = v
			}
		}
	}
	return nil
}
