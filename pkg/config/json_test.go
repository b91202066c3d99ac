package config

import (
	"encoding/json"
	"testing"
)

func TestUnmarshalConfigJSON(t *testing.T) {
	js := `{
        "sensor_type": "real",
        "sample_interval_ms": 500,
        "adc": {
            "unit": 2,
            "i2c": { "bus": "2", "address": 72 },
            "sample_rate": 128,
            "bit_width": 15,
            "calibration": {
                "curve_fitting": { "line": { "gain_uv": 125, "offset_mv": 0 }, "error_terms": [0.5, 0.0001] }
            }
        },
        "outputs": [{"type":"console"}],
        "channels": [
            {"name": "v_bat", "channel": 0, "enabled": true, "attenuation_db": 12, "divider": 2, "calibrate": true},
            {"name": "fc_temp", "channel": 1, "enabled": false, "attenuation_db": 6}
        ],
        "sht4x": { "enabled": true, "i2c": { "bus": "2", "address": 68 }, "precision": "medium" }
    }`

	var cfg Config
	if err := json.Unmarshal([]byte(js), &cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if cfg.ADC.I2C.Address != 72 {
		t.Fatalf("i2c address: got %d", cfg.ADC.I2C.Address)
	}
	if cfg.ADC.SampleRate != 128 {
		t.Fatalf("sample_rate: got %d", cfg.ADC.SampleRate)
	}
	if cfg.SensorType != "real" {
		t.Fatalf("sensor_type: got %q", cfg.SensorType)
	}
	if len(cfg.Outputs) != 1 || cfg.Outputs[0].Type != "console" {
		t.Fatalf("outputs: %+v", cfg.Outputs)
	}
	if len(cfg.Channels) != 2 {
		t.Fatalf("channels len: %d", len(cfg.Channels))
	}
	if cfg.Channels[0].Name != "v_bat" || !cfg.Channels[0].Enabled || cfg.Channels[0].Divider != 2 || !cfg.Channels[0].Calibrate {
		t.Fatalf("channel0 incorrect: %+v", cfg.Channels[0])
	}
	if cfg.Channels[1].Channel != 1 || cfg.Channels[1].Enabled || cfg.Channels[1].AttenuationDB != 6 {
		t.Fatalf("channel1 incorrect: %+v", cfg.Channels[1])
	}
	curve := cfg.ADC.Calibration.CurveFitting
	if curve == nil || curve.Line.GainMicrovolts != 125 || len(curve.ErrorTerms) != 2 {
		t.Fatalf("curve fitting incorrect: %+v", curve)
	}
	if cfg.ADC.Calibration.LineFitting != nil {
		t.Fatalf("line fitting should be absent")
	}
	if cfg.SHT4x.I2C.Address != 0x44 || cfg.SHT4x.Precision != "medium" {
		t.Fatalf("sht4x incorrect: %+v", cfg.SHT4x)
	}
}
