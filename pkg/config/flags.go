package config

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

// Flags holds command-line overrides. Flags override values present in the
// configuration file and the environment.
type Flags struct {
	I2CBus          string
	I2CAddress      string
	SHTAddress      string
	SampleRate      int
	SampleInterval  int
	SensorType      string
	Outputs         string
	OutputIntervals string
	MQTTServer      string
	MQTTUser        string
	MQTTPass        string
	MQTTClientID    string
	MQTTTopic       string
	Channels        string
	Dividers        string
	Calibrate       string
	SampleRates     string
	Attenuations    string
	HTTPListen      string
}

// BindFlags registers the override flags on fs.
func BindFlags(fs *pflag.FlagSet) *Flags {
	f := &Flags{}
	fs.StringVar(&f.I2CBus, "i2c-bus", "", "I2C bus (e.g., '1' -> /dev/i2c-1)")
	fs.StringVar(&f.I2CAddress, "adc-address", "", "ADC I2C address (decimal or 0x hex)")
	fs.StringVar(&f.SHTAddress, "sht-address", "", "SHT4x I2C address (decimal or 0x hex)")
	fs.IntVar(&f.SampleRate, "sample-rate", -1, "ADC sample rate (SPS)")
	fs.IntVar(&f.SampleInterval, "interval-ms", -1, "Sampling period in ms")
	fs.StringVar(&f.SensorType, "sensor-type", "", "sensor type: real|simulation")
	fs.StringVar(&f.Outputs, "outputs", "", "Comma-separated outputs (console,mqtt,influx)")
	fs.StringVar(&f.OutputIntervals, "output-intervals", "", "Comma-separated output intervals e.g. console=1000,mqtt=5000")
	fs.StringVar(&f.MQTTServer, "mqtt-server", "", "MQTT server (tcp://host:port)")
	fs.StringVar(&f.MQTTUser, "mqtt-user", "", "MQTT username")
	fs.StringVar(&f.MQTTPass, "mqtt-pass", "", "MQTT password")
	fs.StringVar(&f.MQTTClientID, "mqtt-client-id", "", "MQTT client id")
	fs.StringVar(&f.MQTTTopic, "mqtt-topic", "", "MQTT state topic (may contain %s for the channel name)")
	fs.StringVar(&f.Channels, "channels", "", "Comma-separated ADC inputs to enable e.g. 0,1")
	fs.StringVar(&f.Dividers, "dividers", "", "Per-input divider factor e.g. 0=2.0")
	fs.StringVar(&f.Calibrate, "calibrate", "", "Per-input calibration switch e.g. 0=true,1=false")
	fs.StringVar(&f.SampleRates, "channel-sample-rates", "", "Per-input sample rate e.g. 0=128,1=250")
	fs.StringVar(&f.Attenuations, "attenuations", "", "Per-input attenuation in dB e.g. 0=12,1=6")
	fs.StringVar(&f.HTTPListen, "http-listen", "", "HTTP listen address")
	return f
}

// Apply merges the flags that were set into cfg and validates the result.
func (f *Flags) Apply(cfg *Config) error {
	if f.I2CBus != "" {
		cfg.ADC.I2C.Bus = f.I2CBus
		cfg.SHT4x.I2C.Bus = f.I2CBus
	}
	if f.I2CAddress != "" {
		v, err := parseIntOrHex(f.I2CAddress)
		if err != nil {
			return fmt.Errorf("adc-address: %w", err)
		}
		cfg.ADC.I2C.Address = v
	}
	if f.SHTAddress != "" {
		v, err := parseIntOrHex(f.SHTAddress)
		if err != nil {
			return fmt.Errorf("sht-address: %w", err)
		}
		cfg.SHT4x.I2C.Address = v
	}
	if f.SampleRate != -1 {
		cfg.ADC.SampleRate = f.SampleRate
	}
	if f.SampleInterval != -1 {
		cfg.SampleIntervalMs = f.SampleInterval
	}
	if f.SensorType != "" {
		cfg.SensorType = f.SensorType
	}
	if f.HTTPListen != "" {
		cfg.HTTP.Listen = f.HTTPListen
	}
	if f.Outputs != "" {
		parts := parseCSV(f.Outputs)
		outs := make([]OutputConfig, 0, len(parts))
		for _, p := range parts {
			outs = append(outs, OutputConfig{Type: p, IntervalMs: cfg.SampleIntervalMs})
		}
		cfg.Outputs = outs
	}
	if f.OutputIntervals != "" {
		for _, p := range parseCSV(f.OutputIntervals) {
			kv := strings.SplitN(p, "=", 2)
			if len(kv) != 2 {
				continue
			}
			v, err := strconv.Atoi(strings.TrimSpace(kv[1]))
			if err != nil {
				continue
			}
			for i := range cfg.Outputs {
				if cfg.Outputs[i].Type == strings.TrimSpace(kv[0]) {
					cfg.Outputs[i].IntervalMs = v
				}
			}
		}
	}
	f.applyMQTT(cfg)

	if f.Channels != "" {
		chs, err := parseChannels(f.Channels)
		if err != nil {
			return err
		}
		enabled := map[int]bool{}
		for _, c := range chs {
			enabled[c] = true
		}
		for i := range cfg.Channels {
			cfg.Channels[i].Enabled = enabled[cfg.Channels[i].Channel]
		}
	}
	if f.Dividers != "" {
		m, err := parseKeyFloatMap(f.Dividers)
		if err != nil {
			return fmt.Errorf("dividers: %w", err)
		}
		for i := range cfg.Channels {
			if v, ok := m[cfg.Channels[i].Channel]; ok {
				cfg.Channels[i].Divider = v
			}
		}
	}
	if f.Attenuations != "" {
		m, err := parseKeyFloatMap(f.Attenuations)
		if err != nil {
			return fmt.Errorf("attenuations: %w", err)
		}
		for i := range cfg.Channels {
			if v, ok := m[cfg.Channels[i].Channel]; ok {
				cfg.Channels[i].AttenuationDB = v
			}
		}
	}
	if f.Calibrate != "" {
		m, err := parseKeyBoolMap(f.Calibrate)
		if err != nil {
			return fmt.Errorf("calibrate: %w", err)
		}
		for i := range cfg.Channels {
			if v, ok := m[cfg.Channels[i].Channel]; ok {
				cfg.Channels[i].Calibrate = v
			}
		}
	}
	if f.SampleRates != "" {
		m, err := parseKeyIntMap(f.SampleRates)
		if err != nil {
			return fmt.Errorf("channel-sample-rates: %w", err)
		}
		for i := range cfg.Channels {
			if v, ok := m[cfg.Channels[i].Channel]; ok {
				cfg.Channels[i].SampleRate = v
			}
		}
	}

	cfg.ensureDefaults()
	if cfg.ADC.SampleRate <= 0 {
		return errors.New("sample-rate must be > 0")
	}
	return cfg.Validate()
}

// applyMQTT maps the mqtt flags onto every mqtt output, creating one if none exist.
func (f *Flags) applyMQTT(cfg *Config) {
	if f.MQTTServer == "" && f.MQTTUser == "" && f.MQTTPass == "" && f.MQTTClientID == "" && f.MQTTTopic == "" {
		return
	}
	set := func(m *MQTTConfig) {
		if f.MQTTServer != "" {
			m.Server = f.MQTTServer
		}
		if f.MQTTUser != "" {
			m.Username = f.MQTTUser
		}
		if f.MQTTPass != "" {
			m.Password = f.MQTTPass
		}
		if f.MQTTClientID != "" {
			m.ClientID = f.MQTTClientID
		}
		if f.MQTTTopic != "" {
			m.StateTopic = f.MQTTTopic
		}
	}
	applied := false
	for i := range cfg.Outputs {
		if strings.ToLower(cfg.Outputs[i].Type) == "mqtt" {
			if cfg.Outputs[i].MQTT == nil {
				cfg.Outputs[i].MQTT = &MQTTConfig{}
			}
			set(cfg.Outputs[i].MQTT)
			applied = true
		}
	}
	if !applied {
		out := OutputConfig{Type: "mqtt", IntervalMs: cfg.SampleIntervalMs, MQTT: &MQTTConfig{}}
		set(out.MQTT)
		cfg.Outputs = append(cfg.Outputs, out)
	}
}

func parseIntOrHex(s string) (int, error) {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseInt(s[2:], 16, 0)
		return int(v), err
	}
	v, err := strconv.Atoi(s)
	return v, err
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func parseChannels(s string) ([]int, error) {
	parts := parseCSV(s)
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid channel '%s': %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// parseKeyValues splits "k=v,k=v" into integer keys and raw values.
func parseKeyValues(s string) (map[int]string, error) {
	out := map[int]string{}
	for _, p := range parseCSV(s) {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid pair %q", p)
		}
		k, err := strconv.Atoi(strings.TrimSpace(kv[0]))
		if err != nil {
			return nil, fmt.Errorf("invalid key %q: %w", kv[0], err)
		}
		out[k] = strings.TrimSpace(kv[1])
	}
	return out, nil
}

func parseKeyFloatMap(s string) (map[int]float64, error) {
	kv, err := parseKeyValues(s)
	if err != nil {
		return nil, err
	}
	out := make(map[int]float64, len(kv))
	for k, v := range kv {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(f) {
			return nil, fmt.Errorf("invalid value for %d: %q", k, v)
		}
		out[k] = f
	}
	return out, nil
}

func parseKeyIntMap(s string) (map[int]int, error) {
	kv, err := parseKeyValues(s)
	if err != nil {
		return nil, err
	}
	out := make(map[int]int, len(kv))
	for k, v := range kv {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %d: %w", k, err)
		}
		out[k] = n
	}
	return out, nil
}

func parseKeyBoolMap(s string) (map[int]bool, error) {
	kv, err := parseKeyValues(s)
	if err != nil {
		return nil, err
	}
	out := make(map[int]bool, len(kv))
	for k, v := range kv {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid value for %d: %w", k, err)
		}
		out[k] = b
	}
	return out, nil
}
