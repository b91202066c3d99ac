package sensor

import (
	"github.com/ericogr/plura-monitor/pkg/calibration"
	"github.com/ericogr/plura-monitor/pkg/config"
)

// ChannelsFromConfig returns the enabled analog channels in configuration
// order. The config is expected to be validated.
func ChannelsFromConfig(cfg config.Config) ([]Channel, error) {
	out := make([]Channel, 0, len(cfg.Channels))
	for _, c := range cfg.EnabledChannels() {
		atten, err := calibration.ParseAttenuation(c.AttenuationDB)
		if err != nil {
			return nil, err
		}
		out = append(out, Channel{
			Name:        c.Name,
			Unit:        c.Unit,
			Input:       c.Channel,
			BitWidth:    cfg.ADC.BitWidth,
			Attenuation: atten,
			Divider:     c.Divider,
			Calibrate:   c.Calibrate,
			SampleRate:  c.SampleRate,
		})
	}
	return out, nil
}

// CalibrationTable turns the recorded calibration data of the ADC into a
// calibration.Table. Curve data is keyed per calibrated channel, line data
// applies to any channel at the calibrated attenuation.
func CalibrationTable(cfg config.Config) *calibration.Table {
	t := calibration.NewTable()
	cal := cfg.ADC.Calibration
	if cal.CurveFitting == nil && cal.LineFitting == nil {
		return t
	}
	for _, c := range cfg.EnabledChannels() {
		if !c.Calibrate {
			continue
		}
		atten, err := calibration.ParseAttenuation(c.AttenuationDB)
		if err != nil {
			continue
		}
		k := calibration.Key{Unit: cfg.ADC.Unit, Channel: c.Channel, Attenuation: atten, BitWidth: cfg.ADC.BitWidth}
		if cal.CurveFitting != nil {
			t.Curves[k] = *cal.CurveFitting
		}
		if cal.LineFitting != nil {
			k.Channel = calibration.AnyChannel
			t.Lines[k] = *cal.LineFitting
		}
	}
	return t
}

// CalibrationChannel returns the first enabled channel asking for
// calibration, which decides the key the unit's scheme is created for.
func CalibrationChannel(chs []Channel) (Channel, bool) {
	for _, c := range chs {
		if c.Calibrate {
			return c, true
		}
	}
	return Channel{}, false
}
