package sensor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericogr/plura-monitor/pkg/calibration"
	"github.com/ericogr/plura-monitor/pkg/config"
)

func idealScheme(t *testing.T) calibration.Scheme {
	t.Helper()
	k := calibration.Key{Unit: 2, Channel: 0, Attenuation: calibration.Atten12dB, BitWidth: 15}
	s, err := calibration.NewLineFitting(k, calibration.LineCoefficients{GainMicrovolts: 125})
	require.NoError(t, err)
	return s
}

func TestSamplerCalibratedWithDivider(t *testing.T) {
	unit := NewFake(2, 15, 1)
	unit.Set(0, 13200) // 1650 mV at the pin
	s := NewSampler(unit, idealScheme(t))

	got, err := s.Sample(Channel{Name: "v_bat", Input: 0, BitWidth: 15, Attenuation: calibration.Atten12dB, Divider: 2, Calibrate: true})
	require.NoError(t, err)
	assert.True(t, got.Calibrated)
	assert.Equal(t, 13200, got.Raw)
	assert.Equal(t, 3300, got.Millivolts)
}

func TestSamplerRawOnly(t *testing.T) {
	unit := NewFake(2, 15, 1)
	unit.Set(1, 4000)

	tests := []struct {
		name   string
		scheme calibration.Scheme
		ch     Channel
	}{
		{"not requested", idealScheme(t), Channel{Name: "fc_temp", Input: 1, BitWidth: 15, Attenuation: calibration.Atten12dB}},
		{"no scheme", calibration.Scheme{}, Channel{Name: "fc_temp", Input: 1, BitWidth: 15, Attenuation: calibration.Atten12dB, Calibrate: true}},
		{"other range", idealScheme(t), Channel{Name: "fc_temp", Input: 1, BitWidth: 15, Attenuation: calibration.Atten0dB, Calibrate: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewSampler(unit, tt.scheme).Sample(tt.ch)
			require.NoError(t, err)
			assert.False(t, got.Calibrated)
			assert.Equal(t, 4000, got.Raw)
			assert.Zero(t, got.Millivolts)
		})
	}
}

func TestSamplerFault(t *testing.T) {
	unit := NewFake(2, 15, 1)
	boom := errors.New("i2c nack")
	unit.Fail(0, boom)

	_, err := NewSampler(unit, idealScheme(t)).Sample(Channel{Name: "v_bat", Input: 0, Calibrate: true})
	var fe *FaultError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, 2, fe.Unit)
	assert.Equal(t, "v_bat", fe.Channel)
	assert.ErrorIs(t, err, boom)

	unit.Fail(0, nil)
	_, err = NewSampler(unit, idealScheme(t)).Sample(Channel{Name: "v_bat", Input: 0})
	assert.NoError(t, err)
}

func TestChannelsFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Channels = append(cfg.Channels, config.ChannelConfig{Name: "spare", Channel: 2, AttenuationDB: 0})

	chs, err := ChannelsFromConfig(cfg)
	require.NoError(t, err)
	require.Len(t, chs, 2)
	assert.Equal(t, "v_bat", chs[0].Name)
	assert.Equal(t, calibration.Atten12dB, chs[0].Attenuation)
	assert.Equal(t, 15, chs[0].BitWidth)
	assert.Equal(t, 2.0, chs[0].Divider)

	c, ok := CalibrationChannel(chs)
	require.True(t, ok)
	assert.Equal(t, "v_bat", c.Name)
}

func TestCalibrationTableFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.ADC.Calibration.LineFitting = &calibration.LineCoefficients{GainMicrovolts: 126, OffsetMillivolts: -3}

	tbl := CalibrationTable(cfg)
	l, err := tbl.LineFitting(calibration.Key{Unit: 2, Channel: 0, Attenuation: calibration.Atten12dB, BitWidth: 15})
	require.NoError(t, err)
	assert.Equal(t, 126.0, l.GainMicrovolts)

	_, err = tbl.CurveFitting(calibration.Key{Unit: 2, Channel: 0, Attenuation: calibration.Atten12dB, BitWidth: 15})
	assert.ErrorIs(t, err, calibration.ErrNotSupported)
}
