package acquire

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericogr/plura-monitor/pkg/calibration"
	"github.com/ericogr/plura-monitor/pkg/events"
	"github.com/ericogr/plura-monitor/pkg/sensor"
	"github.com/ericogr/plura-monitor/pkg/sht4x"
	"github.com/ericogr/plura-monitor/pkg/store"
)

type fakeDigital struct {
	m     sht4x.Measurement
	err   error
	retry sht4x.RetryState
	reads int
}

func (f *fakeDigital) Read() (sht4x.Measurement, error) {
	f.reads++
	if f.err != nil {
		f.retry = f.retry.Failed()
		return sht4x.Measurement{}, f.err
	}
	f.retry = f.retry.Succeeded()
	return f.m, nil
}

func (f *fakeDigital) Retry() sht4x.RetryState { return f.retry }

var (
	vBat   = sensor.Channel{Name: "v_bat", Unit: "mV", Input: 0, BitWidth: 15, Attenuation: calibration.Atten12dB, Divider: 2, Calibrate: true}
	fcTemp = sensor.Channel{Name: "fc_temp", Unit: "mV", Input: 1, BitWidth: 15, Attenuation: calibration.Atten12dB}
)

type fixture struct {
	unit    *sensor.Fake
	digital *fakeDigital
	store   *store.Store
	hub     *events.Hub
	loop    *Loop
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	tbl := calibration.NewTable()
	tbl.Curves[calibration.Key{Unit: 2, Channel: 0, Attenuation: calibration.Atten12dB, BitWidth: 15}] = calibration.CurveCoefficients{
		Line:       calibration.LineCoefficients{GainMicrovolts: 125},
		ErrorTerms: []float64{2},
	}
	cal := calibration.New(2, 15, tbl)
	scheme, err := cal.Initialize(vBat.Input, vBat.Attenuation)
	require.NoError(t, err)
	require.Equal(t, calibration.CurveFit, scheme.Kind())
	t.Cleanup(cal.Teardown)

	f := &fixture{
		unit:    sensor.NewFake(2, 15, 1),
		digital: &fakeDigital{retry: sht4x.NewRetryState(3)},
		hub:     events.NewHub(),
	}
	chs := []sensor.Channel{vBat, fcTemp}
	digital := []Digital{{Name: "sht41", Sensor: f.digital}}
	f.store = store.New(IDs(chs, digital)...)
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	f.loop = New(f.store, sensor.NewSampler(f.unit, scheme), chs, digital, Options{
		Hub: f.hub,
		Now: func() time.Time { return clock },
	})
	return f
}

func TestIDs(t *testing.T) {
	ids := IDs([]sensor.Channel{vBat, fcTemp}, []Digital{{Name: "sht41"}})
	assert.Equal(t, []store.ID{"v_bat", "fc_temp", "sht41.temperature", "sht41.humidity"}, ids)
}

func TestCycleEndToEnd(t *testing.T) {
	f := newFixture(t)
	f.unit.Set(0, 13200) // 1.65 V after the 2:1 divider
	f.unit.Set(1, 8000)
	f.digital.m = sht4x.Measurement{TemperatureC: 25, HumidityRH: 40, RawTemperature: 0x6666, RawHumidity: 0x6000}
	sub := f.hub.Subscribe()

	require.NoError(t, f.loop.Cycle())

	bat, err := f.store.Read("v_bat")
	require.NoError(t, err)
	assert.True(t, bat.Valid)
	assert.True(t, bat.Calibrated)
	assert.Equal(t, 13200, bat.Raw)
	assert.InDelta(t, 3300, bat.Value, 10)
	assert.Equal(t, uint64(1), bat.Cycle)

	fc, err := f.store.Read("fc_temp")
	require.NoError(t, err)
	assert.True(t, fc.Valid)
	assert.False(t, fc.Calibrated)
	assert.Equal(t, 8000, fc.Raw)

	temp, err := f.store.Read(TemperatureID("sht41"))
	require.NoError(t, err)
	assert.Equal(t, 25.0, temp.Value)
	assert.Equal(t, UnitCelsius, temp.Unit)
	hum, err := f.store.Read(HumidityID("sht41"))
	require.NoError(t, err)
	assert.Equal(t, 40.0, hum.Value)
	assert.Equal(t, 0x6000, hum.Raw)
	assert.True(t, temp.HasRaw)
	assert.True(t, hum.HasRaw)

	ev := <-sub
	assert.Equal(t, events.ReadingsUpdated, ev.Name)
	p, err := events.DecodeAs[events.ReadingsUpdatedEvent](ev)
	require.NoError(t, err)
	assert.Equal(t, []string{"v_bat", "fc_temp", "sht41"}, p.Updated)
	assert.Empty(t, p.Stale)
}

func TestAnalogFaultIsFatalAndLeavesEntriesStale(t *testing.T) {
	f := newFixture(t)
	f.unit.Set(0, 13200)
	f.unit.Set(1, 8000)
	require.NoError(t, f.loop.Cycle())

	f.unit.Set(0, 100)
	f.unit.Fail(1, errors.New("i2c: bus error"))
	err := f.loop.Cycle()

	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	var fault *sensor.FaultError
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, "fc_temp", fault.Channel)

	bat, _ := f.store.Read("v_bat")
	assert.Equal(t, 100, bat.Raw, "channels before the fault are published")
	fc, _ := f.store.Read("fc_temp")
	assert.Equal(t, 8000, fc.Raw)
	assert.Equal(t, uint64(1), fc.Cycle)
	assert.Equal(t, 1, f.digital.reads, "the cycle stops at the analog fault")
}

func TestDigitalFaultKeepsStaleReading(t *testing.T) {
	f := newFixture(t)
	f.unit.Set(0, 13200)
	f.unit.Set(1, 8000)
	f.digital.m = sht4x.Measurement{TemperatureC: 21.5, HumidityRH: 55}
	require.NoError(t, f.loop.Cycle())

	sub := f.hub.Subscribe()
	f.digital.err = errors.New("sht4x receive: nack")
	for i := 0; i < 4; i++ {
		require.NoError(t, f.loop.Cycle(), "digital faults never stop the loop")
	}

	temp, _ := f.store.Read(TemperatureID("sht41"))
	assert.True(t, temp.Valid)
	assert.Equal(t, 21.5, temp.Value)
	assert.Equal(t, uint64(1), temp.Cycle)
	bat, _ := f.store.Read("v_bat")
	assert.Equal(t, uint64(5), bat.Cycle)
	assert.Equal(t, 4, f.digital.retry.Failures())

	var names []string
	for len(sub) > 0 {
		names = append(names, (<-sub).Name)
	}
	assert.Equal(t, []string{
		events.ReadingsUpdated,
		events.ReadingsUpdated,
		events.SensorDegraded,
		events.ReadingsUpdated,
		events.ReadingsUpdated,
	}, names)

	f.digital.err = nil
	f.digital.m.TemperatureC = 22
	require.NoError(t, f.loop.Cycle())
	assert.Equal(t, events.SensorRecovered, (<-sub).Name)
	temp, _ = f.store.Read(TemperatureID("sht41"))
	assert.Equal(t, 22.0, temp.Value)
	assert.Zero(t, f.digital.retry.Failures())
}

func TestRunStopsOnFatal(t *testing.T) {
	f := newFixture(t)
	f.unit.Fail(0, errors.New("unplugged"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := f.loop.Run(ctx)
	var fatal *FatalError
	assert.ErrorAs(t, err, &fatal)
}

func TestRunStopsOnContext(t *testing.T) {
	f := newFixture(t)
	f.loop.period = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	require.NoError(t, f.loop.Run(ctx))

	bat, _ := f.store.Read("v_bat")
	assert.GreaterOrEqual(t, bat.Cycle, uint64(2))
}
