// Package acquire runs the periodic sampling cycle and publishes its
// results into the reading store.
package acquire

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ericogr/plura-monitor/pkg/events"
	"github.com/ericogr/plura-monitor/pkg/sensor"
	"github.com/ericogr/plura-monitor/pkg/sht4x"
	"github.com/ericogr/plura-monitor/pkg/store"
)

// DefaultPeriod is the time between the starts of two cycles.
const DefaultPeriod = time.Second

// Units of the digital sensor readings.
const (
	UnitCelsius = "°C"
	UnitPercent = "%RH"
)

// DigitalSensor is a temperature/humidity sensor read once per cycle.
type DigitalSensor interface {
	Read() (sht4x.Measurement, error)
	Retry() sht4x.RetryState
}

// Digital names a DigitalSensor. Its readings are stored under
// TemperatureID(Name) and HumidityID(Name).
type Digital struct {
	Name   string
	Sensor DigitalSensor
}

func TemperatureID(name string) store.ID { return store.ID(name + ".temperature") }
func HumidityID(name string) store.ID    { return store.ID(name + ".humidity") }

// IDs lists the store entries written by a loop over chs and digital, in
// sampling order.
func IDs(chs []sensor.Channel, digital []Digital) []store.ID {
	ids := make([]store.ID, 0, len(chs)+2*len(digital))
	for _, c := range chs {
		ids = append(ids, store.ID(c.Name))
	}
	for _, d := range digital {
		ids = append(ids, TemperatureID(d.Name), HumidityID(d.Name))
	}
	return ids
}

// FatalError wraps an analog fault. The loop stops on it and the process
// is expected to exit so the hardware can be restarted.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return fmt.Sprintf("fatal analog fault: %v", e.Err) }

func (e *FatalError) Unwrap() error { return e.Err }

// Options configures a Loop.
type Options struct {
	Period time.Duration
	Hub    *events.Hub
	Now    func() time.Time
}

// Loop is the single writer of a Store.
type Loop struct {
	store    *store.Store
	sampler  *sensor.Sampler
	channels []sensor.Channel
	digital  []Digital
	period   time.Duration
	hub      *events.Hub
	now      func() time.Time

	cycle    uint64
	degraded map[string]bool
}

// New returns a Loop writing into st. Every channel and digital sensor must
// have an entry in st, see IDs.
func New(st *store.Store, sampler *sensor.Sampler, chs []sensor.Channel, digital []Digital, opts Options) *Loop {
	if opts.Period <= 0 {
		opts.Period = DefaultPeriod
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Loop{
		store:    st,
		sampler:  sampler,
		channels: append([]sensor.Channel(nil), chs...),
		digital:  append([]Digital(nil), digital...),
		period:   opts.Period,
		hub:      opts.Hub,
		now:      opts.Now,
		degraded: make(map[string]bool),
	}
}

// Cycle samples every analog channel in order, then reads each digital
// sensor once. An analog fault aborts the cycle with a *FatalError and
// leaves the remaining entries untouched. A digital fault only leaves that
// sensor's entries stale.
func (l *Loop) Cycle() error {
	l.cycle++
	var updated, stale []string

	for _, ch := range l.channels {
		s, err := l.sampler.Sample(ch)
		if err != nil {
			return &FatalError{Err: err}
		}
		r := store.Reading{
			Raw:        s.Raw,
			HasRaw:     true,
			Calibrated: s.Calibrated,
			Unit:       ch.Unit,
			Valid:      true,
			UpdatedAt:  l.now(),
			Cycle:      l.cycle,
		}
		if s.Calibrated {
			r.Value = float64(s.Millivolts)
		}
		if err := l.store.Write(store.ID(ch.Name), r); err != nil {
			return err
		}
		updated = append(updated, ch.Name)
	}

	for _, d := range l.digital {
		if l.readDigital(d) {
			updated = append(updated, d.Name)
		} else {
			stale = append(stale, d.Name)
		}
	}

	l.hub.Publish(events.ReadingsUpdated, events.ReadingsUpdatedEvent{
		Cycle:   l.cycle,
		Updated: updated,
		Stale:   stale,
		Ts:      l.now().Unix(),
	})
	return nil
}

func (l *Loop) readDigital(d Digital) bool {
	log := logrus.WithField("sensor", d.Name)
	m, err := d.Sensor.Read()
	retry := d.Sensor.Retry()
	if err != nil {
		log = log.WithField("failures", retry.Failures()).WithError(err)
		if retry.Degraded() && !l.degraded[d.Name] {
			l.degraded[d.Name] = true
			log.Error("digital sensor degraded, keeping last reading")
			l.hub.Publish(events.SensorDegraded, events.SensorHealthEvent{
				Sensor:   d.Name,
				Failures: retry.Failures(),
				Error:    err.Error(),
				Ts:       l.now().Unix(),
			})
		} else {
			log.Warn("failed to read digital sensor")
		}
		return false
	}
	if l.degraded[d.Name] {
		delete(l.degraded, d.Name)
		log.Info("digital sensor recovered")
		l.hub.Publish(events.SensorRecovered, events.SensorHealthEvent{Sensor: d.Name, Ts: l.now().Unix()})
	}

	now := l.now()
	temp := store.Reading{
		Raw:        int(m.RawTemperature),
		HasRaw:     true,
		Value:      m.TemperatureC,
		Calibrated: true,
		Unit:       UnitCelsius,
		Valid:      true,
		UpdatedAt:  now,
		Cycle:      l.cycle,
	}
	hum := temp
	hum.Raw = int(m.RawHumidity)
	hum.Value = m.HumidityRH
	hum.Unit = UnitPercent
	if err := l.store.Write(TemperatureID(d.Name), temp); err != nil {
		log.WithError(err).Error("failed to store temperature")
	}
	if err := l.store.Write(HumidityID(d.Name), hum); err != nil {
		log.WithError(err).Error("failed to store humidity")
	}
	log.WithFields(logrus.Fields{
		"temperature": m.TemperatureC,
		"humidity":    m.HumidityRH,
	}).Debug("digital sensor read")
	return true
}

// Run executes a cycle every period until ctx is done or a cycle returns a
// fatal error. A failed digital read does not shift the cadence. ctx is only
// observed between cycles.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.period)
	defer ticker.Stop()
	for {
		if err := l.Cycle(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
