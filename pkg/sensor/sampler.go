package sensor

import (
	"math"

	"github.com/sirupsen/logrus"

	"github.com/ericogr/plura-monitor/pkg/calibration"
)

// Sampler reads channels of one unit and converts codes to millivolts.
type Sampler struct {
	unit   Unit
	scheme calibration.Scheme
}

// NewSampler returns a Sampler for unit. scheme may be the None scheme, in
// which case every sample is raw only.
func NewSampler(unit Unit, scheme calibration.Scheme) *Sampler {
	return &Sampler{unit: unit, scheme: scheme}
}

// Scheme returns the scheme applied to calibrated channels.
func (s *Sampler) Scheme() calibration.Scheme { return s.scheme }

// Sample performs one conversion on ch. Read failures are returned as a
// *FaultError. A code the scheme cannot convert is not a fault: the sample
// is returned raw only.
func (s *Sampler) Sample(ch Channel) (Sample, error) {
	raw, err := s.unit.Read(ch)
	if err != nil {
		return Sample{}, &FaultError{Unit: s.unit.ID(), Channel: ch.Name, Err: err}
	}
	out := Sample{Channel: ch, Raw: raw}
	if !ch.Calibrate || !s.applies(ch) {
		return out, nil
	}
	mv, err := s.scheme.Convert(raw)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"channel": ch.Name,
			"raw":     raw,
		}).WithError(err).Warn("calibrated conversion failed")
		return out, nil
	}
	out.Millivolts = int(math.Round(float64(mv) * ch.divider()))
	out.Calibrated = true
	return out, nil
}

// applies reports whether the active scheme was created for ch's range.
func (s *Sampler) applies(ch Channel) bool {
	if !s.scheme.Active() {
		return false
	}
	k := s.scheme.Key()
	return k.Attenuation == ch.Attenuation && k.BitWidth == ch.BitWidth
}
