package calibration

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
)

// probe tries to create one kind of scheme from a Source.
type probe struct {
	kind   Kind
	create func(src Source, k Key) (Scheme, error)
}

// probes are tried in order; higher fidelity first.
var probes = []probe{
	{kind: CurveFit, create: func(src Source, k Key) (Scheme, error) {
		c, err := src.CurveFitting(k)
		if err != nil {
			return Scheme{}, err
		}
		return NewCurveFitting(k, c)
	}},
	{kind: LineFit, create: func(src Source, k Key) (Scheme, error) {
		l, err := src.LineFitting(k)
		if err != nil {
			return Scheme{}, err
		}
		return NewLineFitting(k, l)
	}},
}

// Calibrator owns the calibration scheme of one analog unit. At most one
// scheme is active at a time.
type Calibrator struct {
	unit     int
	bitWidth int
	src      Source

	mu     sync.Mutex
	active Scheme
}

// New returns a Calibrator for unit whose raw codes are bitWidth wide.
func New(unit, bitWidth int, src Source) *Calibrator {
	if src == nil {
		src = Sources(nil)
	}
	return &Calibrator{unit: unit, bitWidth: bitWidth, src: src}
}

// Initialize selects the first scheme supported for channel/atten and makes
// it active. When no scheme is supported the None scheme is returned with a
// nil error and the unit keeps working uncalibrated. If a scheme is already
// active it is returned unchanged.
func (c *Calibrator) Initialize(channel int, atten Attenuation) (Scheme, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := Key{Unit: c.unit, Channel: channel, Attenuation: atten, BitWidth: c.bitWidth}
	if err := k.validate(); err != nil {
		return Scheme{}, err
	}

	log := logrus.WithFields(logrus.Fields{
		"unit":        c.unit,
		"channel":     channel,
		"attenuation": atten.String(),
		"bitWidth":    c.bitWidth,
	})

	if c.active.Active() {
		log.WithField("scheme", c.active.String()).Debug("calibration scheme already active")
		return c.active, nil
	}

	for _, p := range probes {
		log.Infof("calibration scheme version is %s", p.kind)
		s, err := p.create(c.src, k)
		if err == nil {
			c.active = s
			log.WithField("scheme", s.String()).Info("calibration success")
			return s, nil
		}
		if !errors.Is(err, ErrNotSupported) {
			log.WithError(err).Errorf("%s calibration data rejected", p.kind)
		}
	}

	log.Warn("calibration data not available, skip software calibration")
	return Scheme{}, nil
}

// Active returns the scheme currently active, or None.
func (c *Calibrator) Active() Scheme {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Teardown releases the active scheme. It is a no-op when none is active.
func (c *Calibrator) Teardown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active.Active() {
		return
	}
	logrus.WithField("unit", c.unit).Infof("deregister %s calibration scheme", c.active.Kind())
	c.active = Scheme{}
}
