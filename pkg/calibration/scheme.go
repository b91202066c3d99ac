package calibration

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrNoScheme is returned when converting with the None scheme.
	ErrNoScheme = errors.New("calibration: no active scheme")
	// ErrOutOfRange is returned when a raw code does not fit the scheme's bit width.
	ErrOutOfRange = errors.New("calibration: raw code out of range")
	// ErrNotSupported is returned by a Source that holds no data for a scheme.
	ErrNotSupported = errors.New("calibration: scheme not supported")
	// ErrInvalidCoefficients is returned for calibration data that cannot be used.
	ErrInvalidCoefficients = errors.New("calibration: invalid coefficients")
	// ErrInvalidKey is returned for an unusable unit/channel/attenuation/bit width combination.
	ErrInvalidKey = errors.New("calibration: invalid key")
)

// MaxBitWidth is the widest raw code supported by the conversion.
const MaxBitWidth = 16

// AnyChannel marks line fitting data which applies to every channel of a unit.
const AnyChannel = -1

// Attenuation is the analog front-end setting a channel is sampled with.
type Attenuation int

const (
	Atten0dB Attenuation = iota
	Atten2_5dB
	Atten6dB
	Atten12dB
)

func (a Attenuation) String() string {
	switch a {
	case Atten0dB:
		return "0dB"
	case Atten2_5dB:
		return "2.5dB"
	case Atten6dB:
		return "6dB"
	case Atten12dB:
		return "12dB"
	default:
		return fmt.Sprintf("Attenuation(%d)", int(a))
	}
}

// ParseAttenuation maps a decibel value from configuration to an Attenuation.
func ParseAttenuation(db float64) (Attenuation, error) {
	switch db {
	case 0:
		return Atten0dB, nil
	case 2.5:
		return Atten2_5dB, nil
	case 6:
		return Atten6dB, nil
	case 11, 12:
		return Atten12dB, nil
	default:
		return 0, fmt.Errorf("unsupported attenuation %gdB", db)
	}
}

// Key binds calibration data to one analog unit, channel, attenuation and bit width.
type Key struct {
	Unit        int
	Channel     int
	Attenuation Attenuation
	BitWidth    int
}

func (k Key) validate() error {
	if k.BitWidth <= 0 || k.BitWidth > MaxBitWidth {
		return fmt.Errorf("%w: bit width %d", ErrInvalidKey, k.BitWidth)
	}
	if k.Attenuation < Atten0dB || k.Attenuation > Atten12dB {
		return fmt.Errorf("%w: %s", ErrInvalidKey, k.Attenuation)
	}
	return nil
}

// codes returns the number of representable raw codes.
func (k Key) codes() int { return 1 << k.BitWidth }

// Kind tags the variant held by a Scheme.
type Kind int

const (
	None Kind = iota
	CurveFit
	LineFit
)

func (k Kind) String() string {
	switch k {
	case CurveFit:
		return "curve_fitting"
	case LineFit:
		return "line_fitting"
	default:
		return "none"
	}
}

// LineCoefficients describe a straight-line code to millivolt conversion.
type LineCoefficients struct {
	GainMicrovolts   float64 `json:"gain_uv" yaml:"gain_uv"`
	OffsetMillivolts float64 `json:"offset_mv" yaml:"offset_mv"`
}

func (l LineCoefficients) millivolts(raw int) float64 {
	return float64(raw)*l.GainMicrovolts/1000 + l.OffsetMillivolts
}

func (l LineCoefficients) validate() error {
	if !(l.GainMicrovolts > 0) || math.IsInf(l.GainMicrovolts, 0) || math.IsNaN(l.OffsetMillivolts) {
		return fmt.Errorf("%w: gain %g uV/code", ErrInvalidCoefficients, l.GainMicrovolts)
	}
	return nil
}

// CurveCoefficients describe a line corrected by a polynomial error term.
// ErrorTerms are in millivolts, lowest power of the raw code first.
type CurveCoefficients struct {
	Line       LineCoefficients `json:"line" yaml:"line"`
	ErrorTerms []float64        `json:"error_terms" yaml:"error_terms"`
}

func (c CurveCoefficients) millivolts(raw int) float64 {
	var e float64
	p := 1.0
	for _, t := range c.ErrorTerms {
		e += t * p
		p *= float64(raw)
	}
	return c.Line.millivolts(raw) - e
}

// validate rejects curves that are not non-decreasing over every code of k.
func (c CurveCoefficients) validate(k Key) error {
	if err := c.Line.validate(); err != nil {
		return err
	}
	prev := c.millivolts(0)
	for raw := 1; raw < k.codes(); raw++ {
		v := c.millivolts(raw)
		if math.IsNaN(v) || v < prev {
			return fmt.Errorf("%w: curve decreases at code %d", ErrInvalidCoefficients, raw)
		}
		prev = v
	}
	return nil
}

// Scheme is the calibration variant active for an analog unit. The zero
// value is the None scheme.
type Scheme struct {
	kind  Kind
	key   Key
	line  LineCoefficients
	curve CurveCoefficients
}

// NewLineFitting builds a line fitting scheme for k.
func NewLineFitting(k Key, l LineCoefficients) (Scheme, error) {
	if err := k.validate(); err != nil {
		return Scheme{}, err
	}
	if err := l.validate(); err != nil {
		return Scheme{}, err
	}
	return Scheme{kind: LineFit, key: k, line: l}, nil
}

// NewCurveFitting builds a curve fitting scheme for k.
func NewCurveFitting(k Key, c CurveCoefficients) (Scheme, error) {
	if err := k.validate(); err != nil {
		return Scheme{}, err
	}
	if err := c.validate(k); err != nil {
		return Scheme{}, err
	}
	c.ErrorTerms = append([]float64(nil), c.ErrorTerms...)
	return Scheme{kind: CurveFit, key: k, curve: c}, nil
}

func (s Scheme) Kind() Kind   { return s.kind }
func (s Scheme) Key() Key     { return s.key }
func (s Scheme) Active() bool { return s.kind != None }

// Convert turns a raw code into millivolts at the sensed pin.
func (s Scheme) Convert(raw int) (int, error) {
	if s.kind == None {
		return 0, ErrNoScheme
	}
	if raw < 0 || raw >= s.key.codes() {
		return 0, fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, raw, s.key.codes())
	}
	var mv float64
	switch s.kind {
	case CurveFit:
		mv = s.curve.millivolts(raw)
	case LineFit:
		mv = s.line.millivolts(raw)
	}
	return int(math.Round(mv)), nil
}

func (s Scheme) String() string {
	if s.kind == None {
		return "none"
	}
	return fmt.Sprintf("%s(unit=%d ch=%d atten=%s bits=%d)", s.kind, s.key.Unit, s.key.Channel, s.key.Attenuation, s.key.BitWidth)
}
