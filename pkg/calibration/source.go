package calibration

import "errors"

// Source provides the per-unit calibration data a scheme is created from.
// Implementations return ErrNotSupported when they hold no data for a key.
type Source interface {
	CurveFitting(k Key) (CurveCoefficients, error)
	LineFitting(k Key) (LineCoefficients, error)
}

// Sources queries each Source in order and returns the first data found.
type Sources []Source

var _ Source = Sources(nil)

func (ss Sources) CurveFitting(k Key) (CurveCoefficients, error) {
	err := ErrNotSupported
	for _, s := range ss {
		c, e := s.CurveFitting(k)
		if e == nil {
			return c, nil
		}
		if !errors.Is(e, ErrNotSupported) {
			err = e
		}
	}
	return CurveCoefficients{}, err
}

func (ss Sources) LineFitting(k Key) (LineCoefficients, error) {
	err := ErrNotSupported
	for _, s := range ss {
		l, e := s.LineFitting(k)
		if e == nil {
			return l, nil
		}
		if !errors.Is(e, ErrNotSupported) {
			err = e
		}
	}
	return LineCoefficients{}, err
}

// Table is a Source backed by coefficients recorded for a board, usually
// loaded from the configuration file. Line fitting data stored under
// AnyChannel applies to every channel of the unit.
type Table struct {
	Curves map[Key]CurveCoefficients
	Lines  map[Key]LineCoefficients
}

var _ Source = (*Table)(nil)

// NewTable returns an empty Table.
func NewTable() *Table {
	return &Table{
		Curves: make(map[Key]CurveCoefficients),
		Lines:  make(map[Key]LineCoefficients),
	}
}

func (t *Table) CurveFitting(k Key) (CurveCoefficients, error) {
	if t == nil {
		return CurveCoefficients{}, ErrNotSupported
	}
	if c, ok := t.Curves[k]; ok {
		return c, nil
	}
	return CurveCoefficients{}, ErrNotSupported
}

func (t *Table) LineFitting(k Key) (LineCoefficients, error) {
	if t == nil {
		return LineCoefficients{}, ErrNotSupported
	}
	if l, ok := t.Lines[k]; ok {
		return l, nil
	}
	k.Channel = AnyChannel
	if l, ok := t.Lines[k]; ok {
		return l, nil
	}
	return LineCoefficients{}, ErrNotSupported
}
