package sht4x

import (
	"errors"
	"math/rand"
	"sync"
)

var errNoMeasurement = errors.New("sht4x sim: no measurement pending")

// Simulator is a Bus answering like a sensor in a room around 22 °C and
// 45 %RH. Reads without a preceding measurement command fail.
type Simulator struct {
	mu      sync.Mutex
	rnd     *rand.Rand
	pending bool
}

var _ Bus = (*Simulator)(nil)

func NewSimulator(seed int64) *Simulator {
	return &Simulator{rnd: rand.New(rand.NewSource(seed))}
}

func (s *Simulator) Tx(w, r []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(w) > 0 {
		switch w[0] {
		case cmdMeasureHigh, cmdMeasureMedium, cmdMeasureLow:
			s.pending = true
		case cmdSoftReset:
			s.pending = false
		}
		return nil
	}
	if !s.pending {
		return errNoMeasurement
	}
	s.pending = false
	t := 22 + s.rnd.Float64() - 0.5
	rh := 45 + 2*s.rnd.Float64() - 1
	rawT := uint16((t + 45) / 175 * 65535)
	rawRH := uint16((rh + 6) / 125 * 65535)
	tb := []byte{byte(rawT >> 8), byte(rawT)}
	hb := []byte{byte(rawRH >> 8), byte(rawRH)}
	copy(r, []byte{tb[0], tb[1], crc8(tb), hb[0], hb[1], crc8(hb)})
	return nil
}
