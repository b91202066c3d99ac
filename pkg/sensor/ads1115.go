package sensor

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/ericogr/plura-monitor/pkg/calibration"
	"github.com/ericogr/plura-monitor/pkg/config"
)

const (
	pointerConv   = 0x00
	pointerConfig = 0x01

	// configOS reads back as 1 once no conversion is in progress.
	configOS = 0x80

	ads1115BitWidth = 15
)

// pga settings (config bits 11:9) and their full scale in millivolts.
const (
	pga4096 byte = 0x1
	pga2048 byte = 0x2
	pga1024 byte = 0x3
)

var pgaFullScaleMV = map[byte]float64{
	pga4096: 4096,
	pga2048: 2048,
	pga1024: 1024,
}

// pgaForAttenuation picks the smallest full scale covering the input range
// the attenuation setting stands for.
func pgaForAttenuation(a calibration.Attenuation) byte {
	switch a {
	case calibration.Atten0dB:
		return pga1024
	case calibration.Atten2_5dB, calibration.Atten6dB:
		return pga2048
	default:
		return pga4096
	}
}

// Tx is the part of a periph i2c.Dev used by the driver.
type Tx interface {
	Tx(w, r []byte) error
}

// ADS1115 is a 16-bit I2C ADC used single-ended, so raw codes are 15 bits wide.
type ADS1115 struct {
	id         int
	dev        Tx
	bus        i2c.BusCloser
	sampleRate int
	sleep      func(time.Duration)

	mu sync.Mutex
}

var (
	_ Unit               = (*ADS1115)(nil)
	_ calibration.Source = (*ADS1115)(nil)
	_ calibration.Source = IdealSource{}
)

// NewADS1115 opens the I2C bus named in cfg and returns the unit.
func NewADS1115(cfg config.ADCConfig) (*ADS1115, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	bus, err := i2creg.Open(cfg.I2C.Bus)
	if err != nil {
		return nil, fmt.Errorf("open i2c: %w", err)
	}
	dev := &i2c.Dev{Addr: uint16(cfg.I2C.Address), Bus: bus}
	s := newADS1115(cfg.Unit, dev, cfg.SampleRate)
	s.bus = bus
	return s, nil
}

func newADS1115(id int, dev Tx, sampleRate int) *ADS1115 {
	return &ADS1115{id: id, dev: dev, sampleRate: sampleRate, sleep: time.Sleep}
}

func (s *ADS1115) ID() int { return s.id }

func (s *ADS1115) Close() error {
	if s.bus != nil {
		return s.bus.Close()
	}
	return nil
}

// Read performs one single-shot conversion on ch. Negative single-ended
// results (offset noise around 0 V) are reported as code 0.
func (s *ADS1115) Read(ch Channel) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rate := ch.SampleRate
	if rate == 0 {
		rate = s.sampleRate
	}
	msb, lsb, err := s.configForChannel(ch.Input, rate, pgaForAttenuation(ch.Attenuation))
	if err != nil {
		return 0, err
	}
	if err := s.dev.Tx([]byte{pointerConfig, msb, lsb}, nil); err != nil {
		return 0, fmt.Errorf("%w: write config: %w", ErrUnavailable, err)
	}
	delayMs := int(1000.0/float64(rate)) + 2
	s.sleep(time.Duration(delayMs) * time.Millisecond)

	status := make([]byte, 2)
	if err := s.dev.Tx([]byte{pointerConfig}, status); err != nil {
		return 0, fmt.Errorf("%w: read status: %w", ErrUnavailable, err)
	}
	if status[0]&configOS == 0 {
		return 0, ErrBusy
	}
	readBuf := make([]byte, 2)
	if err := s.dev.Tx([]byte{pointerConv}, readBuf); err != nil {
		return 0, fmt.Errorf("%w: read conv: %w", ErrUnavailable, err)
	}
	raw := int16(readBuf[0])<<8 | int16(readBuf[1])
	if raw < 0 {
		raw = 0
	}
	logrus.WithFields(logrus.Fields{
		"unit":    s.id,
		"channel": ch.Name,
		"raw":     raw,
	}).Trace("ads1115 conversion")
	return int(raw), nil
}

// configForChannel builds the config register for a single-shot conversion.
// A zero pga selects the ±4.096 V range.
func (s *ADS1115) configForChannel(channel int, sampleRate int, pga ...byte) (byte, byte, error) {
	var mux byte
	switch channel {
	case 0:
		mux = 0x4
	case 1:
		mux = 0x5
	case 2:
		mux = 0x6
	case 3:
		mux = 0x7
	default:
		return 0, 0, fmt.Errorf("%w %d", ErrInvalidChannel, channel)
	}
	gain := pga4096
	if len(pga) > 0 && pga[0] != 0 {
		gain = pga[0]
	}
	var dr byte
	switch sampleRate {
	case 8:
		dr = 0x0
	case 16:
		dr = 0x1
	case 32:
		dr = 0x2
	case 64:
		dr = 0x3
	case 128:
		dr = 0x4
	case 250:
		dr = 0x5
	case 475:
		dr = 0x6
	case 860:
		dr = 0x7
	default:
		dr = 0x4
	}
	var config uint16 = 0x8000 // OS = 1 (start single conversion)
	config |= uint16(mux) << 12
	config |= uint16(gain) << 9
	config |= 1 << 8 // single-shot mode
	config |= uint16(dr) << 5
	// comparator default: disabled (bits 1:0 = 11)
	config |= 0x3
	return byte(config >> 8), byte(config & 0xFF), nil
}

func (s *ADS1115) CurveFitting(k calibration.Key) (calibration.CurveCoefficients, error) {
	return IdealSource{Unit: s.id}.CurveFitting(k)
}

func (s *ADS1115) LineFitting(k calibration.Key) (calibration.LineCoefficients, error) {
	return IdealSource{Unit: s.id}.LineFitting(k)
}

// IdealSource provides the nominal ADS1115 transfer function as line
// fitting data. It carries no curve data: the chip has no trim storage.
type IdealSource struct {
	Unit int
}

func (IdealSource) CurveFitting(calibration.Key) (calibration.CurveCoefficients, error) {
	return calibration.CurveCoefficients{}, calibration.ErrNotSupported
}

// LineFitting returns the gain of the PGA range the attenuation maps to.
func (i IdealSource) LineFitting(k calibration.Key) (calibration.LineCoefficients, error) {
	if k.Unit != i.Unit || k.BitWidth != ads1115BitWidth {
		return calibration.LineCoefficients{}, calibration.ErrNotSupported
	}
	fs := pgaFullScaleMV[pgaForAttenuation(k.Attenuation)]
	return calibration.LineCoefficients{GainMicrovolts: fs * 1000 / (1 << ads1115BitWidth)}, nil
}
