// Package sht4x drives a Sensirion SHT4x temperature and humidity sensor
// over I2C with single-shot measurements.
package sht4x

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/ericogr/plura-monitor/pkg/config"
)

// DefaultAddress is the bus address of the SHT40/SHT41 "A" variants.
const DefaultAddress = 0x44

const (
	cmdMeasureHigh   = 0xFD
	cmdMeasureMedium = 0xF6
	cmdMeasureLow    = 0xE0
	cmdSoftReset     = 0x94

	responseLen = 6
	resetDelay  = time.Millisecond
)

var ErrCRC = errors.New("sht4x: crc mismatch")

// Bus is the part of a periph i2c.Dev used by the client.
type Bus interface {
	Tx(w, r []byte) error
}

// Precision selects the repeatability of a measurement.
type Precision int

const (
	High Precision = iota
	Medium
	Low
)

func (p Precision) String() string {
	switch p {
	case High:
		return "high"
	case Medium:
		return "medium"
	case Low:
		return "low"
	default:
		return fmt.Sprintf("Precision(%d)", int(p))
	}
}

// ParsePrecision maps a configuration value to a Precision. Empty means High.
func ParsePrecision(s string) (Precision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "high":
		return High, nil
	case "medium":
		return Medium, nil
	case "low":
		return Low, nil
	default:
		return 0, fmt.Errorf("unknown sht4x precision %q", s)
	}
}

func (p Precision) command() byte {
	switch p {
	case Medium:
		return cmdMeasureMedium
	case Low:
		return cmdMeasureLow
	default:
		return cmdMeasureHigh
	}
}

// MinConversionDelay is the datasheet maximum measurement duration.
func (p Precision) MinConversionDelay() time.Duration {
	switch p {
	case Medium:
		return 4500 * time.Microsecond
	case Low:
		return 1700 * time.Microsecond
	default:
		return 8300 * time.Microsecond
	}
}

// State is the step a measurement transaction reached.
type State int

const (
	Idle State = iota
	CommandSent
	AwaitingConversion
	ResultReady
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case CommandSent:
		return "command_sent"
	case AwaitingConversion:
		return "awaiting_conversion"
	case ResultReady:
		return "result_ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Stage names the part of a transaction that failed.
type Stage string

const (
	StageTransmit Stage = "transmit"
	StageReceive  Stage = "receive"
)

// TransactionError is returned by Read when the bus transaction fails.
type TransactionError struct {
	Stage Stage
	Err   error
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("sht4x %s: %v", e.Stage, e.Err)
}

func (e *TransactionError) Unwrap() error { return e.Err }

// Measurement is one decoded sensor response.
type Measurement struct {
	TemperatureC   float64
	HumidityRH     float64
	RawTemperature uint16
	RawHumidity    uint16
}

// Options configures a Client.
type Options struct {
	Precision Precision
	// ConversionDelay is raised to the precision's minimum when shorter.
	ConversionDelay time.Duration
	// DegradedAfter is the consecutive failure count marking the sensor
	// degraded. Zero means DefaultDegradedAfter.
	DegradedAfter int
}

// Client performs measurements on one sensor. Each Read is a single
// attempt: failures are counted, never retried in place.
type Client struct {
	bus       Bus
	closer    i2c.BusCloser
	precision Precision
	delay     time.Duration
	sleep     func(time.Duration)

	mu    sync.Mutex
	state State
	retry RetryState
}

// New returns a Client talking over bus.
func New(bus Bus, opts Options) *Client {
	delay := opts.ConversionDelay
	if floor := opts.Precision.MinConversionDelay(); delay < floor {
		delay = floor
	}
	return &Client{
		bus:       bus,
		precision: opts.Precision,
		delay:     delay,
		sleep:     time.Sleep,
		retry:     NewRetryState(opts.DegradedAfter),
	}
}

// Open initializes the host and opens the sensor's I2C bus.
func Open(cfg config.SHT4xConfig) (*Client, error) {
	p, err := ParsePrecision(cfg.Precision)
	if err != nil {
		return nil, err
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}
	bus, err := i2creg.Open(cfg.I2C.Bus)
	if err != nil {
		return nil, fmt.Errorf("open i2c: %w", err)
	}
	addr := cfg.I2C.Address
	if addr == 0 {
		addr = DefaultAddress
	}
	c := New(&i2c.Dev{Addr: uint16(addr), Bus: bus}, Options{
		Precision:       p,
		ConversionDelay: time.Duration(cfg.ConversionDelayMs) * time.Millisecond,
		DegradedAfter:   cfg.DegradedAfter,
	})
	c.closer = bus
	return c, nil
}

// ConversionDelay returns the wait applied between command and response.
func (c *Client) ConversionDelay() time.Duration { return c.delay }

// State returns the step the last transaction reached.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Retry returns the current failure counter.
func (c *Client) Retry() RetryState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.retry
}

// Read commands one measurement, waits for the conversion and decodes the
// response. A failed read returns a *TransactionError and bumps the
// failure counter; a successful one resets it.
func (c *Client) Read() (Measurement, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.state = Idle
	m, err := c.transact()
	if err != nil {
		c.state = Failed
		c.retry = c.retry.Failed()
		logrus.WithFields(logrus.Fields{
			"failures": c.retry.Failures(),
			"degraded": c.retry.Degraded(),
		}).WithError(err).Debug("sht4x read failed")
		return Measurement{}, err
	}
	c.state = ResultReady
	c.retry = c.retry.Succeeded()
	return m, nil
}

func (c *Client) transact() (Measurement, error) {
	if err := c.bus.Tx([]byte{c.precision.command()}, nil); err != nil {
		return Measurement{}, &TransactionError{Stage: StageTransmit, Err: err}
	}
	c.state = CommandSent

	c.state = AwaitingConversion
	c.sleep(c.delay)

	buf := make([]byte, responseLen)
	if err := c.bus.Tx(nil, buf); err != nil {
		return Measurement{}, &TransactionError{Stage: StageReceive, Err: err}
	}
	m, err := Decode(buf)
	if err != nil {
		return Measurement{}, &TransactionError{Stage: StageReceive, Err: err}
	}
	return m, nil
}

// SoftReset returns the sensor to its power-up state.
func (c *Client) SoftReset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.bus.Tx([]byte{cmdSoftReset}, nil); err != nil {
		return &TransactionError{Stage: StageTransmit, Err: err}
	}
	c.sleep(resetDelay)
	c.state = Idle
	return nil
}

func (c *Client) Close() error {
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}
