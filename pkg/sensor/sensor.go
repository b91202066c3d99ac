package sensor

import (
	"errors"
	"fmt"

	"github.com/ericogr/plura-monitor/pkg/calibration"
)

var (
	// ErrBusy is returned when the analog unit is still converting.
	ErrBusy = errors.New("adc: unit busy")
	// ErrUnavailable is returned when the analog unit cannot be reached.
	ErrUnavailable = errors.New("adc: unit unavailable")
	// ErrInvalidChannel is returned for an input the unit does not have.
	ErrInvalidChannel = errors.New("adc: invalid channel")
)

// Channel identifies one analog input. It is fixed at startup.
type Channel struct {
	Name        string
	Unit        string
	Input       int
	BitWidth    int
	Attenuation calibration.Attenuation
	// Divider compensates an external divider ahead of the pin; 2 for 2:1.
	Divider    float64
	Calibrate  bool
	SampleRate int
}

func (c Channel) divider() float64 {
	if c.Divider <= 0 {
		return 1
	}
	return c.Divider
}

// Sample is the result of reading one channel. Millivolts is only set when
// Calibrated is true.
type Sample struct {
	Channel    Channel
	Raw        int
	Millivolts int
	Calibrated bool
}

// Unit is an analog-to-digital converter with one or more inputs.
type Unit interface {
	ID() int
	Read(ch Channel) (int, error)
	Close() error
}

// FaultError reports a failed analog transaction. It indicates a hardware or
// wiring problem rather than missing calibration.
type FaultError struct {
	Unit    int
	Channel string
	Err     error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("adc unit %d channel %s: %v", e.Unit, e.Channel, e.Err)
}

func (e *FaultError) Unwrap() error { return e.Err }
