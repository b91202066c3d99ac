package sht4x

// DefaultDegradedAfter is the consecutive failure count after which a
// sensor is reported degraded.
const DefaultDegradedAfter = 3

// RetryState counts consecutive failed reads. It is a value: Failed and
// Succeeded return the next state and leave the receiver unchanged.
type RetryState struct {
	failures  int
	threshold int
}

// NewRetryState returns a zero counter that is degraded after threshold
// failures. A threshold <= 0 means DefaultDegradedAfter.
func NewRetryState(threshold int) RetryState {
	if threshold <= 0 {
		threshold = DefaultDegradedAfter
	}
	return RetryState{threshold: threshold}
}

func (r RetryState) Failed() RetryState {
	r.failures++
	return r
}

func (r RetryState) Succeeded() RetryState {
	r.failures = 0
	return r
}

func (r RetryState) Failures() int { return r.failures }

// Degraded reports whether the failure threshold has been reached. The
// counter keeps growing past it without further effect.
func (r RetryState) Degraded() bool {
	t := r.threshold
	if t <= 0 {
		t = DefaultDegradedAfter
	}
	return r.failures >= t
}
