package events

import "encoding/json"

// Event names.
const (
	ReadingsUpdated = "readings.updated"
	SensorDegraded  = "sensor.degraded"
	SensorRecovered = "sensor.recovered"
)

// Event is one published notification.
type Event struct {
	Name string          `json:"event"`
	Data json.RawMessage `json:"data"`
}

// ReadingsUpdatedEvent is sent after every sampling cycle.
type ReadingsUpdatedEvent struct {
	Cycle   uint64   `json:"cycle"`
	Updated []string `json:"updated"`
	Stale   []string `json:"stale,omitempty"`
	Ts      int64    `json:"ts"`
}

// SensorHealthEvent is the payload of sensor.degraded and sensor.recovered.
type SensorHealthEvent struct {
	Sensor   string `json:"sensor"`
	Failures int    `json:"failures"`
	Error    string `json:"error,omitempty"`
	Ts       int64  `json:"ts"`
}

// DecodeAs unmarshals the event payload into T. Empty data yields the zero
// value of T.
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
