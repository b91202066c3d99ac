package output

import (
	"github.com/ericogr/plura-monitor/pkg/store"
)

// Output forwards store entries to an external sink.
type Output interface {
	Publish([]store.Entry) error
	Close() error
}

// Channel describes a store entry for sinks that announce their channels
// up front.
type Channel struct {
	ID   store.ID
	Unit string
}

// Valid returns the entries that hold a reading. Entries never written are
// left out so sinks do not publish zeros.
func Valid(entries []store.Entry) []store.Entry {
	out := make([]store.Entry, 0, len(entries))
	for _, e := range entries {
		if e.Reading.Valid {
			out = append(out, e)
		}
	}
	return out
}

// helper constructors are in subpackages
