// Package store keeps the latest reading of every configured channel.
package store

import (
	"errors"
	"sync/atomic"
	"time"
)

var ErrUnknownChannel = errors.New("store: unknown channel")

// ID names a channel. The set of IDs is fixed when the Store is created.
type ID string

// Reading is the published value of one channel. Value is only meaningful
// when Calibrated is true. Analog channels carry the ADC code in Raw and
// digital channels carry the sensor's 16-bit word, both with HasRaw set.
type Reading struct {
	Raw        int       `json:"raw"`
	HasRaw     bool      `json:"has_raw"`
	Value      float64   `json:"value"`
	Calibrated bool      `json:"calibrated"`
	Unit       string    `json:"unit"`
	Valid      bool      `json:"valid"`
	UpdatedAt  time.Time `json:"updated_at"`
	Cycle      uint64    `json:"cycle"`
}

// Entry pairs a channel with its reading.
type Entry struct {
	ID      ID      `json:"channel"`
	Reading Reading `json:"reading"`
}

type cell struct {
	p atomic.Pointer[Reading]
}

// Store maps channel IDs to readings. Writes replace a whole reading with
// one pointer swap, so readers observe either the old or the new record of
// an entry, never a mix. There is no store-wide lock and no snapshot across
// entries.
type Store struct {
	order []ID
	cells map[ID]*cell
}

// New creates a Store with one invalid zero reading per id. Duplicate ids
// are collapsed.
func New(ids ...ID) *Store {
	s := &Store{cells: make(map[ID]*cell, len(ids))}
	for _, id := range ids {
		if _, ok := s.cells[id]; ok {
			continue
		}
		c := &cell{}
		c.p.Store(&Reading{})
		s.cells[id] = c
		s.order = append(s.order, id)
	}
	return s
}

// IDs returns the channel IDs in creation order.
func (s *Store) IDs() []ID {
	return append([]ID(nil), s.order...)
}

// Write replaces the reading of id.
func (s *Store) Write(id ID, r Reading) error {
	c, ok := s.cells[id]
	if !ok {
		return ErrUnknownChannel
	}
	c.p.Store(&r)
	return nil
}

// Read returns a copy of the reading of id.
func (s *Store) Read(id ID) (Reading, error) {
	c, ok := s.cells[id]
	if !ok {
		return Reading{}, ErrUnknownChannel
	}
	return *c.p.Load(), nil
}

// ReadAll returns every entry in creation order. Each entry is consistent
// on its own; entries may come from different cycles.
func (s *Store) ReadAll() []Entry {
	out := make([]Entry, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, Entry{ID: id, Reading: *s.cells[id].p.Load()})
	}
	return out
}

// Age reports how long ago id was last written, and false if it never was.
func (s *Store) Age(id ID, now time.Time) (time.Duration, bool) {
	r, err := s.Read(id)
	if err != nil || r.UpdatedAt.IsZero() {
		return 0, false
	}
	return now.Sub(r.UpdatedAt), true
}
