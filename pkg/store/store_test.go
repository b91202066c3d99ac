package store

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStartsInvalid(t *testing.T) {
	s := New("v_bat", "fc_temp", "v_bat")
	assert.Equal(t, []ID{"v_bat", "fc_temp"}, s.IDs())

	for _, e := range s.ReadAll() {
		assert.False(t, e.Reading.Valid)
		assert.True(t, e.Reading.UpdatedAt.IsZero())
	}
	_, ok := s.Age("v_bat", time.Now())
	assert.False(t, ok)
}

func TestReadAfterWrite(t *testing.T) {
	s := New("v_bat")
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	want := Reading{Raw: 13200, HasRaw: true, Value: 3300, Calibrated: true, Unit: "mV", Valid: true, UpdatedAt: now, Cycle: 7}

	require.NoError(t, s.Write("v_bat", want))
	got, err := s.Read("v_bat")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	age, ok := s.Age("v_bat", now.Add(2*time.Second))
	require.True(t, ok)
	assert.Equal(t, 2*time.Second, age)
}

func TestUnknownChannel(t *testing.T) {
	s := New("a")
	assert.ErrorIs(t, s.Write("b", Reading{}), ErrUnknownChannel)
	_, err := s.Read("b")
	assert.ErrorIs(t, err, ErrUnknownChannel)
}

func TestReadReturnsCopy(t *testing.T) {
	s := New("a")
	require.NoError(t, s.Write("a", Reading{Raw: 1, HasRaw: true}))
	r, _ := s.Read("a")
	r.Raw = 99
	again, _ := s.Read("a")
	assert.Equal(t, 1, again.Raw)
}

// Every field of a written reading is derived from its cycle number, so a
// reader can tell whether all fields came from the same write.
func tagged(cycle uint64) Reading {
	return Reading{
		Raw:        int(cycle),
		HasRaw:     true,
		Value:      float64(cycle) * 2,
		Calibrated: true,
		Valid:      true,
		UpdatedAt:  time.Unix(int64(cycle), 0),
		Cycle:      cycle,
	}
}

func consistent(r Reading) bool {
	if r.Cycle == 0 {
		return !r.Valid
	}
	return r.Raw == int(r.Cycle) &&
		r.Value == float64(r.Cycle)*2 &&
		r.UpdatedAt.Unix() == int64(r.Cycle)
}

func TestConcurrentWriteReadNoTearing(t *testing.T) {
	ids := []ID{"a", "b", "c"}
	s := New(ids...)
	const cycles = 20000

	var wg sync.WaitGroup
	done := make(chan struct{})
	torn := make(chan Reading, 1)

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			last := map[ID]uint64{}
			for {
				select {
				case <-done:
					return
				default:
				}
				for _, e := range s.ReadAll() {
					if !consistent(e.Reading) || e.Reading.Cycle < last[e.ID] {
						select {
						case torn <- e.Reading:
						default:
						}
						return
					}
					last[e.ID] = e.Reading.Cycle
				}
			}
		}()
	}

	for c := uint64(1); c <= cycles; c++ {
		for _, id := range ids {
			require.NoError(t, s.Write(id, tagged(c)))
		}
	}
	close(done)
	wg.Wait()

	select {
	case r := <-torn:
		t.Fatalf("observed inconsistent reading %+v", r)
	default:
	}
	for _, id := range ids {
		r, err := s.Read(id)
		require.NoError(t, err)
		assert.Equal(t, uint64(cycles), r.Cycle)
	}
}
